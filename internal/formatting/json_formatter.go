package formatting

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

func (f *JSONFormatter) FormatPlan(w io.Writer, rows []PlanRow) error {
	if rows == nil {
		rows = []PlanRow{}
	}
	if f.options.Quiet {
		data, err := json.Marshal(rows)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintln(w, PrettyJSON(rows))
	return err
}
