package formatting

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter provides rich table output formatting
type TableFormatter struct {
	options Options
}

func (f *TableFormatter) FormatPlan(w io.Writer, rows []PlanRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, text.FgYellow.Sprint("No tests selected"))
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "TEST", "CYCLE", "HINT", "GROUPS", "FILE"})
	for _, r := range rows {
		id := r.DisplayID
		if r.Mode != "" && !r.Primary {
			id += text.FgHiBlack.Sprint(" (secondary)")
		}
		if r.Skipped != "" {
			id += text.FgYellow.Sprint(" [skip: " + r.Skipped + "]")
		}
		t.AppendRow(table.Row{
			r.Index + 1,
			id,
			r.Cycle,
			strconv.FormatFloat(r.Hint, 'g', -1, 64),
			strings.Join(r.Groups, ","),
			r.File,
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d instance(s)", len(rows))})
	t.Render()
	return nil
}
