package formatting

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

func (f *YAMLFormatter) FormatPlan(w io.Writer, rows []PlanRow) error {
	if rows == nil {
		rows = []PlanRow{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rows); err != nil {
		return err
	}
	return enc.Close()
}
