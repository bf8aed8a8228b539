// Package formatting renders run plans for the list command in the
// supported output formats.
package formatting

import (
	"fmt"
	"io"
	"strings"

	"rigor/internal/planner"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatConsole OutputFormat = "console" // One instance per line
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
	FormatTable   OutputFormat = "table" // Rich table output
)

// Formats lists the accepted output formats.
func Formats() []string {
	return []string{string(FormatTable), string(FormatConsole), string(FormatJSON), string(FormatYAML)}
}

// ParseFormat validates a --output value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatConsole, FormatJSON, FormatYAML, FormatTable:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (available: %s)", s, strings.Join(Formats(), ", "))
	}
}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	// Quiet prints only display ids (console) or compact output (json).
	Quiet bool
}

// PlanRow is the listed view of one plan instance.
type PlanRow struct {
	Index     int      `json:"index" yaml:"index"`
	DisplayID string   `json:"displayId" yaml:"displayId"`
	ID        string   `json:"id" yaml:"id"`
	Mode      string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	Primary   bool     `json:"primary" yaml:"primary"`
	Params    string   `json:"params,omitempty" yaml:"params,omitempty"`
	Cycle     int      `json:"cycle" yaml:"cycle"`
	Hint      float64  `json:"hint" yaml:"hint"`
	Groups    []string `json:"groups,omitempty" yaml:"groups,omitempty"`
	Type      string   `json:"type" yaml:"type"`
	Skipped   string   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	File      string   `json:"file" yaml:"file"`
}

// PlanRows flattens plan into rows, in plan order.
func PlanRows(plan *planner.RunPlan) []PlanRow {
	rows := make([]PlanRow, 0, plan.Len())
	for _, inst := range plan.Instances() {
		d := inst.Descriptor
		row := PlanRow{
			Index:     inst.PlanIndex,
			DisplayID: inst.DisplayID(),
			ID:        d.ID,
			Primary:   true,
			Cycle:     inst.Cycle,
			Hint:      inst.Hint,
			Groups:    d.Groups,
			Type:      d.Type,
			File:      d.File,
		}
		if inst.Mode != nil {
			row.Mode = inst.Mode.Name
			row.Primary = inst.Mode.Primary
			row.Params = inst.Mode.Params.String()
		}
		if d.Skipped {
			row.Skipped = d.SkipReason
			if row.Skipped == "" {
				row.Skipped = "skipped"
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// Formatter writes plan rows.
type Formatter interface {
	FormatPlan(w io.Writer, rows []PlanRow) error
}

// New creates the appropriate formatter based on options
func New(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return &JSONFormatter{options: options}
	case FormatYAML:
		return &YAMLFormatter{options: options}
	case FormatConsole:
		return &ConsoleFormatter{options: options}
	default:
		return &TableFormatter{options: options}
	}
}
