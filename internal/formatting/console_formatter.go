package formatting

import (
	"fmt"
	"io"
)

// ConsoleFormatter prints one instance per line. In quiet mode only the
// display ids are printed, which suits shell pipelines.
type ConsoleFormatter struct {
	options Options
}

func (f *ConsoleFormatter) FormatPlan(w io.Writer, rows []PlanRow) error {
	if f.options.Quiet {
		for _, r := range rows {
			if _, err := fmt.Fprintln(w, r.DisplayID); err != nil {
				return err
			}
		}
		return nil
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No tests selected.")
		return err
	}
	fmt.Fprintf(w, "Planned instances (%d):\n", len(rows))
	for _, r := range rows {
		line := fmt.Sprintf("  %d. %-40s cycle %d  hint %g", r.Index+1, r.DisplayID, r.Cycle, r.Hint)
		if r.Skipped != "" {
			line += "  (skipped: " + r.Skipped + ")"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
