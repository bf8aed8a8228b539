package reporting

import (
	"fmt"
	"io"
	"os"
	"time"

	"rigor/internal/outcome"
	rstrings "rigor/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// ConsoleReporter prints a line per result and a summary table.
type ConsoleReporter struct {
	out     io.Writer
	verbose bool
	color   bool

	planned int
	done    int
}

// NewConsoleReporter writes to out. Colors are used when out is a terminal.
func NewConsoleReporter(out io.Writer, verbose bool) *ConsoleReporter {
	return &ConsoleReporter{out: out, verbose: verbose, color: isTerminal(out)}
}

func (r *ConsoleReporter) ReportStart(info RunInfo) {
	r.planned = info.Planned
	r.done = 0
	fmt.Fprintf(r.out, "Running %d test instance(s) with %d thread(s)", info.Planned, info.Threads)
	if info.Cycles > 1 {
		fmt.Fprintf(r.out, ", %d cycles", info.Cycles)
	}
	fmt.Fprintln(r.out)
	if r.verbose {
		fmt.Fprintf(r.out, "  Run ID:      %s\n", info.RunID)
		fmt.Fprintf(r.out, "  Output root: %s\n", info.OutputRoot)
	}
}

func (r *ConsoleReporter) ReportResult(res Result) {
	r.done++
	width := len(fmt.Sprint(r.planned))
	line := fmt.Sprintf("[%*d/%d] %s %s", width, r.done, r.planned,
		paintOutcome(r.color, res.Outcome, fmt.Sprintf("%-11s", res.Outcome)), res.DisplayID)
	if res.Cycle > 1 || r.verbose {
		line += fmt.Sprintf(" (cycle %d)", res.Cycle)
	}
	line += fmt.Sprintf(" %s", formatDuration(res.Duration))
	fmt.Fprintln(r.out, line)

	if res.Outcome != outcome.Passed && res.Reason != "" {
		fmt.Fprintf(r.out, "    %s\n", res.ReasonWithMore())
	}
	if r.verbose || res.Outcome.IsFailure() {
		if res.LogFile != "" {
			fmt.Fprintf(r.out, "    log: %s\n", res.LogFile)
		}
	}
}

func (r *ConsoleReporter) ReportSummary(s *outcome.Summary) {
	fmt.Fprintln(r.out)
	writeCountsTable(r.out, s, r.color)
	writeFailures(r.out, s, r.color)
}

// writeCountsTable renders one row per outcome that occurred.
func writeCountsTable(w io.Writer, s *outcome.Summary, color bool) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"OUTCOME", "COUNT"})
	for _, o := range outcome.All() {
		if n := s.Counts[o]; n > 0 {
			t.AppendRow(table.Row{paintOutcome(color, o, o.String()), n})
		}
	}
	t.AppendFooter(table.Row{"TOTAL", fmt.Sprintf("%d/%d", s.Completed(), s.Planned)})
	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "Duration: %s\n", formatDuration(s.Duration))
}

// writeFailures lists every failing reason and a command line that re-runs
// the failing tests, both in plan order.
func writeFailures(w io.Writer, s *outcome.Summary, color bool) {
	if s.Interrupted {
		fmt.Fprintln(w, paint(color, text.FgYellow, fmt.Sprintf("Interrupted: %d of %d instances completed", s.Completed(), s.Planned)))
	}

	failures := s.Failures()
	if len(failures) == 0 {
		if !s.Interrupted {
			fmt.Fprintln(w, paint(color, text.FgGreen, "All tests passed"))
		}
		return
	}

	fmt.Fprintf(w, "\n%d failing:\n", len(failures))
	for _, f := range failures {
		id := f.DisplayID
		if f.Cycle > 1 {
			id = fmt.Sprintf("%s (cycle %d)", id, f.Cycle)
		}
		fmt.Fprintf(w, "  %s %s: %s\n",
			paintOutcome(color, f.Final.Outcome, f.Final.Outcome.String()), id,
			rstrings.Truncate(f.Final.ReasonWithMore(), rstrings.DefaultReasonMaxLen))
	}
	fmt.Fprintf(w, "\nRe-run failing tests:\n  rigor run %s\n", rstrings.JoinQuoted(s.FailingIDs()))
}

func paintOutcome(enabled bool, o outcome.Outcome, s string) string {
	switch {
	case o == outcome.Passed:
		return paint(enabled, text.FgGreen, s)
	case o.IsFailure():
		return paint(enabled, text.FgRed, s)
	case o == outcome.Inspect:
		return paint(enabled, text.FgMagenta, s)
	default:
		return paint(enabled, text.FgYellow, s)
	}
}

func paint(enabled bool, c text.Color, s string) string {
	if !enabled {
		return s
	}
	return c.Sprint(s)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(10 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
