package reporting

import (
	"fmt"
	"io"
	"time"

	"rigor/internal/outcome"

	"github.com/briandowns/spinner"
)

// QuietReporter prints only failing results and the summary. On a terminal
// a spinner shows progress meanwhile.
type QuietReporter struct {
	out     io.Writer
	color   bool
	spinner *spinner.Spinner

	planned int
	done    int
}

// NewQuietReporter writes to out.
func NewQuietReporter(out io.Writer) *QuietReporter {
	r := &QuietReporter{out: out, color: isTerminal(out)}
	if r.color {
		r.spinner = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(out))
	}
	return r
}

func (r *QuietReporter) ReportStart(info RunInfo) {
	r.planned = info.Planned
	r.done = 0
	if r.spinner != nil {
		r.spinner.Suffix = fmt.Sprintf(" 0/%d", r.planned)
		r.spinner.Start()
	}
}

func (r *QuietReporter) ReportResult(res Result) {
	r.done++
	if r.spinner != nil {
		r.spinner.Lock()
		r.spinner.Suffix = fmt.Sprintf(" %d/%d %s", r.done, r.planned, res.DisplayID)
		r.spinner.Unlock()
	}
	if !res.Outcome.IsFailure() {
		return
	}

	r.pause(func() {
		fmt.Fprintf(r.out, "%s %s: %s\n", paintOutcome(r.color, res.Outcome, res.Outcome.String()), res.DisplayID, res.ReasonWithMore())
	})
}

func (r *QuietReporter) ReportSummary(s *outcome.Summary) {
	if r.spinner != nil {
		r.spinner.Stop()
	}
	fmt.Fprintf(r.out, "%d/%d completed, %d failing, %s\n", s.Completed(), s.Planned, s.FailureCount(), formatDuration(s.Duration))
	writeFailures(r.out, s, r.color)
}

// pause stops the spinner while fn writes so lines are not interleaved
// with spinner frames.
func (r *QuietReporter) pause(fn func()) {
	if r.spinner == nil {
		fn()
		return
	}
	r.spinner.Stop()
	fn()
	r.spinner.Start()
}
