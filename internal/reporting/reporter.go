// Package reporting publishes run progress and results to consoles, report
// files and in-memory consumers.
//
// Reporters are called from a single goroutine, the one consuming scheduler
// results, so they see results in plan order and need no locking unless
// they are also queried from elsewhere.
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"rigor/internal/outcome"
)

// RunInfo describes a run as it starts.
type RunInfo struct {
	RunID      string    `json:"runId"`
	Started    time.Time `json:"started"`
	Planned    int       `json:"planned"`
	Threads    int       `json:"threads"`
	Cycles     int       `json:"cycles"`
	OutputRoot string    `json:"outputRoot"`
}

// Result is the published record of one finished instance.
type Result struct {
	PlanIndex  int             `json:"planIndex"`
	DisplayID  string          `json:"displayId"`
	ID         string          `json:"id"`
	Title      string          `json:"title,omitempty"`
	Mode       string          `json:"mode,omitempty"`
	Params     string          `json:"params,omitempty"`
	Cycle      int             `json:"cycle"`
	Groups     []string        `json:"groups,omitempty"`
	Outcome    outcome.Outcome `json:"outcome"`
	Reason     string          `json:"reason,omitempty"`
	Additional int             `json:"additional,omitempty"`
	Start      time.Time       `json:"start"`
	Duration   time.Duration   `json:"duration"`
	OutputDir  string          `json:"outputDir,omitempty"`
	LogFile    string          `json:"logFile,omitempty"`
}

// ReasonWithMore appends "(+N more)" when further events shared the final
// severity.
func (r Result) ReasonWithMore() string {
	return outcome.Final{Reason: r.Reason, Additional: r.Additional}.ReasonWithMore()
}

// Reporter receives run events.
type Reporter interface {
	ReportStart(info RunInfo)
	ReportResult(result Result)
	ReportSummary(summary *outcome.Summary)
}

// Reporter names accepted by New.
const (
	NameConsole    = "console"
	NameQuiet      = "quiet"
	NameJSON       = "json"
	NameJUnit      = "junit"
	NameStructured = "structured"
)

// Names lists the reporters New can build.
func Names() []string {
	return []string{NameConsole, NameQuiet, NameJSON, NameJUnit, NameStructured}
}

// Options configures reporters built by New.
type Options struct {
	Verbose bool
	Debug   bool
	// Out is where console reporters write; nil means os.Stdout.
	Out io.Writer
	// ReportDir receives file reports; empty means the run's output root.
	ReportDir string
}

func (o Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

// New builds the named reporter.
func New(name string, opts Options) (Reporter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameConsole:
		return NewConsoleReporter(opts.out(), opts.Verbose), nil
	case NameQuiet:
		return NewQuietReporter(opts.out()), nil
	case NameJSON:
		return NewJSONReporter(opts.ReportDir), nil
	case NameJUnit:
		return NewJUnitReporter(opts.ReportDir), nil
	case NameStructured:
		return NewStructuredReporter(), nil
	default:
		return nil, fmt.Errorf("unknown reporter %q (available: %s)", name, strings.Join(Names(), ", "))
	}
}

// NewAll builds every named reporter, skipping duplicates.
func NewAll(names []string, opts Options) ([]Reporter, error) {
	seen := map[string]bool{}
	var reporters []Reporter
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if seen[key] {
			continue
		}
		seen[key] = true
		r, err := New(name, opts)
		if err != nil {
			return nil, err
		}
		reporters = append(reporters, r)
	}
	return reporters, nil
}

// Multi fans every event out to each reporter in order.
type Multi []Reporter

func (m Multi) ReportStart(info RunInfo) {
	for _, r := range m {
		r.ReportStart(info)
	}
}

func (m Multi) ReportResult(result Result) {
	for _, r := range m {
		r.ReportResult(result)
	}
}

func (m Multi) ReportSummary(summary *outcome.Summary) {
	for _, r := range m {
		r.ReportSummary(summary)
	}
}

// reportPath resolves a report file name against dir, falling back to the
// run's output root.
func reportPath(dir, outputRoot, name string) string {
	if dir == "" {
		dir = outputRoot
	}
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}
