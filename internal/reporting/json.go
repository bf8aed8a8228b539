package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"

	"rigor/internal/outcome"
	"rigor/pkg/logging"
)

// JSONReportName is the file written by JSONReporter.
const JSONReportName = "rigor-report.json"

// JSONReport is the document JSONReporter writes.
type JSONReport struct {
	Run     RunInfo     `json:"run"`
	Results []Result    `json:"results"`
	Summary JSONSummary `json:"summary"`
}

// JSONSummary is the summary part of a JSONReport.
type JSONSummary struct {
	Counts      map[string]int `json:"counts"`
	Planned     int            `json:"planned"`
	Completed   int            `json:"completed"`
	Failures    int            `json:"failures"`
	Interrupted bool           `json:"interrupted"`
	DurationMS  int64          `json:"durationMs"`
	FailingIDs  []string       `json:"failingIds"`
	ExitCode    int            `json:"exitCode"`
}

// JSONReporter writes a machine-readable report when the run ends.
type JSONReporter struct {
	dir    string
	path   string
	report JSONReport
}

// NewJSONReporter writes into dir, or the run's output root when empty.
func NewJSONReporter(dir string) *JSONReporter {
	return &JSONReporter{dir: dir}
}

// Path is the report file, known once the run has started.
func (r *JSONReporter) Path() string { return r.path }

func (r *JSONReporter) ReportStart(info RunInfo) {
	r.report = JSONReport{Run: info, Results: []Result{}}
	r.path = reportPath(r.dir, info.OutputRoot, JSONReportName)
}

func (r *JSONReporter) ReportResult(res Result) {
	r.report.Results = append(r.report.Results, res)
}

func (r *JSONReporter) ReportSummary(s *outcome.Summary) {
	counts := make(map[string]int, len(s.Counts))
	for o, n := range s.Counts {
		counts[o.String()] = n
	}
	failing := s.FailingIDs()
	if failing == nil {
		failing = []string{}
	}
	r.report.Summary = JSONSummary{
		Counts:      counts,
		Planned:     s.Planned,
		Completed:   s.Completed(),
		Failures:    s.FailureCount(),
		Interrupted: s.Interrupted,
		DurationMS:  s.Duration.Milliseconds(),
		FailingIDs:  failing,
		ExitCode:    s.ExitCode(),
	}

	if err := writeJSON(r.path, r.report); err != nil {
		logging.Error("Reporting", err, "Failed to write JSON report %s", r.path)
		return
	}
	logging.Debug("Reporting", "Wrote JSON report %s", r.path)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
