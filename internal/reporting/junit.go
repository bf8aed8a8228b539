package reporting

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"rigor/internal/outcome"
	"rigor/pkg/logging"
)

// JUnitReportName is the file written by JUnitReporter.
const JUnitReportName = "junit.xml"

type junitSuites struct {
	XMLName xml.Name     `xml:"testsuites"`
	Suites  []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name      string      `xml:"name,attr"`
	Tests     int         `xml:"tests,attr"`
	Failures  int         `xml:"failures,attr"`
	Errors    int         `xml:"errors,attr"`
	Skipped   int         `xml:"skipped,attr"`
	Time      string      `xml:"time,attr"`
	Timestamp string      `xml:"timestamp,attr"`
	Cases     []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitMessage `xml:"failure,omitempty"`
	Error     *junitMessage `xml:"error,omitempty"`
	Skipped   *junitMessage `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

type junitMessage struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
}

// JUnitReporter writes a JUnit XML file for CI systems. FAILED maps to a
// failure; BLOCKED, DUMPEDCORE and TIMEDOUT map to errors; SKIPPED,
// NOTVERIFIED and INSPECT are reported as skipped with the outcome named.
type JUnitReporter struct {
	dir   string
	path  string
	info  RunInfo
	suite junitSuite
}

// NewJUnitReporter writes into dir, or the run's output root when empty.
func NewJUnitReporter(dir string) *JUnitReporter {
	return &JUnitReporter{dir: dir}
}

// Path is the report file, known once the run has started.
func (r *JUnitReporter) Path() string { return r.path }

func (r *JUnitReporter) ReportStart(info RunInfo) {
	r.info = info
	r.path = reportPath(r.dir, info.OutputRoot, JUnitReportName)
	r.suite = junitSuite{Name: "rigor", Timestamp: info.Started.UTC().Format("2006-01-02T15:04:05")}
}

func (r *JUnitReporter) ReportResult(res Result) {
	name := res.DisplayID
	if r.info.Cycles > 1 {
		name = fmt.Sprintf("%s [cycle %d]", name, res.Cycle)
	}
	tc := junitCase{
		Name:      name,
		Classname: res.ID,
		Time:      seconds(res.Duration.Seconds()),
	}
	if res.LogFile != "" {
		tc.SystemOut = "log: " + res.LogFile
	}

	msg := &junitMessage{Message: res.ReasonWithMore(), Type: res.Outcome.String()}
	switch res.Outcome {
	case outcome.Passed:
	case outcome.Failed:
		tc.Failure = msg
		r.suite.Failures++
	case outcome.Blocked, outcome.DumpedCore, outcome.TimedOut:
		tc.Error = msg
		r.suite.Errors++
	default:
		if msg.Message == "" {
			msg.Message = res.Outcome.String()
		}
		tc.Skipped = msg
		r.suite.Skipped++
	}

	r.suite.Tests++
	r.suite.Cases = append(r.suite.Cases, tc)
}

func (r *JUnitReporter) ReportSummary(s *outcome.Summary) {
	r.suite.Time = seconds(s.Duration.Seconds())
	if err := writeJUnit(r.path, junitSuites{Suites: []junitSuite{r.suite}}); err != nil {
		logging.Error("Reporting", err, "Failed to write JUnit report %s", r.path)
		return
	}
	logging.Debug("Reporting", "Wrote JUnit report %s", r.path)
}

func writeJUnit(path string, doc junitSuites) error {
	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out := append([]byte(xml.Header), data...)
	return os.WriteFile(path, append(out, '\n'), 0o644)
}

func seconds(s float64) string {
	return fmt.Sprintf("%.3f", s)
}
