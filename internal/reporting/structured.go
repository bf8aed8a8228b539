package reporting

import (
	"sync"

	"rigor/internal/outcome"
)

// StructuredReporter keeps everything in memory for programmatic callers.
// It is safe to query while a run is in progress.
type StructuredReporter struct {
	mu      sync.RWMutex
	info    RunInfo
	started bool
	results []Result
	summary *outcome.Summary
}

// NewStructuredReporter creates an empty reporter.
func NewStructuredReporter() *StructuredReporter {
	return &StructuredReporter{}
}

func (r *StructuredReporter) ReportStart(info RunInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info = info
	r.started = true
	r.results = nil
	r.summary = nil
}

func (r *StructuredReporter) ReportResult(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *StructuredReporter) ReportSummary(s *outcome.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = s
}

// Info returns the run information and whether the run has started.
func (r *StructuredReporter) Info() (RunInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.info, r.started
}

// Results returns a copy of the results received so far, in delivery order.
func (r *StructuredReporter) Results() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Result(nil), r.results...)
}

// Result finds the result for a display id and cycle.
func (r *StructuredReporter) Result(displayID string, cycle int) (Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.results {
		if res.DisplayID == displayID && res.Cycle == cycle {
			return res, true
		}
	}
	return Result{}, false
}

// ByOutcome returns the results with outcome o.
func (r *StructuredReporter) ByOutcome(o outcome.Outcome) []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Result
	for _, res := range r.results {
		if res.Outcome == o {
			out = append(out, res)
		}
	}
	return out
}

// Summary returns the final summary, or nil while the run is in progress.
func (r *StructuredReporter) Summary() *outcome.Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.summary
}
