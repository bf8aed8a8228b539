package outcome

import (
	"sort"
	"time"
)

// ResultRecord is what the summary keeps per completed instance.
type ResultRecord struct {
	PlanIndex int
	DisplayID string
	Cycle     int
	Final     Final
	Duration  time.Duration
}

// Summary rolls up the final outcomes of a run.
type Summary struct {
	Counts      map[Outcome]int
	Records     []ResultRecord
	Interrupted bool
	// Planned is the number of instances in the plan; it may exceed
	// len(Records) for an interrupted run.
	Planned  int
	Duration time.Duration
}

// NewSummary creates an empty summary for a plan of the given size.
func NewSummary(planned int) *Summary {
	return &Summary{Counts: map[Outcome]int{}, Planned: planned}
}

// Add records a completed instance.
func (s *Summary) Add(r ResultRecord) {
	s.Counts[r.Final.Outcome]++
	s.Records = append(s.Records, r)
}

// Completed is the number of instances with a final outcome.
func (s *Summary) Completed() int {
	return len(s.Records)
}

// Failures returns failing records in plan order.
func (s *Summary) Failures() []ResultRecord {
	var failures []ResultRecord
	for _, r := range s.Records {
		if r.Final.Outcome.IsFailure() {
			failures = append(failures, r)
		}
	}
	sort.SliceStable(failures, func(i, j int) bool {
		return failures[i].PlanIndex < failures[j].PlanIndex
	})
	return failures
}

// FailureCount counts records whose outcome is a failure.
func (s *Summary) FailureCount() int {
	n := 0
	for o, c := range s.Counts {
		if o.IsFailure() {
			n += c
		}
	}
	return n
}

// FailingIDs returns the distinct display ids of failing instances in plan
// order, suitable for re-running them.
func (s *Summary) FailingIDs() []string {
	var ids []string
	seen := map[string]bool{}
	for _, r := range s.Failures() {
		if seen[r.DisplayID] {
			continue
		}
		seen[r.DisplayID] = true
		ids = append(ids, r.DisplayID)
	}
	return ids
}

// Success reports whether no completed instance failed and the run was not
// interrupted.
func (s *Summary) Success() bool {
	return !s.Interrupted && s.FailureCount() == 0
}

// Process exit statuses derived from a summary.
const (
	ExitPassed      = 0
	ExitFailures    = 2
	ExitInterrupted = 3
)

// ExitCode maps the summary to a process exit status. Interruption takes
// precedence over failures.
func (s *Summary) ExitCode() int {
	switch {
	case s.Interrupted:
		return ExitInterrupted
	case s.FailureCount() > 0:
		return ExitFailures
	default:
		return ExitPassed
	}
}
