package outcome

import (
	"fmt"
	"sync"
)

// Event is a single outcome recorded while an instance runs, for example one
// per failed assertion.
type Event struct {
	Outcome Outcome
	Reason  string
}

// Final is the reduced result of one instance.
type Final struct {
	Outcome Outcome
	// Reason belongs to the first event recorded at the final severity.
	Reason string
	// Additional counts further events at the same severity, shown as "+N more".
	Additional int
	// Events is the total number of events recorded.
	Events int
}

// ReasonWithMore returns the reason followed by "(+N more)" when further
// events share its severity.
func (f Final) ReasonWithMore() string {
	if f.Additional == 0 {
		return f.Reason
	}
	return fmt.Sprintf("%s (+%d more)", f.Reason, f.Additional)
}

type instanceState struct {
	worst      Event
	additional int
	events     int
	finalized  bool
}

// Aggregator keeps the worst event per instance. It is safe for concurrent
// use; each instance key is typically written by a single worker.
type Aggregator struct {
	mu        sync.Mutex
	instances map[string]*instanceState
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{instances: map[string]*instanceState{}}
}

// Record adds an event for key. A weaker event never replaces a worse one;
// an equally severe one only increments the "+N more" count. Events recorded
// after Finalize are ignored and reported as an error.
func (a *Aggregator) Record(key string, ev Event) error {
	if !ev.Outcome.Valid() {
		return fmt.Errorf("invalid outcome for %s", key)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.instances[key]
	if !ok {
		st = &instanceState{}
		a.instances[key] = st
	}
	if st.finalized {
		return fmt.Errorf("instance %s already finalized", key)
	}

	st.events++
	switch {
	case st.events == 1 || ev.Outcome.WorseThan(st.worst.Outcome):
		st.worst = ev
		st.additional = 0
	case ev.Outcome == st.worst.Outcome:
		st.additional++
	}
	return nil
}

// Worst returns the worst event recorded so far for key.
func (a *Aggregator) Worst(key string) (Event, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.instances[key]
	if !ok || st.events == 0 {
		return Event{}, false
	}
	return st.worst, true
}

// Finalize reduces the events recorded for key. With no events, the result
// is PASSED when the instance finished cleanly and BLOCKED otherwise.
// Finalize must be called exactly once per key; a second call is an error.
func (a *Aggregator) Finalize(key string, cleanFinish bool) (Final, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.instances[key]
	if !ok {
		st = &instanceState{}
		a.instances[key] = st
	}
	if st.finalized {
		return Final{}, fmt.Errorf("instance %s finalized twice", key)
	}
	st.finalized = true

	if st.events == 0 {
		if cleanFinish {
			return Final{Outcome: Passed}, nil
		}
		return Final{Outcome: Blocked, Reason: "instance did not complete"}, nil
	}
	return Final{
		Outcome:    st.worst.Outcome,
		Reason:     st.worst.Reason,
		Additional: st.additional,
		Events:     st.events,
	}, nil
}
