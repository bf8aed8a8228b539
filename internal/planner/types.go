package planner

import (
	"fmt"
	"strconv"

	"rigor/internal/descriptor"
	"rigor/internal/modes"
)

// TestInstance is one schedulable (test, mode, cycle) triple.
type TestInstance struct {
	Descriptor *descriptor.TestDescriptor
	// Mode is nil for tests without modes.
	Mode      *modes.ModeSpec
	ModeIndex int
	// Cycle is 1-based.
	Cycle int
	Hint  float64
	// PlanIndex is the instance's position in the plan.
	PlanIndex int
}

// DisplayID is the test id, with "~Mode" appended when the instance has a mode.
func (i TestInstance) DisplayID() string {
	if i.Mode == nil {
		return i.Descriptor.ID
	}
	return i.Descriptor.ID + "~" + i.Mode.Name
}

// Key identifies the instance uniquely within a plan.
func (i TestInstance) Key() string {
	return i.DisplayID() + "#" + strconv.Itoa(i.Cycle)
}

func (i TestInstance) String() string {
	return fmt.Sprintf("%s (cycle %d)", i.DisplayID(), i.Cycle)
}

// Params returns the mode parameters, or nil for tests without modes.
func (i TestInstance) Params() modes.Params {
	if i.Mode == nil {
		return nil
	}
	return i.Mode.Params
}

// RunPlan is the ordered set of instances for one invocation. It is not
// modified after Build returns.
type RunPlan struct {
	instances    []TestInstance
	cycles       int
	threads      int
	abortOnError bool
	outputRoot   string
}

func (p *RunPlan) Len() int { return len(p.instances) }

// At returns the instance at plan index i.
func (p *RunPlan) At(i int) TestInstance { return p.instances[i] }

// Instances returns a copy of the ordered instances.
func (p *RunPlan) Instances() []TestInstance {
	out := make([]TestInstance, len(p.instances))
	copy(out, p.instances)
	return out
}

func (p *RunPlan) Cycles() int        { return p.cycles }
func (p *RunPlan) Threads() int       { return p.threads }
func (p *RunPlan) AbortOnError() bool { return p.abortOnError }
func (p *RunPlan) OutputRoot() string { return p.outputRoot }

// Empty reports whether nothing was selected.
func (p *RunPlan) Empty() bool { return len(p.instances) == 0 }
