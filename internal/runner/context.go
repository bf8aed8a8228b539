package runner

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"rigor/internal/outcome"
	"rigor/internal/planner"
	"rigor/internal/process"
	"rigor/internal/scheduler"
	"rigor/pkg/logging"
)

// TestContext is what a test and its plugins see of the running instance.
// Tests must use Process for their working directory and environment rather
// than changing the process-wide ones.
type TestContext struct {
	Instance planner.TestInstance
	Process  *scheduler.ProcessContext
	Run      *RunContext
	Logger   logging.TestLogger

	ctx context.Context
	rec scheduler.Recorder

	mu    sync.Mutex
	worst outcome.Outcome
	ports map[string]int
}

func newTestContext(ctx context.Context, rc *RunContext, inst planner.TestInstance, pc *scheduler.ProcessContext, rec scheduler.Recorder, logger logging.TestLogger) *TestContext {
	return &TestContext{
		Instance: inst,
		Process:  pc,
		Run:      rc,
		Logger:   logger,
		ctx:      ctx,
		rec:      rec,
		ports:    map[string]int{},
	}
}

// Context is the instance context. It ends on timeout or interruption.
func (tc *TestContext) Context() context.Context { return tc.ctx }

// AddOutcome records an outcome event for the instance.
func (tc *TestContext) AddOutcome(o outcome.Outcome, reason string) {
	if !o.Valid() {
		tc.Logger.Error("Ignoring invalid outcome for reason %q", reason)
		return
	}
	tc.mu.Lock()
	if tc.worst == 0 || o.WorseThan(tc.worst) {
		tc.worst = o
	}
	tc.mu.Unlock()

	tc.Logger.Debug("%s: %s", o, reason)
	tc.rec.Record(outcome.Event{Outcome: o, Reason: reason})
}

// Failf records a FAILED event.
func (tc *TestContext) Failf(format string, args ...any) {
	tc.AddOutcome(outcome.Failed, fmt.Sprintf(format, args...))
}

// Worst returns the worst outcome recorded through this context so far.
func (tc *TestContext) Worst() (outcome.Outcome, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.worst, tc.worst != 0
}

func (tc *TestContext) failed() bool {
	o, ok := tc.Worst()
	return ok && o.IsFailure()
}

// AllocatePort reserves a free TCP port under name. Asking again for the
// same name returns the same port. Ports are released when the instance
// ends.
func (tc *TestContext) AllocatePort(name string) (int, error) {
	tc.mu.Lock()
	if port, ok := tc.ports[name]; ok {
		tc.mu.Unlock()
		return port, nil
	}
	tc.mu.Unlock()

	if tc.Run == nil || tc.Run.Ports == nil {
		return 0, fmt.Errorf("no port pool configured")
	}
	port, err := tc.Run.Ports.Allocate(tc.ctx, tc.Instance.Key())
	if err != nil {
		return 0, fmt.Errorf("allocating port %q: %w", name, err)
	}

	tc.mu.Lock()
	tc.ports[name] = port
	tc.mu.Unlock()
	tc.Logger.Debug("Allocated port %d for %s", port, name)
	return port, nil
}

// Port returns a port allocated earlier under name.
func (tc *TestContext) Port(name string) (int, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	port, ok := tc.ports[name]
	return port, ok
}

// Ports returns a copy of the allocated ports by name.
func (tc *TestContext) Ports() map[string]int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return maps.Clone(tc.ports)
}

func (tc *TestContext) releasePorts() {
	if tc.Run == nil || tc.Run.Ports == nil {
		return
	}
	if n := tc.Run.Ports.ReleaseOwner(tc.Instance.Key()); n > 0 {
		tc.Logger.Debug("Released %d port(s)", n)
	}
}

// StartProcess starts a process owned by the instance. Unset fields of spec
// default to the instance's working directory, environment and output
// directory. Owned processes are killed after cleanup.
func (tc *TestContext) StartProcess(ctx context.Context, spec process.Spec) (*process.Process, error) {
	if spec.Dir == "" {
		spec.Dir = tc.Process.WorkDir
	}
	if spec.Env == nil {
		spec.Env = append([]string(nil), tc.Process.Env...)
	}
	if spec.LogDir == "" {
		spec.LogDir = tc.Process.OutputDir
	}
	p, err := tc.Process.Processes.Start(ctx, spec)
	if err != nil {
		return nil, err
	}
	tc.Logger.Debug("Started %s (pid %d)", p.Name, p.Pid())
	return p, nil
}

// RunProcess starts an owned process and waits for it to exit.
func (tc *TestContext) RunProcess(ctx context.Context, spec process.Spec) (*process.Process, int, error) {
	p, err := tc.StartProcess(ctx, spec)
	if err != nil {
		return nil, -1, err
	}
	code, err := p.Wait(ctx)
	tc.Logger.Debug("%s exited with code %d after %s", p.Name, code, p.Duration().Round(time.Millisecond))
	return p, code, err
}
