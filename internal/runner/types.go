package runner

import (
	"context"

	"rigor/internal/planner"
	"rigor/internal/ports"
	"rigor/pkg/logging"
)

// Test is one instance's test logic. Phases run in order; Cleanup runs
// whatever happened before it.
type Test interface {
	Setup(ctx context.Context, tc *TestContext) error
	Execute(ctx context.Context, tc *TestContext) error
	Validate(ctx context.Context, tc *TestContext) error
	Cleanup(ctx context.Context, tc *TestContext) error
}

// BaseTest implements every phase as a no-op, for embedding.
type BaseTest struct{}

func (BaseTest) Setup(context.Context, *TestContext) error    { return nil }
func (BaseTest) Execute(context.Context, *TestContext) error  { return nil }
func (BaseTest) Validate(context.Context, *TestContext) error { return nil }
func (BaseTest) Cleanup(context.Context, *TestContext) error  { return nil }

// TestFactory creates the Test for an instance.
type TestFactory interface {
	NewTest(inst planner.TestInstance) (Test, error)
}

// TestFactoryFunc adapts a function to TestFactory.
type TestFactoryFunc func(inst planner.TestInstance) (Test, error)

func (f TestFactoryFunc) NewTest(inst planner.TestInstance) (Test, error) { return f(inst) }

// RunContext is shared by every instance of one run.
type RunContext struct {
	RunID      string
	Plan       *planner.RunPlan
	Ports      *ports.Pool
	OutputRoot string
	Logger     logging.TestLogger
}

// RunnerPlugin is set up once before any instance runs. A setup error
// aborts the run.
type RunnerPlugin interface {
	Setup(ctx context.Context, rc *RunContext) error
}

// RunnerTeardown is implemented by runner plugins that release resources
// after the last result is published.
type RunnerTeardown interface {
	Teardown(ctx context.Context, rc *RunContext)
}

// TestPlugin is set up for every instance before the test's own setup
// phase. A setup error blocks the instance.
type TestPlugin interface {
	SetupTest(ctx context.Context, tc *TestContext) error
}

// TestTeardown is implemented by test plugins that need to run after the
// cleanup phase.
type TestTeardown interface {
	TeardownTest(ctx context.Context, tc *TestContext)
}
