package runner

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rigor/internal/descriptor"
	"rigor/internal/modes"
	"rigor/internal/outcome"
	"rigor/internal/planner"
	"rigor/internal/ports"
	"rigor/internal/reporting"
	"rigor/internal/scheduler"
	"rigor/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDesc(id string, ms ...modes.ModeSpec) *descriptor.TestDescriptor {
	return &descriptor.TestDescriptor{
		ID:      id,
		Title:   id,
		File:    "/tests/" + id + "/rigortest.yaml",
		TestDir: "/tests/" + id,
		Type:    descriptor.TypeAuto,
		Modes:   modes.Config{Static: ms},
	}
}

func buildPlan(t *testing.T, abortOnError bool, descs ...*descriptor.TestDescriptor) *planner.RunPlan {
	t.Helper()
	plan, err := planner.Build(descs, planner.Selection{Modes: []string{"ALL"}}, planner.BuildOptions{
		Cycles:                  1,
		Threads:                 2,
		AbortOnError:            abortOnError,
		OutputRoot:              t.TempDir(),
		SecondaryModesHintDelta: 100,
	})
	require.NoError(t, err)
	return plan
}

func buildPlanWithType(t *testing.T, descs ...*descriptor.TestDescriptor) (*planner.RunPlan, error) {
	t.Helper()
	return planner.Build(descs, planner.Selection{Type: planner.TypeFilterAll}, planner.BuildOptions{
		Cycles:     1,
		Threads:    2,
		OutputRoot: t.TempDir(),
	})
}

type harness struct {
	coord    *Coordinator
	reporter *reporting.StructuredReporter
	pool     *ports.Pool
}

func newHarness(t *testing.T, factory TestFactory, mutate ...func(*Options)) *harness {
	t.Helper()
	pool, err := ports.NewPool(42000, 42099, time.Second)
	require.NoError(t, err)
	rep := reporting.NewStructuredReporter()
	opts := Options{
		Factory: factory,
		Scheduler: scheduler.Options{
			TimeoutGrace: 2 * time.Second,
			BaseEnv:      []string{"PATH=" + os.Getenv("PATH")},
		},
		Reporters: []reporting.Reporter{rep},
		Ports:     pool,
		Logger:    logging.NewSilentLogger(false, false),
	}
	for _, m := range mutate {
		m(&opts)
	}
	coord, err := NewCoordinator(opts)
	require.NoError(t, err)
	return &harness{coord: coord, reporter: rep, pool: pool}
}

// scriptedTest records the phases it runs and behaves per the hooks set.
type scriptedTest struct {
	mu     sync.Mutex
	phases []string

	setup, execute, validate, cleanup func(ctx context.Context, tc *TestContext) error
}

func (s *scriptedTest) step(name string, fn func(context.Context, *TestContext) error, ctx context.Context, tc *TestContext) error {
	s.mu.Lock()
	s.phases = append(s.phases, name)
	s.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, tc)
}

func (s *scriptedTest) Setup(ctx context.Context, tc *TestContext) error {
	return s.step("setup", s.setup, ctx, tc)
}

func (s *scriptedTest) Execute(ctx context.Context, tc *TestContext) error {
	return s.step("execute", s.execute, ctx, tc)
}

func (s *scriptedTest) Validate(ctx context.Context, tc *TestContext) error {
	return s.step("validate", s.validate, ctx, tc)
}

func (s *scriptedTest) Cleanup(ctx context.Context, tc *TestContext) error {
	return s.step("cleanup", s.cleanup, ctx, tc)
}

func (s *scriptedTest) ran() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.phases...)
}

func single(test Test) TestFactory {
	return TestFactoryFunc(func(planner.TestInstance) (Test, error) { return test, nil })
}

func runOne(t *testing.T, test Test, abortOnError bool) reporting.Result {
	t.Helper()
	h := newHarness(t, single(test))
	summary, err := h.coord.Run(context.Background(), buildPlan(t, abortOnError, newDesc("T")))
	require.NoError(t, err)
	require.Equal(t, 1, summary.Completed())
	res, ok := h.reporter.Result("T", 1)
	require.True(t, ok)
	return res
}

func TestRun_AllPhasesInOrder(t *testing.T) {
	test := &scriptedTest{}
	res := runOne(t, test, false)
	assert.Equal(t, outcome.Passed, res.Outcome)
	assert.Equal(t, []string{"setup", "execute", "validate", "cleanup"}, test.ran())
	assert.NotEmpty(t, res.LogFile)
}

func TestRun_SetupErrorBlocksAndStillCleansUp(t *testing.T) {
	test := &scriptedTest{setup: func(context.Context, *TestContext) error { return errors.New("no fixture") }}
	res := runOne(t, test, false)
	assert.Equal(t, outcome.Blocked, res.Outcome)
	assert.Equal(t, "setup: no fixture", res.Reason)
	assert.Equal(t, []string{"setup", "cleanup"}, test.ran())
}

func TestRun_PanicInExecuteStillCleansUp(t *testing.T) {
	test := &scriptedTest{execute: func(context.Context, *TestContext) error { panic("oops") }}
	res := runOne(t, test, false)
	assert.Equal(t, outcome.Blocked, res.Outcome)
	assert.Contains(t, res.Reason, "oops")
	assert.Equal(t, []string{"setup", "execute", "cleanup"}, test.ran())
}

func TestRun_FailureContinuesWithoutAbortOnError(t *testing.T) {
	test := &scriptedTest{execute: func(_ context.Context, tc *TestContext) error {
		tc.Failf("first")
		tc.Failf("second")
		return nil
	}}
	res := runOne(t, test, false)
	assert.Equal(t, outcome.Failed, res.Outcome)
	assert.Equal(t, "first (+1 more)", res.ReasonWithMore())
	assert.Equal(t, []string{"setup", "execute", "validate", "cleanup"}, test.ran())
}

func TestRun_AbortOnErrorSkipsRemainingPhases(t *testing.T) {
	test := &scriptedTest{execute: func(_ context.Context, tc *TestContext) error {
		tc.Failf("broken")
		return nil
	}}
	res := runOne(t, test, true)
	assert.Equal(t, outcome.Failed, res.Outcome)
	assert.Equal(t, []string{"setup", "execute", "cleanup"}, test.ran())
}

func TestRun_AbortAndSkipErrors(t *testing.T) {
	skip := &scriptedTest{setup: func(context.Context, *TestContext) error { return Skip("needs %s", "gpu") }}
	res := runOne(t, skip, false)
	assert.Equal(t, outcome.Skipped, res.Outcome)
	assert.Equal(t, "needs gpu", res.Reason)
	assert.Equal(t, []string{"setup", "cleanup"}, skip.ran())

	abort := &scriptedTest{execute: func(context.Context, *TestContext) error { return Abort(outcome.Inspect, "look at %d", 7) }}
	res = runOne(t, abort, false)
	assert.Equal(t, outcome.Inspect, res.Outcome)
	assert.Equal(t, "look at 7", res.Reason)
	assert.Equal(t, []string{"setup", "execute", "cleanup"}, abort.ran())

	var ae *AbortError
	require.True(t, errors.As(Abort(0, "x"), &ae))
	assert.Equal(t, outcome.Failed, ae.Outcome)
}

func TestRun_CleanupErrorBlocks(t *testing.T) {
	test := &scriptedTest{cleanup: func(context.Context, *TestContext) error { return errors.New("leaked") }}
	res := runOne(t, test, false)
	assert.Equal(t, outcome.Blocked, res.Outcome)
	assert.Equal(t, "cleanup: leaked", res.Reason)
}

func TestRun_CleanupRunsAfterTimeout(t *testing.T) {
	desc := newDesc("Slow")
	desc.Timeout = 50 * time.Millisecond
	cleaned := make(chan error, 1)
	test := &scriptedTest{
		execute: func(ctx context.Context, _ *TestContext) error {
			<-ctx.Done()
			return ctx.Err()
		},
		cleanup: func(ctx context.Context, _ *TestContext) error {
			cleaned <- ctx.Err()
			return nil
		},
	}

	h := newHarness(t, single(test))
	_, err := h.coord.Run(context.Background(), buildPlan(t, false, desc))
	require.NoError(t, err)

	res, ok := h.reporter.Result("Slow", 1)
	require.True(t, ok)
	assert.Equal(t, outcome.TimedOut, res.Outcome)
	assert.Equal(t, []string{"setup", "execute", "cleanup"}, test.ran())
	assert.NoError(t, <-cleaned, "cleanup gets a live context")
}

func TestRun_SlowCleanupAfterTimeoutIsWaitedFor(t *testing.T) {
	desc := newDesc("SlowCleanup")
	desc.Timeout = 50 * time.Millisecond
	var cleanupDone atomic.Bool
	test := &scriptedTest{
		execute: func(ctx context.Context, _ *TestContext) error {
			<-ctx.Done()
			time.Sleep(100 * time.Millisecond)
			return ctx.Err()
		},
		cleanup: func(ctx context.Context, _ *TestContext) error {
			select {
			case <-time.After(400 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
			cleanupDone.Store(true)
			return nil
		},
	}

	h := newHarness(t, single(test), func(o *Options) {
		o.Scheduler.TimeoutGrace = 200 * time.Millisecond
		o.CleanupTimeout = time.Second
	})
	_, err := h.coord.Run(context.Background(), buildPlan(t, false, desc))
	require.NoError(t, err)

	res, ok := h.reporter.Result("SlowCleanup", 1)
	require.True(t, ok)
	assert.Equal(t, outcome.TimedOut, res.Outcome, res.Reason)
	assert.True(t, cleanupDone.Load(), "result published only after cleanup finished")
}

func TestNewCoordinator_SchedulerWaitsForCleanupBudget(t *testing.T) {
	h := newHarness(t, single(&scriptedTest{}), func(o *Options) {
		o.CleanupTimeout = 3 * time.Second
	})
	assert.Equal(t, 3*time.Second, h.coord.opts.Scheduler.CleanupTimeout)

	h = newHarness(t, single(&scriptedTest{}))
	assert.Equal(t, 2*time.Second, h.coord.opts.CleanupTimeout)
	assert.Equal(t, 2*time.Second, h.coord.opts.Scheduler.CleanupTimeout)
}

func TestRun_SkippedDescriptor(t *testing.T) {
	desc := newDesc("Later")
	desc.Skipped = true
	desc.SkipReason = "flaky on arm"

	called := false
	h := newHarness(t, TestFactoryFunc(func(planner.TestInstance) (Test, error) {
		called = true
		return BaseTest{}, nil
	}))
	_, err := h.coord.Run(context.Background(), buildPlan(t, false, desc))
	require.NoError(t, err)

	res, ok := h.reporter.Result("Later", 1)
	require.True(t, ok)
	assert.Equal(t, outcome.Skipped, res.Outcome)
	assert.Equal(t, "flaky on arm", res.Reason)
	assert.False(t, called)
}

func TestRun_FactoryErrorBlocks(t *testing.T) {
	h := newHarness(t, TestFactoryFunc(func(planner.TestInstance) (Test, error) {
		return nil, errors.New("unknown kind")
	}))
	_, err := h.coord.Run(context.Background(), buildPlan(t, false, newDesc("T")))
	require.NoError(t, err)
	res, _ := h.reporter.Result("T", 1)
	assert.Equal(t, outcome.Blocked, res.Outcome)
	assert.Equal(t, "creating test: unknown kind", res.Reason)
}

func TestRun_PortsReleasedAfterInstance(t *testing.T) {
	var got []int
	var mu sync.Mutex
	factory := TestFactoryFunc(func(planner.TestInstance) (Test, error) {
		return &scriptedTest{execute: func(_ context.Context, tc *TestContext) error {
			a, err := tc.AllocatePort("server")
			if err != nil {
				return err
			}
			again, err := tc.AllocatePort("server")
			if err != nil {
				return err
			}
			if a != again {
				tc.Failf("port changed")
			}
			b, err := tc.AllocatePort("client")
			if err != nil {
				return err
			}
			mu.Lock()
			got = append(got, a, b)
			mu.Unlock()
			return nil
		}}, nil
	})

	h := newHarness(t, factory)
	summary, err := h.coord.Run(context.Background(), buildPlan(t, false, newDesc("A"), newDesc("B"), newDesc("C")))
	require.NoError(t, err)
	assert.True(t, summary.Success())
	assert.Len(t, got, 6)
	assert.Equal(t, 0, h.pool.Reserved())
}

type recordingPlugin struct {
	name string
	log  *[]string
	mu   *sync.Mutex
	err  error
}

func (p recordingPlugin) add(s string) {
	p.mu.Lock()
	*p.log = append(*p.log, s)
	p.mu.Unlock()
}

func (p recordingPlugin) Setup(context.Context, *RunContext) error {
	p.add("run-setup " + p.name)
	return p.err
}

func (p recordingPlugin) Teardown(context.Context, *RunContext) {
	p.add("run-teardown " + p.name)
}

func (p recordingPlugin) SetupTest(_ context.Context, tc *TestContext) error {
	p.add("test-setup " + p.name)
	tc.Process.Setenv("PLUGIN_"+p.name, "1")
	return p.err
}

func (p recordingPlugin) TeardownTest(context.Context, *TestContext) {
	p.add("test-teardown " + p.name)
}

func TestRun_PluginsInRegistrationOrder(t *testing.T) {
	var log []string
	var mu sync.Mutex
	a := recordingPlugin{name: "a", log: &log, mu: &mu}
	b := recordingPlugin{name: "b", log: &log, mu: &mu}

	var seen string
	test := &scriptedTest{execute: func(_ context.Context, tc *TestContext) error {
		seen = tc.Process.Getenv("PLUGIN_a") + tc.Process.Getenv("PLUGIN_b")
		return nil
	}}
	h := newHarness(t, single(test), func(o *Options) {
		o.RunnerPlugins = []RunnerPlugin{a, b}
		o.TestPlugins = []TestPlugin{a, b}
	})
	_, err := h.coord.Run(context.Background(), buildPlan(t, false, newDesc("T")))
	require.NoError(t, err)

	assert.Equal(t, "11", seen)
	assert.Equal(t, []string{
		"run-setup a", "run-setup b",
		"test-setup a", "test-setup b",
		"test-teardown b", "test-teardown a",
		"run-teardown b", "run-teardown a",
	}, log)
}

func TestRun_RunnerPluginErrorAbortsRun(t *testing.T) {
	var log []string
	var mu sync.Mutex
	a := recordingPlugin{name: "a", log: &log, mu: &mu}
	bad := recordingPlugin{name: "bad", log: &log, mu: &mu, err: errors.New("no cluster")}

	test := &scriptedTest{}
	h := newHarness(t, single(test), func(o *Options) { o.RunnerPlugins = []RunnerPlugin{a, bad} })
	summary, err := h.coord.Run(context.Background(), buildPlan(t, false, newDesc("T")))
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Contains(t, err.Error(), "no cluster")
	assert.Empty(t, test.ran())
	assert.Equal(t, []string{"run-setup a", "run-setup bad", "run-teardown a"}, log)
}

func TestRun_TestPluginErrorBlocksInstance(t *testing.T) {
	var log []string
	var mu sync.Mutex
	bad := recordingPlugin{name: "bad", log: &log, mu: &mu, err: errors.New("no db")}

	test := &scriptedTest{}
	res := func() reporting.Result {
		h := newHarness(t, single(test), func(o *Options) { o.TestPlugins = []TestPlugin{bad} })
		_, err := h.coord.Run(context.Background(), buildPlan(t, false, newDesc("T")))
		require.NoError(t, err)
		r, _ := h.reporter.Result("T", 1)
		return r
	}()
	assert.Equal(t, outcome.Blocked, res.Outcome)
	assert.Contains(t, res.Reason, "no db")
	assert.Empty(t, test.ran())
}

func TestRun_SummaryInPlanOrder(t *testing.T) {
	x := modes.NewMode("X").WithPrimary(true)
	y := modes.NewMode("Y")
	factory := TestFactoryFunc(func(inst planner.TestInstance) (Test, error) {
		return &scriptedTest{execute: func(_ context.Context, tc *TestContext) error {
			if inst.Mode != nil && inst.Mode.Name == "Y" {
				time.Sleep(20 * time.Millisecond)
				tc.Failf("bad y")
			}
			if inst.Descriptor.ID == "C" {
				tc.AddOutcome(outcome.TimedOut, "slow")
			}
			return nil
		}}, nil
	})

	h := newHarness(t, factory)
	plan := buildPlan(t, false, newDesc("A", x, y), newDesc("B"), newDesc("C"))
	summary, err := h.coord.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, plan.Len(), summary.Completed())
	assert.Equal(t, []string{"C", "A~Y"}, summary.FailingIDs())
	assert.Equal(t, outcome.ExitFailures, summary.ExitCode())

	var order []string
	for _, r := range h.reporter.Results() {
		order = append(order, r.DisplayID)
	}
	assert.Equal(t, []string{"A~X", "B", "C", "A~Y"}, order)
	assert.Same(t, summary, h.reporter.Summary())
}

func TestRun_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{}, 8)
	factory := TestFactoryFunc(func(planner.TestInstance) (Test, error) {
		return &scriptedTest{execute: func(ctx context.Context, _ *TestContext) error {
			started <- struct{}{}
			<-ctx.Done()
			return ctx.Err()
		}}, nil
	})

	h := newHarness(t, factory)
	plan := buildPlan(t, false, newDesc("A"), newDesc("B"), newDesc("C"), newDesc("D"), newDesc("E"))

	go func() {
		<-started
		<-started
		cancel()
	}()
	summary, err := h.coord.Run(ctx, plan)
	require.NoError(t, err)

	assert.True(t, summary.Interrupted)
	assert.Equal(t, outcome.ExitInterrupted, summary.ExitCode())
	assert.Equal(t, 2, summary.Completed())
	assert.Equal(t, 5, summary.Planned)
	for _, r := range summary.Records {
		assert.Equal(t, outcome.Blocked, r.Final.Outcome)
		assert.Equal(t, "interrupted", r.Final.Reason)
	}
}
