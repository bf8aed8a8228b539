package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"rigor/internal/config"
	"rigor/internal/outcome"
	"rigor/internal/planner"
	"rigor/internal/ports"
	"rigor/internal/reporting"
	"rigor/internal/scheduler"
	"rigor/pkg/logging"

	"github.com/google/uuid"
)

// Options configures a Coordinator.
type Options struct {
	// Factory creates the test for each instance; nil uses CommandTestFactory.
	Factory       TestFactory
	Scheduler     scheduler.Options
	Reporters     []reporting.Reporter
	RunnerPlugins []RunnerPlugin
	TestPlugins   []TestPlugin
	// Ports is shared by all instances; nil builds one from the default range.
	Ports *ports.Pool
	// Logger receives per-instance messages; nil logs to stdout at the
	// default level.
	Logger logging.TestLogger
	// CleanupTimeout bounds the cleanup phase and test plugin teardown,
	// which run even after the instance context has ended. Zero uses the
	// scheduler's timeout grace.
	CleanupTimeout time.Duration
}

// Coordinator runs plans.
type Coordinator struct {
	opts      Options
	scheduler *scheduler.Scheduler
	reporters reporting.Multi
}

// NewCoordinator validates opts and builds a Coordinator.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = opts.Scheduler.TimeoutGrace
		if opts.CleanupTimeout <= 0 {
			opts.CleanupTimeout = config.DefaultTimeoutGrace
		}
	}
	// A timed-out instance is only abandoned once its cleanup budget is spent too.
	opts.Scheduler.CleanupTimeout = max(opts.Scheduler.CleanupTimeout, opts.CleanupTimeout)
	sched, err := scheduler.New(opts.Scheduler)
	if err != nil {
		return nil, err
	}
	if opts.Factory == nil {
		opts.Factory = NewCommandTestFactory()
	}
	if opts.Ports == nil {
		pool, err := ports.NewPool(config.DefaultPortMin, config.DefaultPortMax, config.DefaultPortWaitTimeout)
		if err != nil {
			return nil, err
		}
		opts.Ports = pool
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewStdoutLogger(false, false)
	}
	return &Coordinator{opts: opts, scheduler: sched, reporters: reporting.Multi(opts.Reporters)}, nil
}

// Run executes plan and returns the summary of every completed instance.
// Results reach the reporters in plan order. An error is returned only when
// the run could not start; test failures are reported through the summary.
func (c *Coordinator) Run(ctx context.Context, plan *planner.RunPlan) (*outcome.Summary, error) {
	rc := &RunContext{
		RunID:      uuid.NewString(),
		Plan:       plan,
		Ports:      c.opts.Ports,
		OutputRoot: plan.OutputRoot(),
		Logger:     c.opts.Logger,
	}
	logging.Info("Runner", "Starting run %s with %d instances", rc.RunID, plan.Len())

	active, err := c.setupRunnerPlugins(ctx, rc)
	defer c.teardownRunnerPlugins(rc, active)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	c.reporters.ReportStart(reporting.RunInfo{
		RunID:      rc.RunID,
		Started:    start,
		Planned:    plan.Len(),
		Threads:    scheduler.Workers(plan),
		Cycles:     plan.Cycles(),
		OutputRoot: plan.OutputRoot(),
	})

	summary := outcome.NewSummary(plan.Len())
	exec := scheduler.ExecutorFunc(func(ctx context.Context, inst planner.TestInstance, pc *scheduler.ProcessContext, rec scheduler.Recorder) error {
		return c.runInstance(ctx, rc, plan.AbortOnError(), inst, pc, rec)
	})
	for res := range c.scheduler.Run(ctx, plan, exec) {
		summary.Add(outcome.ResultRecord{
			PlanIndex: res.Instance.PlanIndex,
			DisplayID: res.Instance.DisplayID(),
			Cycle:     res.Instance.Cycle,
			Final:     res.Final,
			Duration:  res.Duration,
		})
		c.reporters.ReportResult(toResult(res))
	}
	summary.Duration = time.Since(start)
	summary.Interrupted = ctx.Err() != nil

	if summary.Interrupted {
		logging.Warn("Runner", "Run %s interrupted: %d of %d instances completed", rc.RunID, summary.Completed(), plan.Len())
	}
	c.reporters.ReportSummary(summary)
	return summary, nil
}

func (c *Coordinator) setupRunnerPlugins(ctx context.Context, rc *RunContext) ([]RunnerPlugin, error) {
	var active []RunnerPlugin
	for _, p := range c.opts.RunnerPlugins {
		if err := p.Setup(ctx, rc); err != nil {
			return active, fmt.Errorf("runner plugin %T: %w", p, err)
		}
		active = append(active, p)
	}
	return active, nil
}

func (c *Coordinator) teardownRunnerPlugins(rc *RunContext, active []RunnerPlugin) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CleanupTimeout)
	defer cancel()
	for i := len(active) - 1; i >= 0; i-- {
		if td, ok := active[i].(RunnerTeardown); ok {
			td.Teardown(ctx, rc)
		}
	}
}

type phase struct {
	name string
	fn   func(context.Context, *TestContext) error
}

// runInstance is the scheduler executor: plugins, then the four phases.
func (c *Coordinator) runInstance(ctx context.Context, rc *RunContext, abortOnError bool, inst planner.TestInstance, pc *scheduler.ProcessContext, rec scheduler.Recorder) error {
	d := inst.Descriptor
	if d.Skipped {
		reason := d.SkipReason
		if reason == "" {
			reason = "skipped"
		}
		rec.Record(outcome.Event{Outcome: outcome.Skipped, Reason: reason})
		return nil
	}

	logger := logging.NewPrefixLogger(c.opts.Logger, inst.DisplayID(), pc.RunLog)
	tc := newTestContext(ctx, rc, inst, pc, rec, logger)
	defer tc.releasePorts()

	aborted := false
	var plugins []TestPlugin
	for _, p := range c.opts.TestPlugins {
		if err := p.SetupTest(ctx, tc); err != nil {
			c.recordPhaseError(ctx, tc, fmt.Sprintf("plugin %T", p), err)
			aborted = true
			break
		}
		plugins = append(plugins, p)
	}

	var test Test
	if !aborted {
		var err error
		if test, err = c.opts.Factory.NewTest(inst); err != nil {
			tc.AddOutcome(outcome.Blocked, fmt.Sprintf("creating test: %v", err))
			aborted = true
		}
	}

	if test != nil {
		for _, ph := range []phase{{"setup", test.Setup}, {"execute", test.Execute}, {"validate", test.Validate}} {
			if aborted || ctx.Err() != nil {
				break
			}
			if err := runPhase(ctx, tc, ph); err != nil {
				c.recordPhaseError(ctx, tc, ph.name, err)
				aborted = true
				break
			}
			if abortOnError && tc.failed() {
				logger.Info("Skipping remaining phases after %s failure", ph.name)
				aborted = true
			}
		}
	}

	// Cleanup and plugin teardown share one budget, which the scheduler
	// waits out before abandoning a cancelled instance.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CleanupTimeout)
	defer cancel()
	if test != nil {
		if err := runPhase(cleanupCtx, tc, phase{"cleanup", test.Cleanup}); err != nil {
			c.recordPhaseError(cleanupCtx, tc, "cleanup", err)
		}
	}

	if err := pc.Processes.KillAll(); err != nil {
		tc.AddOutcome(outcome.Blocked, fmt.Sprintf("stopping processes after cleanup: %v", err))
	}
	c.teardownTestPlugins(cleanupCtx, tc, plugins)
	return nil
}

func (c *Coordinator) teardownTestPlugins(ctx context.Context, tc *TestContext, plugins []TestPlugin) {
	for i := len(plugins) - 1; i >= 0; i-- {
		if td, ok := plugins[i].(TestTeardown); ok {
			td.TeardownTest(ctx, tc)
		}
	}
}

// runPhase runs one phase, converting a panic into an error.
func runPhase(ctx context.Context, tc *TestContext, ph phase) (err error) {
	defer func() {
		if r := recover(); r != nil {
			tc.Logger.Error("Panic in %s: %v\n%s", ph.name, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	tc.Logger.Debug("Phase %s", ph.name)
	return ph.fn(ctx, tc)
}

// recordPhaseError classifies a phase error. Errors caused by the instance
// context ending are left to the scheduler, which records the timeout or
// interruption itself.
func (c *Coordinator) recordPhaseError(ctx context.Context, tc *TestContext, name string, err error) {
	var abort *AbortError
	switch {
	case errors.As(err, &abort):
		tc.AddOutcome(abort.Outcome, abort.Reason)
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		tc.Logger.Debug("%s stopped: %v", name, err)
	default:
		tc.Logger.Error("%s failed: %v", name, err)
		tc.AddOutcome(outcome.Blocked, fmt.Sprintf("%s: %v", name, err))
	}
}

func toResult(res scheduler.InstanceResult) reporting.Result {
	inst := res.Instance
	r := reporting.Result{
		PlanIndex:  inst.PlanIndex,
		DisplayID:  inst.DisplayID(),
		ID:         inst.Descriptor.ID,
		Title:      inst.Descriptor.Title,
		Cycle:      inst.Cycle,
		Groups:     inst.Descriptor.Groups,
		Outcome:    res.Final.Outcome,
		Reason:     res.Final.Reason,
		Additional: res.Final.Additional,
		Start:      res.Start,
		Duration:   res.Duration,
		OutputDir:  res.OutputDir,
		LogFile:    res.LogFile,
	}
	if inst.Mode != nil {
		r.Mode = inst.Mode.Name
		r.Params = inst.Mode.Params.String()
	}
	return r
}
