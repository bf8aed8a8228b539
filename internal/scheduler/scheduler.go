package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"

	"rigor/internal/outcome"
	"rigor/internal/planner"
	"rigor/internal/process"
	"rigor/pkg/logging"

	"golang.org/x/sync/semaphore"
)

// RunLogName is the per-instance log file written into the output directory.
const RunLogName = "run.log"

// Recorder accepts outcome events for the instance being executed.
type Recorder interface {
	Record(ev outcome.Event)
}

// Executor runs one instance. It records outcome events through rec and
// returns an error only for faults it could not classify, which become
// BLOCKED. It must respect ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, inst planner.TestInstance, pc *ProcessContext, rec Recorder) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, inst planner.TestInstance, pc *ProcessContext, rec Recorder) error

func (f ExecutorFunc) Execute(ctx context.Context, inst planner.TestInstance, pc *ProcessContext, rec Recorder) error {
	return f(ctx, inst, pc, rec)
}

// InstanceResult is the final result of one instance.
type InstanceResult struct {
	Instance  planner.TestInstance
	Final     outcome.Final
	Start     time.Time
	Duration  time.Duration
	OutputDir string
	LogFile   string
}

// Options configures a Scheduler.
type Options struct {
	// DefaultTimeout applies to descriptors without their own timeout.
	DefaultTimeout time.Duration
	// TimeoutGrace is how long a timed-out or interrupted executor gets to
	// return before it is abandoned.
	TimeoutGrace time.Duration
	// CleanupTimeout is the cleanup budget the executor may spend after its
	// context ends; it extends the abandonment wait beyond TimeoutGrace.
	CleanupTimeout time.Duration
	// KillGrace is passed to each instance's process group.
	KillGrace time.Duration
	// OutputSubdirTemplate is a sprig template for the per-instance directory.
	OutputSubdirTemplate string
	// BaseEnv seeds every instance environment; nil means the environment
	// as it was when the run started.
	BaseEnv []string
}

// Scheduler runs plans.
type Scheduler struct {
	opts    Options
	outTmpl *template.Template
}

// New validates opts and creates a Scheduler.
func New(opts Options) (*Scheduler, error) {
	tmpl, err := parseOutputTemplate(opts.OutputSubdirTemplate)
	if err != nil {
		return nil, fmt.Errorf("output directory template: %w", err)
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 10 * time.Minute
	}
	if opts.TimeoutGrace <= 0 {
		opts.TimeoutGrace = 10 * time.Second
	}
	return &Scheduler{opts: opts, outTmpl: tmpl}, nil
}

// Workers is the pool size used for plan: its thread count, resolved
// automatically when unset, and always one for a single-instance plan.
func Workers(plan *planner.RunPlan) int {
	if plan.Len() == 1 {
		return 1
	}
	workers := plan.Threads()
	if workers <= 0 {
		n, err := Threads("auto")
		if err != nil {
			logging.Warn("Scheduler", "Ignoring %s: %v", EnvThreads, err)
			n, _ = ResolveThreads("auto", "", 0)
		}
		workers = n
	}
	return workers
}

// Run executes plan and returns a channel delivering every completed
// instance once, in plan order. The channel is closed when the run is over.
// After cancellation of ctx, instances that were never dispatched are not
// delivered.
func (s *Scheduler) Run(ctx context.Context, plan *planner.RunPlan, exec Executor) <-chan InstanceResult {
	results := make(chan InstanceResult, plan.Len())
	completed := make(chan InstanceResult, plan.Len())

	workers := Workers(plan)
	logging.Info("Scheduler", "Running %d instances with %d workers", plan.Len(), workers)

	guard := newMutationGuard()
	go s.dispatch(ctx, plan, exec, workers, guard, completed)
	go reorder(completed, results)
	return results
}

func (s *Scheduler) dispatch(ctx context.Context, plan *planner.RunPlan, exec Executor, workers int, guard *mutationGuard, completed chan<- InstanceResult) {
	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup

	for i := 0; i < plan.Len(); i++ {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if ctx.Err() != nil {
			sem.Release(1)
			break
		}

		inst := plan.At(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			completed <- s.runInstance(ctx, inst, plan.Cycles(), plan.OutputRoot(), exec, guard)
		}()
	}

	if ctx.Err() != nil {
		logging.Info("Scheduler", "Dispatch stopped: %v", ctx.Err())
	}
	wg.Wait()
	close(completed)
}

// reorder forwards results in plan order. Whatever is still buffered when
// in closes (gaps left by undispatched instances) is flushed in plan order.
func reorder(in <-chan InstanceResult, out chan<- InstanceResult) {
	defer close(out)

	pending := map[int]InstanceResult{}
	next := 0
	for r := range in {
		pending[r.Instance.PlanIndex] = r
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			out <- ready
			delete(pending, next)
			next++
		}
	}

	rest := make([]int, 0, len(pending))
	for idx := range pending {
		rest = append(rest, idx)
	}
	sort.Ints(rest)
	for _, idx := range rest {
		out <- pending[idx]
	}
}

type instanceRecorder struct {
	agg *outcome.Aggregator
	key string
	log *syncWriter
}

func (r *instanceRecorder) Record(ev outcome.Event) {
	if err := r.agg.Record(r.key, ev); err != nil {
		logging.Debug("Scheduler", "Dropped late outcome for %s: %v", r.key, err)
		return
	}
	r.log.printf("OUTCOME %s %s", ev.Outcome, ev.Reason)
}

func (s *Scheduler) runInstance(ctx context.Context, inst planner.TestInstance, cycles int, outputRoot string, exec Executor, guard *mutationGuard) InstanceResult {
	start := time.Now()
	key := inst.Key()
	agg := outcome.NewAggregator()

	result := InstanceResult{Instance: inst, Start: start}
	finish := func(clean bool) InstanceResult {
		final, err := agg.Finalize(key, clean)
		if err != nil {
			final = outcome.Final{Outcome: outcome.Blocked, Reason: err.Error()}
		}
		result.Final = final
		result.Duration = time.Since(start)
		return result
	}

	dir, err := outputDir(s.outTmpl, outputRoot, inst, cycles)
	if err == nil {
		err = purge(dir)
	}
	if err != nil {
		_ = agg.Record(key, outcome.Event{Outcome: outcome.Blocked, Reason: fmt.Sprintf("preparing output directory: %v", err)})
		return finish(false)
	}
	result.OutputDir = dir
	result.LogFile = filepath.Join(dir, RunLogName)

	logFile, err := os.Create(result.LogFile)
	if err != nil {
		_ = agg.Record(key, outcome.Event{Outcome: outcome.Blocked, Reason: fmt.Sprintf("creating run log: %v", err)})
		return finish(false)
	}
	runLog := &syncWriter{w: logFile}
	defer logFile.Close()

	pc := &ProcessContext{
		WorkDir:   dir,
		OutputDir: dir,
		TestDir:   inst.Descriptor.TestDir,
		Env:       s.instanceEnv(inst, dir, guard.Environ()),
		Processes: process.NewGroup(key, s.opts.KillGrace),
		RunLog:    runLog,
	}
	rec := &instanceRecorder{agg: agg, key: key, log: runLog}
	runLog.printf("START %s cycle %d in %s", inst.DisplayID(), inst.Cycle, dir)

	timeout := inst.Descriptor.Timeout
	if timeout <= 0 {
		timeout = s.opts.DefaultTimeout
	}
	instCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	guard.enter(key, inst.DisplayID())
	clean := s.execute(ctx, instCtx, exec, inst, pc, rec, timeout)

	if err := pc.Processes.KillAll(); err != nil {
		rec.Record(outcome.Event{Outcome: outcome.Blocked, Reason: fmt.Sprintf("could not stop owned processes: %v", err)})
	}
	if reason, charged := guard.leave(key); charged {
		rec.Record(outcome.Event{Outcome: outcome.Blocked, Reason: reason})
	}

	res := finish(clean)
	runLog.printf("END %s %s", res.Final.Outcome, res.Final.ReasonWithMore())
	return res
}

// execute runs the executor under the instance context and reports whether
// it finished without an unclassified fault.
func (s *Scheduler) execute(runCtx, instCtx context.Context, exec Executor, inst planner.TestInstance, pc *ProcessContext, rec *instanceRecorder, timeout time.Duration) bool {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("Scheduler", fmt.Errorf("%v", r), "Panic while running %s\n%s", inst.Key(), debug.Stack())
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- exec.Execute(instCtx, inst, pc, rec)
	}()

	select {
	case err := <-done:
		s.noteContextEnd(runCtx, instCtx, rec, timeout)
		if err != nil && instCtx.Err() == nil {
			rec.Record(outcome.Event{Outcome: outcome.Blocked, Reason: err.Error()})
			return false
		}
		return true
	case <-instCtx.Done():
	}

	s.noteContextEnd(runCtx, instCtx, rec, timeout)
	if err := pc.Processes.KillAll(); err != nil {
		rec.Record(outcome.Event{Outcome: outcome.Blocked, Reason: fmt.Sprintf("could not stop owned processes: %v", err)})
	}

	wait := s.abandonAfter()
	grace := time.NewTimer(wait)
	defer grace.Stop()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			rec.Record(outcome.Event{Outcome: outcome.Blocked, Reason: err.Error()})
		}
		return true
	case <-grace.C:
		logging.Error("Scheduler", nil, "Abandoning %s: executor did not return within %s", inst.Key(), wait)
		rec.Record(outcome.Event{Outcome: outcome.Blocked, Reason: fmt.Sprintf("did not stop within %s of being cancelled", wait)})
		return false
	}
}

// abandonAfter is how long a cancelled executor may take to return.
func (s *Scheduler) abandonAfter() time.Duration {
	return s.opts.TimeoutGrace + max(s.opts.CleanupTimeout, 0)
}

// noteContextEnd records why the instance context ended, if it did.
func (s *Scheduler) noteContextEnd(runCtx, instCtx context.Context, rec *instanceRecorder, timeout time.Duration) {
	switch {
	case instCtx.Err() == nil:
	case runCtx.Err() != nil:
		if worst, ok := rec.agg.Worst(rec.key); !ok || worst.Outcome != outcome.Blocked {
			rec.Record(outcome.Event{Outcome: outcome.Blocked, Reason: "interrupted"})
		}
	case errors.Is(instCtx.Err(), context.DeadlineExceeded):
		rec.Record(outcome.Event{Outcome: outcome.TimedOut, Reason: fmt.Sprintf("timed out after %s", timeout)})
	}
}

// instanceEnv seeds the instance environment from BaseEnv, or from the
// run's baseline so that a sibling's process-wide change never leaks in.
func (s *Scheduler) instanceEnv(inst planner.TestInstance, dir string, baseline []string) []string {
	base := s.opts.BaseEnv
	if base == nil {
		base = baseline
	}
	env := make([]string, len(base), len(base)+4)
	copy(env, base)

	pc := &ProcessContext{Env: env}
	pc.Setenv(EnvOutputDir, dir)
	pc.Setenv(EnvTestID, inst.Descriptor.ID)
	mode := ""
	if inst.Mode != nil {
		mode = inst.Mode.Name
	}
	pc.Setenv(EnvMode, mode)
	pc.Setenv(EnvCycle, strconv.Itoa(inst.Cycle))
	return pc.Env
}

// syncWriter serializes writes to the run log from concurrent helpers.
type syncWriter struct {
	mu sync.Mutex
	w  *os.File
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

func (w *syncWriter) printf(format string, args ...any) {
	line := time.Now().Format("15:04:05.000") + " " + fmt.Sprintf(format, args...)
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, _ = w.Write([]byte(line))
}
