package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"rigor/pkg/logging"
)

// DefaultKillGrace is how long KillAll waits after a polite termination
// request before killing forcefully.
const DefaultKillGrace = 5 * time.Second

const pipeWaitDelay = 2 * time.Second

// Spec describes a process to start.
type Spec struct {
	// Name identifies the process in logs and names its output files.
	Name string
	// Command is a shell command line. Ignored when Args is set.
	Command string
	// Args, when non-empty, is executed directly.
	Args []string
	Dir  string
	// Env is the complete environment, in KEY=VALUE form.
	Env []string
	// LogDir receives <Name>.out and <Name>.err; empty keeps output in memory only.
	LogDir string
}

// Process is a started child process.
type Process struct {
	Name string

	cmd     *exec.Cmd
	capture *logCapture
	done    chan struct{}

	exitCode   int
	coreDumped bool
	waitErr    error
	started  time.Time
	finished time.Time
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Running reports whether the process has not yet exited.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited and its output is flushed.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the process exits or ctx is done. It returns the exit
// code; a process killed by a signal reports -1.
func (p *Process) Wait(ctx context.Context) (int, error) {
	select {
	case <-p.done:
		return p.exitCode, p.waitErr
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// CoreDumped reports whether the process died from a signal that produced
// a core dump. Only meaningful after Done is closed.
func (p *Process) CoreDumped() bool {
	select {
	case <-p.done:
		return p.coreDumped
	default:
		return false
	}
}

// Stdout returns everything written to stdout so far.
func (p *Process) Stdout() string { return p.capture.stdout() }

// Stderr returns everything written to stderr so far.
func (p *Process) Stderr() string { return p.capture.stderr() }

// Duration is the run time, or the time since start while still running.
func (p *Process) Duration() time.Duration {
	if p.Running() {
		return time.Since(p.started)
	}
	return p.finished.Sub(p.started)
}

func (p *Process) reap() {
	err := p.cmd.Wait()
	p.capture.close()
	p.finished = time.Now()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		p.exitCode = 0
	case errors.As(err, &exitErr):
		p.exitCode = exitErr.ExitCode()
		p.coreDumped = coreDumped(exitErr.ProcessState)
	default:
		p.exitCode = -1
		p.waitErr = err
	}
	close(p.done)
}

// Group tracks the processes started on behalf of one test instance.
type Group struct {
	owner string
	grace time.Duration

	mu    sync.Mutex
	procs []*Process
}

// NewGroup creates an empty group. A zero grace uses DefaultKillGrace.
func NewGroup(owner string, grace time.Duration) *Group {
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	return &Group{owner: owner, grace: grace}
}

// Start launches spec. The process is not bound to ctx; it runs until it
// exits or the group kills it.
func (g *Group) Start(ctx context.Context, spec Spec) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("process%d", g.Len()+1)
	}

	argv := spec.Args
	if len(argv) == 0 {
		if spec.Command == "" {
			return nil, fmt.Errorf("process %s: no command", spec.Name)
		}
		argv = shellCommand(spec.Command)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	// Grandchildren may hold the output pipes open after the child exits.
	cmd.WaitDelay = pipeWaitDelay
	configureProcAttr(cmd)

	var stdoutPath, stderrPath string
	if spec.LogDir != "" {
		stdoutPath = filepath.Join(spec.LogDir, spec.Name+".out")
		stderrPath = filepath.Join(spec.LogDir, spec.Name+".err")
	}
	capture, err := newLogCapture(stdoutPath, stderrPath)
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", spec.Name, err)
	}
	cmd.Stdout = capture.stdoutWriter
	cmd.Stderr = capture.stderrWriter

	if err := cmd.Start(); err != nil {
		capture.close()
		return nil, fmt.Errorf("starting %s: %w", spec.Name, err)
	}

	p := &Process{
		Name:    spec.Name,
		cmd:     cmd,
		capture: capture,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	go p.reap()

	g.mu.Lock()
	g.procs = append(g.procs, p)
	g.mu.Unlock()

	logging.Debug("Process", "%s started %s (pid %d)", g.owner, spec.Name, p.Pid())
	return p, nil
}

// Run starts spec and waits for it to exit.
func (g *Group) Run(ctx context.Context, spec Spec) (*Process, int, error) {
	p, err := g.Start(ctx, spec)
	if err != nil {
		return nil, -1, err
	}
	code, err := p.Wait(ctx)
	return p, code, err
}

// Len is the number of processes started so far.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.procs)
}

// Processes returns every process started so far, in start order.
func (g *Group) Processes() []*Process {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*Process(nil), g.procs...)
}

// KillAll terminates every process still running: a termination request
// first, then a forced kill after the grace period. It returns an error
// naming any process that could not be stopped.
func (g *Group) KillAll() error {
	var errs []error
	for _, p := range g.Processes() {
		if !p.Running() {
			continue
		}
		logging.Debug("Process", "%s terminating %s (pid %d)", g.owner, p.Name, p.Pid())
		if err := terminate(p.Pid()); err != nil {
			logging.Debug("Process", "Polite termination of %s failed: %v", p.Name, err)
		}

		timer := time.NewTimer(g.grace)
		select {
		case <-p.done:
			timer.Stop()
			continue
		case <-timer.C:
		}

		if err := forceKill(p.Pid()); err != nil {
			errs = append(errs, fmt.Errorf("killing %s (pid %d): %w", p.Name, p.Pid(), err))
			continue
		}
		select {
		case <-p.done:
		case <-time.After(g.grace):
			errs = append(errs, fmt.Errorf("%s (pid %d) did not exit after kill", p.Name, p.Pid()))
		}
	}
	return errors.Join(errs...)
}
