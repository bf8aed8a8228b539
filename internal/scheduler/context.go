package scheduler

import (
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"rigor/internal/process"
	"rigor/pkg/logging"
)

// Environment variables every instance receives.
const (
	EnvOutputDir = "RIGOR_OUTPUT_DIR"
	EnvTestID    = "RIGOR_TEST_ID"
	EnvMode      = "RIGOR_MODE"
	EnvCycle     = "RIGOR_CYCLE"
)

// ProcessContext is the isolated execution environment of one instance. Test
// logic must use it instead of the process-wide working directory and
// environment.
type ProcessContext struct {
	// WorkDir is where child processes start; it is the output directory.
	WorkDir   string
	OutputDir string
	// TestDir holds the descriptor and any test resources.
	TestDir string
	// Env is this instance's private environment in KEY=VALUE form.
	Env       []string
	Processes *process.Group
	// RunLog receives the instance's run.log entries.
	RunLog io.Writer
}

// Getenv returns a variable from the instance environment.
func (pc *ProcessContext) Getenv(key string) string {
	prefix := key + "="
	for i := len(pc.Env) - 1; i >= 0; i-- {
		if strings.HasPrefix(pc.Env[i], prefix) {
			return pc.Env[i][len(prefix):]
		}
	}
	return ""
}

// Setenv sets a variable in the instance environment only.
func (pc *ProcessContext) Setenv(key, value string) {
	prefix := key + "="
	for i, kv := range pc.Env {
		if strings.HasPrefix(kv, prefix) {
			pc.Env[i] = prefix + value
			return
		}
	}
	pc.Env = append(pc.Env, prefix+value)
}

// processSnapshot captures the process-wide state tests must not modify.
type processSnapshot struct {
	cwd     string
	env     map[string]string
	environ []string
}

func takeSnapshot() processSnapshot {
	cwd, _ := os.Getwd()
	environ := os.Environ()
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	return processSnapshot{cwd: cwd, env: env, environ: environ}
}

// diff describes how now differs from s; empty means unchanged.
func (s processSnapshot) diff(now processSnapshot) (cwdChanged bool, envKeys []string) {
	cwdChanged = s.cwd != now.cwd
	for k, v := range s.env {
		if nv, ok := now.env[k]; !ok || nv != v {
			envKeys = append(envKeys, k)
		}
	}
	for k := range now.env {
		if _, ok := s.env[k]; !ok {
			envKeys = append(envKeys, k)
		}
	}
	sort.Strings(envKeys)
	return cwdChanged, envKeys
}

// restore puts the working directory and the given keys back as they were.
func (s processSnapshot) restore(cwdChanged bool, envKeys []string) {
	if cwdChanged && s.cwd != "" {
		_ = os.Chdir(s.cwd)
	}
	for _, k := range envKeys {
		if v, ok := s.env[k]; ok {
			_ = os.Setenv(k, v)
		} else {
			_ = os.Unsetenv(k)
		}
	}
}

// mutationGuard watches the process-wide working directory and environment
// for one run. The baseline is taken before dispatch; every instance start
// and end is a checkpoint comparing the live state with it. A change found
// at a checkpoint happened while exactly the instances now in flight were
// running, so each of them is charged and the baseline is restored.
type mutationGuard struct {
	mu       sync.Mutex
	baseline processSnapshot
	inflight map[string]string // key -> display id
	charges  map[string]string // key -> reason
}

func newMutationGuard() *mutationGuard {
	return &mutationGuard{
		baseline: takeSnapshot(),
		inflight: map[string]string{},
		charges:  map[string]string{},
	}
}

// Environ is the baseline environment in KEY=VALUE form.
func (g *mutationGuard) Environ() []string {
	return g.baseline.environ
}

func (g *mutationGuard) enter(key, displayID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkLocked()
	g.inflight[key] = displayID
}

// leave runs the final checkpoint for key and returns the reason it was
// charged with, if any.
func (g *mutationGuard) leave(key string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checkLocked()
	delete(g.inflight, key)
	reason, ok := g.charges[key]
	delete(g.charges, key)
	return reason, ok
}

func (g *mutationGuard) checkLocked() {
	cwdChanged, envKeys := g.baseline.diff(takeSnapshot())
	if !cwdChanged && len(envKeys) == 0 {
		return
	}

	var what []string
	if cwdChanged {
		what = append(what, "working directory")
	}
	if len(envKeys) > 0 {
		what = append(what, "environment ("+strings.Join(envKeys, ", ")+")")
	}
	change := strings.Join(what, " and ")

	suspects := make([]string, 0, len(g.inflight))
	for _, id := range g.inflight {
		suspects = append(suspects, id)
	}
	sort.Strings(suspects)

	for key, id := range g.inflight {
		if _, charged := g.charges[key]; charged {
			continue
		}
		var others []string
		for _, s := range suspects {
			if s != id {
				others = append(others, s)
			}
		}
		if len(others) == 0 {
			g.charges[key] = "test modified the process-wide " + change
		} else {
			g.charges[key] = "process-wide " + change + " modified while running alongside " + strings.Join(others, ", ")
		}
	}

	if len(suspects) == 0 {
		logging.Warn("Scheduler", "Process-wide %s changed between instances, restoring", change)
	} else {
		logging.Warn("Scheduler", "Process-wide %s changed while running %s, restoring", change, strings.Join(suspects, ", "))
	}
	g.baseline.restore(cwdChanged, envKeys)
}
