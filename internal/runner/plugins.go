package runner

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"rigor/internal/process"
)

// StaleProcessPlugin terminates processes left over from an earlier run
// that used the same output root, before any instance starts. Processes
// are matched by their command line mentioning the output root.
type StaleProcessPlugin struct {
	// Pattern overrides the pgrep pattern.
	Pattern string

	cleanup func(pattern string, rc *RunContext) int
}

// NewStaleProcessPlugin creates the plugin.
func NewStaleProcessPlugin() *StaleProcessPlugin {
	return &StaleProcessPlugin{cleanup: func(pattern string, rc *RunContext) int {
		return process.CleanupStale(pattern, rc.Logger)
	}}
}

func (p *StaleProcessPlugin) Setup(ctx context.Context, rc *RunContext) error {
	pattern := p.Pattern
	if pattern == "" {
		if rc.OutputRoot == "" {
			return nil
		}
		pattern = regexp.QuoteMeta(rc.OutputRoot)
	}
	if n := p.cleanup(pattern, rc); n > 0 {
		rc.Logger.Info("Terminated %d stale process(es) matching %s", n, pattern)
	}
	return nil
}

// ParamEnvPlugin exports the instance's mode parameters as environment
// variables RIGOR_PARAM_<KEY>, with the key upper-cased and anything other
// than letters, digits and underscores replaced by underscores.
type ParamEnvPlugin struct{}

const paramEnvPrefix = "RIGOR_PARAM_"

var envUnsafe = regexp.MustCompile(`[^A-Za-z0-9_]`)

func (ParamEnvPlugin) SetupTest(ctx context.Context, tc *TestContext) error {
	params := tc.Instance.Params().Map()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name := paramEnvPrefix + strings.ToUpper(envUnsafe.ReplaceAllString(k, "_"))
		tc.Process.Setenv(name, fmt.Sprint(params[k]))
	}
	return nil
}
