package runner

import (
	"context"
	"testing"

	"rigor/internal/modes"
	"rigor/internal/planner"
	"rigor/internal/scheduler"
	"rigor/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaleProcessPlugin(t *testing.T) {
	var patterns []string
	p := NewStaleProcessPlugin()
	p.cleanup = func(pattern string, rc *RunContext) int {
		patterns = append(patterns, pattern)
		return 2
	}
	rc := &RunContext{OutputRoot: "/tmp/rigor-output", Logger: logging.NewSilentLogger(false, false)}

	require.NoError(t, p.Setup(context.Background(), rc))
	assert.Equal(t, []string{`/tmp/rigor-output`}, patterns)

	rc.OutputRoot = "/tmp/out (1)"
	require.NoError(t, p.Setup(context.Background(), rc))
	assert.Equal(t, `/tmp/out \(1\)`, patterns[1])

	rc.OutputRoot = ""
	require.NoError(t, p.Setup(context.Background(), rc))
	assert.Len(t, patterns, 2)

	p.Pattern = "my-server --test"
	require.NoError(t, p.Setup(context.Background(), rc))
	assert.Equal(t, "my-server --test", patterns[2])
}

func TestParamEnvPlugin(t *testing.T) {
	mode := modes.NewMode("Big", modes.Param{Key: "size", Value: 64}, modes.Param{Key: "io-depth", Value: "deep"})
	tc := &TestContext{
		Instance: planner.TestInstance{Mode: &mode},
		Process:  &scheduler.ProcessContext{Env: []string{"A=1"}},
	}
	require.NoError(t, ParamEnvPlugin{}.SetupTest(context.Background(), tc))
	assert.Equal(t, "64", tc.Process.Getenv("RIGOR_PARAM_SIZE"))
	assert.Equal(t, "deep", tc.Process.Getenv("RIGOR_PARAM_IO_DEPTH"))
	assert.Equal(t, "1", tc.Process.Getenv("A"))

	plain := &TestContext{Process: &scheduler.ProcessContext{}}
	require.NoError(t, ParamEnvPlugin{}.SetupTest(context.Background(), plain))
	assert.Empty(t, plain.Process.Env)
}
