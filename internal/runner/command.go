package runner

import (
	"context"
	"fmt"
	"strings"

	"rigor/internal/descriptor"
	"rigor/internal/outcome"
	"rigor/internal/planner"
	"rigor/internal/process"
	"rigor/internal/template"
)

// CommandTestFactory builds tests that run a descriptor's shell commands.
// Commands and env values are Go templates with the sprig functions plus:
//
//	port NAME   a TCP port reserved for the instance under NAME
//	env KEY     a variable of the instance environment
//
// and the fields ID, Title, DisplayID, Mode, Params, Cycle, OutputDir,
// TestDir and RunID.
type CommandTestFactory struct{}

// NewCommandTestFactory creates the factory.
func NewCommandTestFactory() *CommandTestFactory {
	return &CommandTestFactory{}
}

func (f *CommandTestFactory) NewTest(inst planner.TestInstance) (Test, error) {
	cmd := inst.Descriptor.Command
	if cmd.Execute == "" {
		if inst.Descriptor.IsManual() {
			return manualTest{}, nil
		}
		return nil, fmt.Errorf("test %s has no execute command", inst.Descriptor.ID)
	}
	return &commandTest{inst: inst, spec: cmd, expect: inst.Descriptor.Expect}, nil
}

// manualTest stands in for manual tests without automation.
type manualTest struct{ BaseTest }

func (manualTest) Execute(ctx context.Context, tc *TestContext) error {
	tc.AddOutcome(outcome.NotVerified, "manual test: verify by hand")
	return nil
}

type commandTest struct {
	inst   planner.TestInstance
	spec   descriptor.CommandSpec
	expect descriptor.Expectation

	engine *template.Engine
	data   map[string]any

	execProc *process.Process
	execCode int
}

// prepare builds the template engine on first use; cleanup may be the first
// phase to run when setup never started.
func (t *commandTest) prepare(tc *TestContext) {
	if t.engine != nil {
		return
	}
	t.engine = template.New(map[string]any{
		"port": tc.AllocatePort,
		"env":  tc.Process.Getenv,
	})

	mode := ""
	if t.inst.Mode != nil {
		mode = t.inst.Mode.Name
	}
	runID := ""
	if tc.Run != nil {
		runID = tc.Run.RunID
	}
	t.data = map[string]any{
		"ID":        t.inst.Descriptor.ID,
		"Title":     t.inst.Descriptor.Title,
		"DisplayID": t.inst.DisplayID(),
		"Mode":      mode,
		"Params":    t.inst.Params().Map(),
		"Cycle":     t.inst.Cycle,
		"OutputDir": tc.Process.OutputDir,
		"TestDir":   tc.Process.TestDir,
		"RunID":     runID,
	}
}

// texts lists every templated string of the descriptor.
func (t *commandTest) texts() []string {
	out := []string{t.spec.Setup, t.spec.Execute, t.spec.Validate, t.spec.Cleanup}
	out = append(out, t.spec.Background...)
	for _, v := range t.spec.Env {
		out = append(out, v)
	}
	return out
}

func (t *commandTest) Setup(ctx context.Context, tc *TestContext) error {
	t.prepare(tc)

	if err := t.engine.ValidateContext(t.data, t.texts()...); err != nil {
		return err
	}

	env, err := t.engine.RenderMap("env", t.spec.Env, t.data)
	if err != nil {
		return err
	}
	for k, v := range env {
		tc.Process.Setenv(k, v)
	}

	background, err := t.engine.RenderAll("background", t.spec.Background, t.data)
	if err != nil {
		return err
	}
	for i, line := range background {
		name := fmt.Sprintf("background%d", i+1)
		if _, err := tc.StartProcess(ctx, process.Spec{Name: name, Command: line}); err != nil {
			return err
		}
	}

	if code, err := t.run(ctx, tc, "setup", t.spec.Setup); err != nil {
		return err
	} else if code != 0 {
		return fmt.Errorf("setup command exited with code %d", code)
	}
	return nil
}

func (t *commandTest) Execute(ctx context.Context, tc *TestContext) error {
	t.prepare(tc)
	line, err := t.engine.Render("execute", t.spec.Execute, t.data)
	if err != nil {
		return err
	}
	p, code, err := tc.RunProcess(ctx, process.Spec{Name: "execute", Command: line})
	if err != nil {
		return err
	}
	t.execProc, t.execCode = p, code
	if p.CoreDumped() {
		tc.AddOutcome(outcome.DumpedCore, "execute command dumped core")
	}
	return nil
}

// Validate checks the expectations against the execute command, recording
// one failure per unmet expectation, then runs the validate command.
func (t *commandTest) Validate(ctx context.Context, tc *TestContext) error {
	t.prepare(tc)
	if t.execProc != nil {
		want := 0
		if t.expect.ExitCode != nil {
			want = *t.expect.ExitCode
		}
		if t.execCode != want {
			tc.Failf("execute exited with code %d, expected %d", t.execCode, want)
		}

		stdout := strings.ToLower(t.execProc.Stdout())
		for _, s := range t.expect.StdoutContains {
			if !strings.Contains(stdout, strings.ToLower(s)) {
				tc.Failf("stdout does not contain %q", s)
			}
		}
		for _, s := range t.expect.StdoutNotContains {
			if strings.Contains(stdout, strings.ToLower(s)) {
				tc.Failf("stdout contains %q", s)
			}
		}
	}

	code, err := t.run(ctx, tc, "validate", t.spec.Validate)
	if err != nil {
		return err
	}
	if code != 0 {
		tc.Failf("validate command exited with code %d", code)
	}
	return nil
}

func (t *commandTest) Cleanup(ctx context.Context, tc *TestContext) error {
	t.prepare(tc)
	code, err := t.run(ctx, tc, "cleanup", t.spec.Cleanup)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("cleanup command exited with code %d", code)
	}
	return nil
}

// run renders and runs an optional command; an empty one succeeds.
func (t *commandTest) run(ctx context.Context, tc *TestContext, name, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, nil
	}
	line, err := t.engine.Render(name, text, t.data)
	if err != nil {
		return -1, err
	}
	_, code, err := tc.RunProcess(ctx, process.Spec{Name: name, Command: line})
	return code, err
}
