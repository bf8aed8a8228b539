package descriptor

import (
	"time"

	"rigor/internal/modes"
)

// Test types.
const (
	TypeAuto   = "auto"
	TypeManual = "manual"
)

// TestDescriptor is the parsed, immutable description of a single test.
type TestDescriptor struct {
	ID     string
	Title  string
	Groups []string
	// TestDir is the directory holding the descriptor file.
	TestDir string
	// File is the descriptor's path, used as the canonical tie-breaker when
	// ordering tests.
	File string

	Modes          modes.Config
	InheritedModes []modes.ModeSpec

	// ExecutionOrderHint is nil when the descriptor does not set one.
	ExecutionOrderHint *float64
	// DirectoryHint is the hint of the nearest ancestor directory config, if any.
	DirectoryHint *float64

	Skipped    bool
	SkipReason string
	Type       string
	// Timeout is zero when the project default applies.
	Timeout time.Duration

	Command CommandSpec
	Expect  Expectation
}

// CommandSpec lists the shell commands run for each phase of a command test.
type CommandSpec struct {
	Setup    string            `yaml:"setup,omitempty"`
	Execute  string            `yaml:"execute,omitempty"`
	Validate string            `yaml:"validate,omitempty"`
	Cleanup  string            `yaml:"cleanup,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
	// Background commands are started before execute and killed at cleanup.
	Background []string `yaml:"background,omitempty"`
}

// Expectation is checked against the execute command.
type Expectation struct {
	ExitCode          *int     `yaml:"exitCode,omitempty"`
	StdoutContains    []string `yaml:"stdoutContains,omitempty"`
	StdoutNotContains []string `yaml:"stdoutNotContains,omitempty"`
}

// ResolveModes resolves the descriptor's mode list.
func (d *TestDescriptor) ResolveModes(opts modes.Options) ([]modes.ModeSpec, error) {
	return modes.Resolve(d.ID, d.Modes, d.InheritedModes, opts)
}

// IsManual reports whether the test needs a human and is excluded from
// automated runs by default.
func (d *TestDescriptor) IsManual() bool {
	return d.Type == TypeManual
}
