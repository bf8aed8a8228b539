package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"rigor/internal/config"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersion(t *testing.T) {
	original := GetVersion()
	defer SetVersion(original)

	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", rootCmd.Version)
	assert.Equal(t, "1.2.3-test", GetVersion())
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "rigor", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
	assert.True(t, rootCmd.SilenceErrors)
}

func TestVersionTemplate(t *testing.T) {
	testCmd := &cobra.Command{
		Use:     "test",
		Version: "1.0.0",
	}
	testCmd.SetVersionTemplate(`{{printf "rigor version %s\n" .Version}}`)

	var buf bytes.Buffer
	testCmd.SetOut(&buf)
	testCmd.SetArgs([]string{"--version"})
	require.NoError(t, testCmd.Execute())
	assert.Equal(t, "rigor version 1.0.0\n", buf.String())
}

func TestSubcommands(t *testing.T) {
	found := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		found[c.Name()] = true
	}
	for _, name := range []string{"run", "list", "version"} {
		assert.True(t, found[name], "expected subcommand %s", name)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitCodeSuccess},
		{name: "plain error", err: errors.New("boom"), want: ExitCodeError},
		{name: "configuration error", err: config.ConfigurationError{Message: "bad"}, want: ExitCodeError},
		{name: "failures", err: &ExitError{Code: ExitCodeFailures}, want: 2},
		{name: "interrupted", err: &ExitError{Code: ExitCodeInterrupted}, want: 3},
		{name: "wrapped empty plan", err: fmt.Errorf("run: %w", &ExitError{Code: ExitCodeEmptyPlan, Err: errors.New("no tests selected")}), want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	parse := config.ConfigurationError{
		FilePath:    "/p/rigor.yaml",
		ErrorType:   "parse",
		Message:     "malformed YAML",
		Details:     "line 1: did not find expected node content",
		Suggestions: []string{"Durations use Go syntax, for example 90s or 10m"},
	}
	var two config.ConfigurationErrorCollection
	two.AddValidation("/p/rigor.yaml", "threads", "must be auto or a positive number")
	two.AddValidation("/p/rigor.yaml", "ports", "min must not exceed max")
	var one config.ConfigurationErrorCollection
	one.AddValidation("/p/rigor.yaml", "threads", "must be auto or a positive number", "Use threads: auto")

	t.Run("plain", func(t *testing.T) {
		assert.Equal(t, "Error: boom", errorMessage(errors.New("boom")))
	})
	t.Run("silent exit", func(t *testing.T) {
		assert.Empty(t, errorMessage(&ExitError{Code: ExitCodeFailures}))
	})
	t.Run("exit with cause", func(t *testing.T) {
		assert.Equal(t, "Error: no tests selected", errorMessage(&ExitError{Code: ExitCodeEmptyPlan, Err: errors.New("no tests selected")}))
	})
	t.Run("configuration error shows details", func(t *testing.T) {
		msg := errorMessage(fmt.Errorf("loading: %w", parse))
		assert.Contains(t, msg, "Configuration Error: malformed YAML")
		assert.Contains(t, msg, "did not find expected node content")
		assert.Contains(t, msg, "    - Durations use Go syntax")
	})
	t.Run("single validation error", func(t *testing.T) {
		msg := errorMessage(one.ErrOrNil())
		assert.Contains(t, msg, "  Field: threads")
		assert.Contains(t, msg, "    - Use threads: auto")
	})
	t.Run("several validation errors", func(t *testing.T) {
		msg := errorMessage(two.ErrOrNil())
		assert.True(t, strings.HasPrefix(msg, "Configuration Error Summary (2 total errors):"), msg)
		assert.Contains(t, msg, "  - /p/rigor.yaml: ports: min must not exceed max")
	})
}

func TestExitError(t *testing.T) {
	assert.Equal(t, "exit status 2", (&ExitError{Code: 2}).Error())

	inner := errors.New("no tests selected")
	err := &ExitError{Code: 4, Err: inner}
	assert.Equal(t, "no tests selected", err.Error())
	assert.True(t, errors.Is(err, inner))
}

func TestRootCommandHelp(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"--help"})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, rootCmd.Execute())
	output := buf.String()
	assert.True(t, strings.Contains(output, "rigor"))
	assert.Contains(t, output, "rigortest.yaml")
}
