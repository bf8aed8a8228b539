package cmd

import (
	"errors"
	"fmt"
	"os"

	"rigor/internal/config"
	"rigor/internal/outcome"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates every selected test passed, or nothing was selected outside CI.
	ExitCodeSuccess = outcome.ExitPassed
	// ExitCodeError indicates a usage, configuration, descriptor or selection error.
	ExitCodeError = 1
	// ExitCodeFailures indicates at least one instance ended with a failing outcome.
	ExitCodeFailures = outcome.ExitFailures
	// ExitCodeInterrupted indicates the run was cancelled before the plan completed.
	ExitCodeInterrupted = outcome.ExitInterrupted
	// ExitCodeEmptyPlan indicates nothing was selected under --ci.
	ExitCodeEmptyPlan = 4
)

// ExitError carries a specific exit code out of a command. A nil Err means
// the command already reported everything and nothing more is printed.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// rootCmd represents the base command for the rigor application.
var rootCmd = &cobra.Command{
	Use:   "rigor",
	Short: "Discover, schedule and run system tests",
	Long: `rigor runs system and integration tests described by rigortest.yaml
descriptors. Tests are selected by id, mode, group or pattern, ordered by
execution hints, and run in isolated output directories across a pool of
parallel workers.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "rigor version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		if msg := errorMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(getExitCode(err))
	}
}

// errorMessage renders err for stderr. Configuration errors are expanded
// with their details and suggestions; an ExitError without a cause renders
// as nothing.
func errorMessage(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return ""
	}
	var coll config.ConfigurationErrorCollection
	if errors.As(err, &coll) && coll.HasErrors() {
		if coll.Count() == 1 {
			return coll.Errors[0].DetailedError()
		}
		return coll.GetSummary()
	}
	var cfgErr config.ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.DetailedError()
	}
	return "Error: " + err.Error()
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
}
