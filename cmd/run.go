package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rigor/internal/config"
	"rigor/internal/ports"
	"rigor/internal/reporting"
	"rigor/internal/runner"
	"rigor/internal/scheduler"
	"rigor/pkg/logging"

	"github.com/spf13/cobra"
)

type runOptions struct {
	selectionFlags

	ci        bool
	timeout   time.Duration
	verbose   bool
	debug     bool
	reporters []string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [TEST_ID[~MODE_REGEX]...]",
		Short: "Select, order and run tests",
		Long: `Run discovers test descriptors under the project's test root, builds
the run plan from the given ids and filters, and executes it.

Ids may be exact or an unambiguous suffix, optionally followed by ~ and a
regular expression restricting the modes. Without --mode only primary modes
run.

Exit status:
  0  all selected tests passed (or nothing was selected)
  1  usage, configuration or selection error
  2  at least one test failed
  3  the run was interrupted
  4  nothing was selected under --ci

Examples:
  rigor run                                  # all primary modes
  rigor run net.Ping --mode ALL              # every mode of one test
  rigor run --include-group smoke --threads x2
  rigor run --ci                             # CI profile: quiet + json + junit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts, args)
		},
	}
	opts.register(cmd)

	flags := cmd.Flags()
	flags.BoolVar(&opts.ci, "ci", false, "CI profile: auto threads, all modes, quiet+json+junit reporters, empty plan fails")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Default per-instance timeout (default from rigor.yaml)")
	flags.BoolVar(&opts.verbose, "verbose", false, "Print every result and test log messages")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.StringSliceVar(&opts.reporters, "report", nil, fmt.Sprintf("Reporters to enable (%v)", reporting.Names()))

	_ = cmd.RegisterFlagCompletionFunc("report", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return reporting.Names(), cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func runRun(cmd *cobra.Command, opts *runOptions, args []string) error {
	initLogging(cmd.ErrOrStderr(), opts.verbose, opts.debug)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	finished := make(chan struct{})
	defer close(finished)
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
		case <-finished:
			return
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "\nReceived interrupt signal, stopping tests gracefully...")
		cancel()
		select {
		case <-sigChan:
			fmt.Fprintln(cmd.ErrOrStderr(), "Received second interrupt, exiting")
			os.Exit(ExitCodeInterrupted)
		case <-finished:
		}
	}()

	cfg, err := opts.loadProject()
	if err != nil {
		return err
	}
	modes, err := opts.modes(cmd)
	if err != nil {
		return err
	}
	if opts.ci {
		if !cmd.Flags().Changed("threads") {
			cfg.Threads = "auto"
		}
		if modes == nil {
			modes = []string{"ALL"}
		}
	}

	plan, err := opts.buildPlan(ctx, cfg, args, modes)
	if err != nil {
		return err
	}
	if plan.Empty() {
		if opts.ci {
			return &ExitError{Code: ExitCodeEmptyPlan, Err: errors.New("no tests selected")}
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No tests selected")
		return nil
	}

	coordinator, err := newCoordinator(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, opts)
	if err != nil {
		return err
	}
	summary, err := coordinator.Run(ctx, plan)
	if err != nil {
		return err
	}
	if code := summary.ExitCode(); code != ExitCodeSuccess {
		return &ExitError{Code: code}
	}
	return nil
}

// reporterNames resolves which reporters run: --report wins over rigor.yaml,
// and --ci swaps the console reporter for the quiet one and adds file reports.
func (opts *runOptions) reporterNames(cfg config.ProjectConfig) []string {
	names := cfg.Reporters
	if len(opts.reporters) > 0 {
		names = splitList(opts.reporters)
	}
	if !opts.ci {
		return names
	}
	out := []string{reporting.NameQuiet, reporting.NameJSON, reporting.NameJUnit}
	for _, n := range names {
		if n != reporting.NameConsole {
			out = append(out, n)
		}
	}
	return out
}

func newCoordinator(out, errOut io.Writer, cfg config.ProjectConfig, opts *runOptions) (*runner.Coordinator, error) {
	reporters, err := reporting.NewAll(opts.reporterNames(cfg), reporting.Options{
		Verbose: opts.verbose,
		Debug:   opts.debug,
		Out:     out,
	})
	if err != nil {
		return nil, err
	}

	pool, err := ports.NewPoolFromConfig(cfg.Ports)
	if err != nil {
		return nil, err
	}

	defaultTimeout := cfg.DefaultTimeout
	if opts.timeout > 0 {
		defaultTimeout = opts.timeout
	}

	return runner.NewCoordinator(runner.Options{
		Scheduler: scheduler.Options{
			DefaultTimeout:       defaultTimeout,
			TimeoutGrace:         cfg.TimeoutGrace,
			OutputSubdirTemplate: cfg.OutputSubdirTemplate,
		},
		Reporters:     reporters,
		RunnerPlugins: []runner.RunnerPlugin{runner.NewStaleProcessPlugin()},
		TestPlugins:   []runner.TestPlugin{runner.ParamEnvPlugin{}},
		Ports:         pool,
		Logger:        logging.NewWriterLogger(out, errOut, opts.verbose, opts.debug),
	})
}

// initLogging sends framework logs to w. RIGOR_LOG overrides the level the
// flags select.
func initLogging(w io.Writer, verbose, debug bool) {
	level := logging.LevelWarn
	switch {
	case debug:
		level = logging.LevelDebug
	case verbose:
		level = logging.LevelInfo
	}
	logging.InitForCLI(logging.LevelFromEnv(level), w)
}
