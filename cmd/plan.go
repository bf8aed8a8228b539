package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"rigor/internal/config"
	"rigor/internal/descriptor"
	"rigor/internal/planner"
	"rigor/internal/scheduler"

	"github.com/spf13/cobra"
)

// selectionFlags are the flags shared by run and list.
type selectionFlags struct {
	configPath    string
	mode          string
	includeGroups []string
	excludeGroups []string
	grep          string
	testType      string
	cycles        int
	threads       string
	outdir        string
	abortOnError  bool
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "Path to rigor.yaml (default: searched upward from the working directory)")
	flags.StringVar(&f.mode, "mode", "", "Comma-separated mode specifiers: names, regexes, ALL, PRIMARY, or !NAME to exclude")
	flags.StringSliceVar(&f.includeGroups, "include-group", nil, "Only run tests in these groups")
	flags.StringSliceVar(&f.excludeGroups, "exclude-group", nil, "Skip tests in these groups")
	flags.StringVar(&f.grep, "grep", "", "Case-insensitive regular expression matched against test id or title")
	flags.StringVar(&f.testType, "type", planner.TypeFilterAuto, "Test type to select (auto, manual, all)")
	flags.IntVar(&f.cycles, "cycles", 1, "Number of times to run the whole selection")
	flags.StringVar(&f.threads, "threads", "", "Worker count: N, auto, or xMULT of the CPU count (default from rigor.yaml)")
	flags.StringVar(&f.outdir, "outdir", "", "Output root directory (default from rigor.yaml)")
	flags.BoolVar(&f.abortOnError, "abort-on-error", false, "Skip remaining phases of an instance after its first failure")

	_ = cmd.RegisterFlagCompletionFunc("type", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{planner.TypeFilterAuto, planner.TypeFilterManual, planner.TypeFilterAll}, cobra.ShellCompDirectiveNoFileComp
	})
}

// modes returns the --mode specifiers, nil when the flag was not given.
// A flag holding no specifier at all is a usage error.
func (f *selectionFlags) modes(cmd *cobra.Command) ([]string, error) {
	if !cmd.Flags().Changed("mode") {
		return nil, nil
	}
	specs := planner.ParseModeFilter(f.mode)
	if len(specs) == 0 {
		return nil, fmt.Errorf("--mode %q names no mode; use ALL, PRIMARY or a mode name", f.mode)
	}
	return specs, nil
}

// loadProject reads the project configuration and applies flag overrides.
func (f *selectionFlags) loadProject() (config.ProjectConfig, error) {
	var (
		cfg config.ProjectConfig
		err error
	)
	if f.configPath != "" {
		cfg, err = config.LoadConfig(f.configPath)
	} else {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			return config.ProjectConfig{}, cwdErr
		}
		cfg, err = config.Discover(cwd)
	}
	if err != nil {
		return config.ProjectConfig{}, err
	}

	if f.outdir != "" {
		abs, err := filepath.Abs(f.outdir)
		if err != nil {
			return config.ProjectConfig{}, err
		}
		cfg.OutputDir = abs
	}
	if f.threads != "" {
		cfg.Threads = f.threads
	}
	cfg.AbortOnError = cfg.AbortOnError || f.abortOnError
	return cfg, nil
}

// buildPlan loads every descriptor under the test root and builds the plan
// for ids and the selection flags.
func (f *selectionFlags) buildPlan(ctx context.Context, cfg config.ProjectConfig, ids, modes []string) (*planner.RunPlan, error) {
	if f.cycles < 1 {
		return nil, fmt.Errorf("--cycles must be at least 1, got %d", f.cycles)
	}
	threads, err := scheduler.Threads(cfg.Threads)
	if err != nil {
		return nil, err
	}
	rules, err := planner.CompileRules(cfg.ExecutionOrder)
	if err != nil {
		return nil, err
	}

	loaderOpts := descriptor.OptionsFromConfig(cfg)
	descs, err := descriptor.NewLoader(loaderOpts).Load(ctx, cfg.TestRootPath())
	if err != nil {
		return nil, err
	}

	sel := planner.Selection{
		IDs:           ids,
		Modes:         modes,
		IncludeGroups: splitList(f.includeGroups),
		ExcludeGroups: splitList(f.excludeGroups),
		Grep:          f.grep,
		Type:          strings.ToLower(strings.TrimSpace(f.testType)),
	}
	return planner.Build(descs, sel, planner.BuildOptions{
		Cycles:                  f.cycles,
		Threads:                 threads,
		AbortOnError:            cfg.AbortOnError,
		OutputRoot:              cfg.OutputRootPath(),
		Rules:                   rules,
		SecondaryModesHintDelta: cfg.SecondaryModesHintDelta,
		ModeOptions:             loaderOpts.ModeOptions,
	})
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
