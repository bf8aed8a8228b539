package cmd

import (
	"rigor/internal/formatting"
	"rigor/pkg/logging"

	"github.com/spf13/cobra"
)

type listOptions struct {
	selectionFlags

	output string
	quiet  bool
	debug  bool
}

func newListCmd() *cobra.Command {
	opts := &listOptions{}
	cmd := &cobra.Command{
		Use:   "list [TEST_ID[~MODE_REGEX]...]",
		Short: "Print the run plan without running it",
		Long: `List builds the same plan as run, with the same ids and filters, and
prints it in execution order: display id, cycle, order hint, groups and
descriptor file.

Examples:
  rigor list --mode ALL
  rigor list --include-group smoke -o json
  rigor list -q | xargs rigor run`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, args)
		},
	}
	opts.register(cmd)

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", string(formatting.FormatTable), "Output format (table, console, json, yaml)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "Print only display ids (console) or compact JSON")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	_ = cmd.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return formatting.Formats(), cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func runList(cmd *cobra.Command, opts *listOptions, args []string) error {
	format, err := formatting.ParseFormat(opts.output)
	if err != nil {
		return err
	}
	if opts.quiet && format == formatting.FormatTable {
		format = formatting.FormatConsole
	}
	if opts.quiet && !opts.debug {
		logging.InitSilent()
	} else {
		initLogging(cmd.ErrOrStderr(), false, opts.debug)
	}

	cfg, err := opts.loadProject()
	if err != nil {
		return err
	}
	modes, err := opts.modes(cmd)
	if err != nil {
		return err
	}
	plan, err := opts.buildPlan(cmd.Context(), cfg, args, modes)
	if err != nil {
		return err
	}

	formatter := formatting.New(formatting.Options{Format: format, Quiet: opts.quiet})
	return formatter.FormatPlan(cmd.OutOrStdout(), formatting.PlanRows(plan))
}
