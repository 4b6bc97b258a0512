package main

import (
	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
	address    string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "remedy-engine",
		Short: "Adaptive action selection, retry and verification engine",
		Long: `remedy-engine watches targets for an undesired condition and clears it by
trying corrective actions, most successful first, verifying each one and
learning from the outcome.

Quick start:
  remedy-engine serve --config config.yaml   # run the engine and gRPC API
  remedy-engine actions                      # show the action table
  remedy-engine stats                        # detailed statistics
  remedy-engine history --limit 10           # recent resolutions`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.address, "addr", "", "gRPC address of a running engine (defaults to server.address)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newActionsCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newTriggerCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))

	return cmd
}
