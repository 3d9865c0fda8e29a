// Package cli wires configuration, storage and the engine into the
// progress-sync commands.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "progress-sync",
		Short: "Local-first progress tracking with background sync",
		Long: `Tracks learning progress on this device and keeps it in sync with a
remote copy once the user is known. Every change is saved locally first;
the remote is reconciled by merge, never by overwrite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override LOG_LEVEL (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewReadinessCommand(opts))

	return cmd
}
