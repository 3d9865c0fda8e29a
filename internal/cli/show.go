package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/progress-sync/internal/readiness"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var claimable bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the locally stored progress snapshot as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			if claimable {
				return writeJSON(cmd.OutOrStdout(), a.engine.Claimable())
			}
			return writeJSON(cmd.OutOrStdout(), a.engine.Snapshot())
		},
	}

	cmd.Flags().BoolVar(&claimable, "claimable", false, "print the rewards claimable now instead")
	return cmd
}

// NewReadinessCommand creates the readiness command.
func NewReadinessCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "readiness",
		Short: "Score the local snapshot across the readiness dimensions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			return writeJSON(cmd.OutOrStdout(), readiness.NewScorer(a.catalog).Score(a.engine.Snapshot()))
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
