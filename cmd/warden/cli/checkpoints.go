package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/cmd/warden/cli/checkpoint"
)

func newCheckpointsCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List the checkpoint chain for a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workdir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve working directory: %w", err)
			}
			mgr, err := checkpoint.Open(workdir, sessionID)
			if err != nil {
				return err
			}

			chain, err := mgr.List()
			if err != nil {
				return err
			}
			if len(chain) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no checkpoints found")
				return nil
			}
			for _, cp := range chain {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-8s  %s  %s\n",
					cp.Revision[:12], cp.Trigger, cp.CreatedAt.Format("2006-01-02 15:04:05"), cp.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to list checkpoints for (required)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
