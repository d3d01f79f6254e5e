package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wardenhq/warden/cmd/warden/cli/checkpoint"
)

func newRollbackCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rollback <revision>",
		Short: "Reset the working tree to a checkpoint",
		Long: `Rollback hard-resets the working tree to the given checkpoint revision,
discarding every change made after it. This is destructive and asks for
confirmation unless --yes is set or stdin is not a terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			revision := args[0]

			workdir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to resolve working directory: %w", err)
			}
			mgr, err := checkpoint.Open(workdir, "")
			if err != nil {
				if errors.Is(err, checkpoint.ErrNoRepository) {
					return fmt.Errorf("nothing to roll back: %w", err)
				}
				return err
			}

			if !yes && term.IsTerminal(int(os.Stdin.Fd())) {
				confirmed := false
				prompt := huh.NewConfirm().
					Title(fmt.Sprintf("Reset working tree to %s?", revision)).
					Description("All changes after this checkpoint will be discarded.").
					Affirmative("Reset").
					Negative("Cancel").
					Value(&confirmed)
				if err := prompt.Run(); err != nil {
					return fmt.Errorf("confirmation failed: %w", err)
				}
				if !confirmed {
					fmt.Fprintln(cmd.OutOrStdout(), "rollback canceled")
					return nil
				}
			}

			if err := mgr.Rollback(revision); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "working tree reset to %s\n", revision)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
