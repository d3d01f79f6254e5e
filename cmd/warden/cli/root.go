// Package cli wires the warden command-line interface: supervised agent
// runs, checkpoint rollback, ledger inspection.
package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/cmd/warden/cli/logging"
)

// exitCode is set by commands that need a non-zero process exit without
// aborting cobra's teardown. Read by Execute.
var exitCode int

var verbose bool

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "warden",
		Short: "Supervise autonomous coding agents with guardrails",
		Long: `Warden runs an autonomous coding agent against a git working tree while
enforcing a guardrail policy: path and command restrictions, change-size
limits, secret detection, periodic checkpoints, and an audit ledger.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				logging.SetLevel(slog.LevelDebug)
			} else {
				logging.SetLevel(slog.LevelInfo)
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newRollbackCmd())
	cmd.AddCommand(newCheckpointsCmd())
	cmd.AddCommand(newSummaryCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return exitCode
}
