package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/cmd/warden/cli/detect"
	"github.com/wardenhq/warden/cmd/warden/cli/ledger"
)

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <ledger-file>",
		Short: "Render the summary for a flushed session ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := ledger.Read(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			meta := doc.Metadata
			fmt.Fprintf(w, "session %s (%s)\n", meta.SessionID, meta.Agent)
			fmt.Fprintf(w, "  task: %s\n", meta.Task)
			fmt.Fprintf(w, "  started: %s  workdir: %s\n",
				meta.StartedAt.Format("2006-01-02 15:04:05"), meta.WorkingDirectory)
			fmt.Fprintf(w, "  base revision: %s\n", meta.BaseRevision)

			var changes, checkpoints int
			var violations []detect.Violation
			status := "in progress"
			for _, e := range doc.Events {
				switch e.Type {
				case ledger.EventChange:
					changes++
				case ledger.EventCheckpoint:
					checkpoints++
				case ledger.EventViolation:
					if e.Violation != nil {
						violations = append(violations, *e.Violation)
					}
				case ledger.EventFinalized:
					status = e.Status
				}
			}

			fmt.Fprintf(w, "  status: %s\n", status)
			fmt.Fprintf(w, "  changes: %d  checkpoints: %d  violations: %d\n",
				changes, checkpoints, len(violations))
			printViolations(w, violations)
			return nil
		},
	}
}
