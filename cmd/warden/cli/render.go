package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/wardenhq/warden/cmd/warden/cli/detect"
	"github.com/wardenhq/warden/cmd/warden/cli/ledger"
	"github.com/wardenhq/warden/cmd/warden/cli/session"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	badColor  = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

// renderSummary prints the human-readable end-of-session report derived
// from the ledger.
func renderSummary(w io.Writer, sess *session.Session, status session.Status) {
	fmt.Fprintln(w)
	if status == session.StatusCompleted {
		okColor.Fprintf(w, "session %s: %s\n", sess.ID, status)
	} else {
		badColor.Fprintf(w, "session %s: %s\n", sess.ID, status)
	}

	var changes, checkpoints int
	for _, e := range sess.Events() {
		switch e.Type {
		case ledger.EventChange:
			changes++
		case ledger.EventCheckpoint:
			checkpoints++
		case ledger.EventViolation, ledger.EventFinalized:
		}
	}
	fmt.Fprintf(w, "  changes: %d  checkpoints: %d\n", changes, checkpoints)

	violations := sess.Violations()
	if len(violations) == 0 {
		fmt.Fprintln(w, "  no violations")
	} else {
		warnColor.Fprintf(w, "  %d violation(s):\n", len(violations))
		printViolations(w, violations)
	}
	dimColor.Fprintf(w, "  ledger: %s\n", sess.LedgerPath())
}

func printViolations(w io.Writer, violations []detect.Violation) {
	for _, v := range violations {
		if v.File != "" {
			fmt.Fprintf(w, "    [%s] %s (%s)\n", v.Kind, v.Detail, v.File)
		} else {
			fmt.Fprintf(w, "    [%s] %s\n", v.Kind, v.Detail)
		}
	}
}
