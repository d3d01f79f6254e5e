//go:build e2e

package tests

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wardenhq/warden/e2e/testutil"
	"github.com/wardenhq/warden/e2e/warden"
)

func TestRun_CompletedSession(t *testing.T) {
	t.Parallel()
	s := testutil.SetupRepo(t)

	out := warden.Run(t, s.Dir, "run",
		"--task", "write a greeting",
		"--agent", "custom",
		"--command", "sh,-c,echo hello > greeting.txt",
		"--timeout", "30s",
		"--interval", "500ms",
	)
	if !strings.Contains(out, "COMPLETED") {
		t.Errorf("summary missing COMPLETED status:\n%s", out)
	}

	led := testutil.ReadLedger(t, s)
	if got := led.FinalStatus(); got != "COMPLETED" {
		t.Errorf("final status = %q, want COMPLETED", got)
	}
	if led.Metadata.BaseRevision != s.HeadBefore {
		t.Errorf("base revision = %q, want %q", led.Metadata.BaseRevision, s.HeadBefore)
	}

	// The final checkpoint must have committed the agent's work.
	shas := testutil.SessionCheckpoints(t, s, led.Metadata.SessionID)
	if len(shas) == 0 {
		t.Fatal("no checkpoint commits carry the session trailer")
	}
	if _, err := os.Stat(filepath.Join(s.Dir, "greeting.txt")); err != nil {
		t.Errorf("agent output file missing: %v", err)
	}
	if out, err := testutil.GitOutputErr(s.Dir, "status", "--porcelain"); err != nil || out != "" {
		t.Errorf("tree should be clean after the final checkpoint, got %q (%v)", out, err)
	}
}

func TestRun_StopsOnForbiddenPath(t *testing.T) {
	t.Parallel()
	s := testutil.SetupRepo(t)
	testutil.WriteConfig(t, s, `
guardrails:
  forbidden_paths:
    - "secrets/**"
on_violation: stop
`)

	// The agent writes into a forbidden directory and then lingers; the
	// monitor must stop it well before the sleep finishes.
	_, err := warden.RunErr(s.Dir, "run",
		"--task", "leak a key",
		"--agent", "custom",
		"--command", "sh,-c,mkdir -p secrets && echo k > secrets/key.pem && sleep 120",
		"--timeout", "60s",
		"--interval", "500ms",
	)
	if err == nil {
		t.Fatal("expected non-zero exit for a stopped session")
	}

	led := testutil.ReadLedger(t, s)
	if got := led.FinalStatus(); got != "STOPPED" {
		t.Errorf("final status = %q, want STOPPED", got)
	}

	found := false
	for _, e := range led.Events {
		if e.Violation != nil && e.Violation.Kind == "FORBIDDEN_PATH" && e.Violation.File == "secrets/key.pem" {
			found = true
		}
	}
	if !found {
		t.Errorf("ledger missing FORBIDDEN_PATH violation for secrets/key.pem")
	}
}

func TestRun_TimesOut(t *testing.T) {
	t.Parallel()
	s := testutil.SetupRepo(t)

	_, err := warden.RunErr(s.Dir, "run",
		"--task", "stall",
		"--agent", "custom",
		"--command", "sleep,120",
		"--timeout", "2s",
		"--interval", "500ms",
	)
	if err == nil {
		t.Fatal("expected non-zero exit for a timed out session")
	}

	led := testutil.ReadLedger(t, s)
	if got := led.FinalStatus(); got != "TIMED_OUT" {
		t.Errorf("final status = %q, want TIMED_OUT", got)
	}
}

func TestCheckpointsAndRollback(t *testing.T) {
	t.Parallel()
	s := testutil.SetupRepo(t)

	warden.Run(t, s.Dir, "run",
		"--task", "edit the readme",
		"--agent", "custom",
		"--command", "sh,-c,echo changed >> README.md",
		"--timeout", "30s",
		"--interval", "500ms",
	)

	led := testutil.ReadLedger(t, s)
	shas := testutil.SessionCheckpoints(t, s, led.Metadata.SessionID)
	if len(shas) == 0 {
		t.Fatal("no checkpoint commits for session")
	}

	list := warden.Run(t, s.Dir, "checkpoints", "--session", led.Metadata.SessionID)
	if !strings.Contains(list, shas[len(shas)-1][:12]) {
		t.Errorf("checkpoint list missing revision %s:\n%s", shas[len(shas)-1][:12], list)
	}

	// Scribble on the tree, then roll back to the last checkpoint.
	if err := os.WriteFile(filepath.Join(s.Dir, "README.md"), []byte("junk\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	warden.Run(t, s.Dir, "rollback", shas[len(shas)-1], "--yes")

	data, err := os.ReadFile(filepath.Join(s.Dir, "README.md"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "fixture\nchanged\n" {
		t.Errorf("README after rollback = %q, want checkpointed content", data)
	}
}
