// Package testutil provides git fixture repos and ledger helpers for the
// end-to-end suite.
package testutil

import (
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// RepoState holds the working state for a single test's fixture repository.
type RepoState struct {
	Dir        string
	HeadBefore string
}

// SetupRepo creates a fresh git repository in a temporary directory and
// seeds it with an initial commit.
//
// When WARDEN_E2E_KEEP_REPOS is set, the directory is preserved after the
// test for inspection.
func SetupRepo(t *testing.T) *RepoState {
	t.Helper()

	dir, err := os.MkdirTemp("", "warden-e2e-repo-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	if os.Getenv("WARDEN_E2E_KEEP_REPOS") != "" {
		t.Logf("WARDEN_E2E_KEEP_REPOS: repo preserved at %s", dir)
	} else {
		t.Cleanup(func() { os.RemoveAll(dir) })
	}

	// macOS: /var -> /private/var. Resolve so paths match what the
	// supervised process sees as its own CWD.
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	Git(t, dir, "init")
	Git(t, dir, "config", "user.name", "E2E Test")
	Git(t, dir, "config", "user.email", "e2e@test.local")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("fixture\n"), 0o644); err != nil {
		t.Fatalf("seed repo: %v", err)
	}
	Git(t, dir, "add", ".")
	Git(t, dir, "commit", "-m", "initial commit")

	return &RepoState{
		Dir:        dir,
		HeadBefore: GitOutput(t, dir, "rev-parse", "HEAD"),
	}
}

// WriteConfig writes a warden.yaml into the repo root.
func WriteConfig(t *testing.T, s *RepoState, yaml string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(s.Dir, "warden.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write warden.yaml: %v", err)
	}
}

// Ledger mirrors the flushed ledger document shape the suite asserts on.
type Ledger struct {
	Metadata struct {
		SessionID    string `json:"session_id"`
		Task         string `json:"task"`
		Agent        string `json:"agent"`
		BaseRevision string `json:"base_revision"`
	} `json:"metadata"`
	Events []LedgerEvent `json:"events"`
}

// LedgerEvent is one entry in the flushed ledger.
type LedgerEvent struct {
	Type      string `json:"type"`
	Status    string `json:"status,omitempty"`
	Violation *struct {
		Kind   string `json:"kind"`
		Detail string `json:"detail"`
		File   string `json:"file,omitempty"`
	} `json:"violation,omitempty"`
	Checkpoint *struct {
		Revision string `json:"revision"`
		Trigger  string `json:"trigger"`
	} `json:"checkpoint,omitempty"`
	Change *struct {
		Path   string `json:"path"`
		Action string `json:"action"`
	} `json:"change,omitempty"`
}

// ReadLedger finds and parses the single session ledger under .warden/.
func ReadLedger(t *testing.T, s *RepoState) *Ledger {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(s.Dir, ".warden", "*", "ledger.json"))
	if err != nil || len(matches) == 0 {
		t.Fatalf("no ledger found under .warden: %v", err)
	}
	if len(matches) > 1 {
		t.Fatalf("expected one session ledger, found %d", len(matches))
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	var led Ledger
	if err := json.Unmarshal(data, &led); err != nil {
		t.Fatalf("parse ledger: %v", err)
	}
	return &led
}

// FinalStatus returns the status carried by the finalize marker, or an
// empty string when the ledger was never finalized.
func (l *Ledger) FinalStatus() string {
	for _, e := range l.Events {
		if e.Type == "finalized" {
			return e.Status
		}
	}
	return ""
}

// SessionCheckpoints returns the SHAs of commits carrying the session
// trailer for the ledger's session, oldest first.
func SessionCheckpoints(t *testing.T, s *RepoState, sessionID string) []string {
	t.Helper()

	out, err := GitOutputErr(s.Dir, "log", "--reverse", "--format=%H %(trailers:key=Warden-Session,valueonly)", "HEAD")
	if err != nil {
		t.Fatalf("git log failed: %v", err)
	}
	var shas []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == sessionID {
			shas = append(shas, fields[0])
		}
	}
	return shas
}

// Git runs a git command in the given directory and fails the test on a
// non-zero exit.
func Git(t *testing.T, dir string, args ...string) {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
}

// GitOutput runs a git command, returns its trimmed stdout, and fails the
// test on error.
func GitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir

	out, err := cmd.Output()
	if err != nil {
		var stderr string
		ee := &exec.ExitError{}
		if errors.As(err, &ee) {
			stderr = string(ee.Stderr)
		}
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, stderr)
	}
	return strings.TrimSpace(string(out))
}

// GitOutputErr runs a git command and returns (output, error) without
// failing the test. For commands expected to fail.
func GitOutputErr(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}
