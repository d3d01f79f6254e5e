package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
)

func initRepo(t *testing.T) (string, *Manager) {
	t.Helper()
	dir := t.TempDir()
	if _, err := git.PlainInit(dir, false); err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	mgr, err := Open(dir, "sess-test")
	if err != nil {
		t.Fatalf("failed to open manager: %v", err)
	}
	return dir, mgr
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

func TestOpen_NoRepository(t *testing.T) {
	_, err := Open(t.TempDir(), "sess-test")
	if !errors.Is(err, ErrNoRepository) {
		t.Fatalf("expected ErrNoRepository, got %v", err)
	}
}

func TestSave_FirstCheckpointOnUnbornBranch(t *testing.T) {
	dir, mgr := initRepo(t)
	writeFile(t, dir, "hello.txt", "hello\n")

	cp, err := mgr.Save(context.Background(), "initial state", TriggerManual)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if cp == nil {
		t.Fatal("expected a checkpoint for a dirty tree")
	}
	if cp.Trigger != TriggerManual {
		t.Errorf("trigger = %q, want manual", cp.Trigger)
	}
	if mgr.Head() != cp.Revision {
		t.Errorf("HEAD = %s, want %s", mgr.Head(), cp.Revision)
	}
}

func TestSave_NoOpOnCleanTree(t *testing.T) {
	dir, mgr := initRepo(t)
	writeFile(t, dir, "hello.txt", "hello\n")
	if _, err := mgr.Save(context.Background(), "first", TriggerManual); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	cp, err := mgr.Save(context.Background(), "nothing changed", TriggerPeriodic)
	if err != nil {
		t.Fatalf("no-op save must not error: %v", err)
	}
	if cp != nil {
		t.Fatalf("expected no checkpoint for a clean tree, got %+v", cp)
	}
}

func TestList_ReturnsSessionChainOldestFirst(t *testing.T) {
	dir, mgr := initRepo(t)
	writeFile(t, dir, "a.txt", "a\n")
	first, err := mgr.Save(context.Background(), "first", TriggerManual)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	writeFile(t, dir, "b.txt", "b\n")
	second, err := mgr.Save(context.Background(), "second", TriggerPeriodic)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	chain, err := mgr.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2", len(chain))
	}
	if chain[0].Revision != first.Revision || chain[1].Revision != second.Revision {
		t.Errorf("chain out of order: %v", chain)
	}
	if chain[0].Message != "first" {
		t.Errorf("message = %q, want %q (trailers must be stripped)", chain[0].Message, "first")
	}
	if chain[1].Trigger != TriggerPeriodic {
		t.Errorf("trigger = %q, want periodic", chain[1].Trigger)
	}
}

func TestList_IgnoresOtherSessions(t *testing.T) {
	dir, mgr := initRepo(t)
	writeFile(t, dir, "a.txt", "a\n")
	if _, err := mgr.Save(context.Background(), "mine", TriggerManual); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	other, err := Open(dir, "sess-other")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	writeFile(t, dir, "b.txt", "b\n")
	if _, err := other.Save(context.Background(), "theirs", TriggerManual); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	chain, err := mgr.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(chain) != 1 || chain[0].Message != "mine" {
		t.Fatalf("expected only this session's checkpoint, got %v", chain)
	}
}

func TestRollback_RestoresCheckpointState(t *testing.T) {
	dir, mgr := initRepo(t)
	writeFile(t, dir, "file.txt", "version one\n")
	first, err := mgr.Save(context.Background(), "v1", TriggerManual)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	writeFile(t, dir, "file.txt", "version two\n")
	if _, err := mgr.Save(context.Background(), "v2", TriggerPeriodic); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := mgr.Rollback(first.Revision); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "file.txt"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "version one\n" {
		t.Errorf("content = %q, want %q", data, "version one\n")
	}
	if mgr.Head() != first.Revision {
		t.Errorf("HEAD = %s, want %s", mgr.Head(), first.Revision)
	}
}

func TestRollback_UnknownRevision(t *testing.T) {
	dir, mgr := initRepo(t)
	writeFile(t, dir, "a.txt", "a\n")
	if _, err := mgr.Save(context.Background(), "first", TriggerManual); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	err := mgr.Rollback("deadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	var cpErr *Error
	if !errors.As(err, &cpErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
}
