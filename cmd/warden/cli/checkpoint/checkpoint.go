// Package checkpoint creates and restores point-in-time snapshots of the
// working tree as git commits. Checkpoints form a linear chain rooted at
// the session's base revision; each commit message carries session
// trailers so the chain can be recovered from history alone.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// StateDirName is the engine's own state directory inside the working
// tree. It is never checkpointed and never counted as an agent change.
const StateDirName = ".warden"

// WorktreeExcludes are the ignore patterns applied to every worktree
// query so the engine's own artifacts don't show up as changes.
var WorktreeExcludes = []gitignore.Pattern{
	gitignore.ParsePattern(StateDirName+"/", nil),
}

// Trigger records why a checkpoint was created.
type Trigger string

const (
	// TriggerManual marks a checkpoint requested by the operator.
	TriggerManual Trigger = "manual"
	// TriggerPeriodic marks a checkpoint created by the monitoring loop.
	TriggerPeriodic Trigger = "periodic"
	// TriggerFinal marks the closing checkpoint written at finalization.
	TriggerFinal Trigger = "final"
)

// Trailer keys embedded in checkpoint commit messages.
const (
	sessionTrailer = "Warden-Session:"
	triggerTrailer = "Warden-Trigger:"
)

// ErrNoRepository is returned by Open when dir is not inside a git
// repository. Sessions treat this as a warning and run without rollback
// capability.
var ErrNoRepository = errors.New("no git repository found")

// Error wraps a failed version-control operation. Sessions log these and
// continue; losing a checkpoint must not abort an otherwise-safe session.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("checkpoint %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Checkpoint describes one snapshot commit.
type Checkpoint struct {
	Revision  string    `json:"revision"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	Trigger   Trigger   `json:"trigger"`
}

// Manager owns the checkpoint chain for one session.
type Manager struct {
	repo      *git.Repository
	sessionID string
	last      plumbing.Hash
}

// Open locates the repository containing dir and returns a Manager scoped
// to sessionID. Returns ErrNoRepository when dir is not version-controlled.
func Open(dir, sessionID string) (*Manager, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, ErrNoRepository
		}
		return nil, &Error{Op: "open", Err: err}
	}

	m := &Manager{repo: repo, sessionID: sessionID}
	if head, err := repo.Head(); err == nil {
		m.last = head.Hash()
	}
	return m, nil
}

// Repository exposes the underlying repository for read-only queries
// (the change inspector shares it).
func (m *Manager) Repository() *git.Repository { return m.repo }

// Head returns the current HEAD hash, or the zero hash for an unborn
// branch (no commits yet).
func (m *Manager) Head() string {
	ref, err := m.repo.Head()
	if err != nil {
		return plumbing.ZeroHash.String()
	}
	return ref.Hash().String()
}

// Save stages all changes and commits them as a checkpoint. A clean
// working tree is a no-op: Save returns (nil, nil) and no commit is
// created. Failures are wrapped in *Error.
func (m *Manager) Save(ctx context.Context, message string, trigger Trigger) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: "save", Err: err}
	}

	wt, err := m.repo.Worktree()
	if err != nil {
		return nil, &Error{Op: "worktree", Err: err}
	}
	wt.Excludes = append(wt.Excludes, WorktreeExcludes...)

	status, err := wt.Status()
	if err != nil {
		return nil, &Error{Op: "status", Err: err}
	}
	if status.IsClean() {
		return nil, nil
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, &Error{Op: "add", Err: err}
	}

	now := time.Now()
	full := fmt.Sprintf("%s\n\n%s %s\n%s %s\n", message, sessionTrailer, m.sessionID, triggerTrailer, trigger)
	hash, err := wt.Commit(full, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "warden",
			Email: "warden@local",
			When:  now,
		},
	})
	if err != nil {
		return nil, &Error{Op: "commit", Err: err}
	}

	m.last = hash
	return &Checkpoint{
		Revision:  hash.String(),
		Message:   message,
		CreatedAt: now,
		Trigger:   trigger,
	}, nil
}

// Rollback hard-resets the working tree to the given checkpoint revision,
// discarding every later change. Destructive; intended for operator use.
func (m *Manager) Rollback(revision string) error {
	hash, err := m.repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return &Error{Op: "resolve", Err: err}
	}

	wt, err := m.repo.Worktree()
	if err != nil {
		return &Error{Op: "worktree", Err: err}
	}
	if err := wt.Reset(&git.ResetOptions{Commit: *hash, Mode: git.HardReset}); err != nil {
		return &Error{Op: "reset", Err: err}
	}
	m.last = *hash
	return nil
}

// List walks history from HEAD and returns this session's checkpoints,
// oldest first.
func (m *Manager) List() ([]Checkpoint, error) {
	head, err := m.repo.Head()
	if err != nil {
		return nil, nil // Unborn branch: no checkpoints yet.
	}

	iter, err := m.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, &Error{Op: "log", Err: err}
	}
	defer iter.Close()

	var out []Checkpoint
	err = iter.ForEach(func(c *object.Commit) error {
		id, trigger := parseTrailers(c.Message)
		if id != m.sessionID {
			return nil
		}
		out = append(out, Checkpoint{
			Revision:  c.Hash.String(),
			Message:   firstLine(c.Message),
			CreatedAt: c.Author.When,
			Trigger:   trigger,
		})
		return nil
	})
	if err != nil {
		return nil, &Error{Op: "log", Err: err}
	}

	// Log order is newest-first; the chain is reported oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func parseTrailers(message string) (sessionID string, trigger Trigger) {
	for line := range strings.Lines(message) {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, sessionTrailer); ok {
			sessionID = strings.TrimSpace(v)
		}
		if v, ok := strings.CutPrefix(line, triggerTrailer); ok {
			trigger = Trigger(strings.TrimSpace(v))
		}
	}
	return sessionID, trigger
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
