// Package inspect computes what changed in the working tree between two
// version-control references. It is read-only: all queries go through
// go-git object storage and the filesystem, and nothing is mutated.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/wardenhq/warden/cmd/warden/cli/checkpoint"
)

// Action classifies a file change.
type Action string

const (
	// ActionCreated marks a file absent in the "from" state.
	ActionCreated Action = "created"
	// ActionModified marks a file present in both states with different content.
	ActionModified Action = "modified"
	// ActionDeleted marks a file absent in the "to" state.
	ActionDeleted Action = "deleted"
)

// FileChange is one changed path with its classification.
type FileChange struct {
	Path   string `json:"path"`
	Action Action `json:"action"`
}

// Snapshot aggregates a diff: the ordered, deduplicated changed paths and
// the two counters the limit checks compare against. LinesChanged is
// insertions plus deletions.
type Snapshot struct {
	Changes      []FileChange
	FilesChanged int
	LinesChanged int
}

// Inspector answers diff queries against one repository.
type Inspector struct {
	repo    *git.Repository
	workdir string
}

// New returns an Inspector over repo. workdir is the on-disk root used to
// read working-tree file contents.
func New(repo *git.Repository, workdir string) *Inspector {
	return &Inspector{repo: repo, workdir: workdir}
}

// Since diffs the given revision against the current working tree:
// committed changes from..HEAD plus uncommitted changes on disk. An empty
// or zero from revision is treated as the empty tree, so a repository with
// no prior history reports every file as created.
func (i *Inspector) Since(ctx context.Context, from string) (*Snapshot, error) {
	snap, headTree, err := i.committed(ctx, from)
	if err != nil {
		return nil, err
	}
	if err := i.overlayWorktree(snap, headTree); err != nil {
		return nil, err
	}
	snap.FilesChanged = len(snap.Changes)
	return snap, nil
}

// BetweenCommits diffs two committed revisions without consulting the
// working tree.
func (i *Inspector) BetweenCommits(ctx context.Context, from, to string) (*Snapshot, error) {
	fromTree, err := i.treeAt(from)
	if err != nil {
		return nil, err
	}
	toTree, err := i.treeAt(to)
	if err != nil {
		return nil, err
	}
	snap, err := diffTrees(ctx, fromTree, toTree)
	if err != nil {
		return nil, err
	}
	snap.FilesChanged = len(snap.Changes)
	return snap, nil
}

// committed returns the from..HEAD snapshot and the HEAD tree (nil when
// the branch is unborn).
func (i *Inspector) committed(ctx context.Context, from string) (*Snapshot, *object.Tree, error) {
	fromTree, err := i.treeAt(from)
	if err != nil {
		return nil, nil, err
	}

	var headTree *object.Tree
	if head, err := i.repo.Head(); err == nil {
		headTree, err = i.treeAt(head.Hash().String())
		if err != nil {
			return nil, nil, err
		}
	}

	snap, err := diffTrees(ctx, fromTree, headTree)
	if err != nil {
		return nil, nil, err
	}
	return snap, headTree, nil
}

// treeAt resolves a revision to its root tree. Empty and zero revisions
// resolve to nil, the empty tree.
func (i *Inspector) treeAt(rev string) (*object.Tree, error) {
	if rev == "" || rev == plumbing.ZeroHash.String() {
		return nil, nil //nolint:nilnil // Nil tree means the empty tree.
	}
	hash, err := i.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision %q: %w", rev, err)
	}
	commit, err := i.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", hash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to read tree of %s: %w", hash, err)
	}
	return tree, nil
}

// diffTrees produces the snapshot for fromTree..toTree. Either side may be
// nil (the empty tree).
func diffTrees(ctx context.Context, fromTree, toTree *object.Tree) (*Snapshot, error) {
	snap := &Snapshot{}

	switch {
	case fromTree == nil && toTree == nil:
		return snap, nil
	case fromTree == nil:
		// First checkpoint: everything in "to" counts as created.
		err := toTree.Files().ForEach(func(f *object.File) error {
			content, err := f.Contents()
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", f.Name, err)
			}
			snap.Changes = append(snap.Changes, FileChange{Path: f.Name, Action: ActionCreated})
			snap.LinesChanged += countLines(content)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return snap, nil
	case toTree == nil:
		err := fromTree.Files().ForEach(func(f *object.File) error {
			content, err := f.Contents()
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", f.Name, err)
			}
			snap.Changes = append(snap.Changes, FileChange{Path: f.Name, Action: ActionDeleted})
			snap.LinesChanged += countLines(content)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return snap, nil
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			return nil, fmt.Errorf("failed to classify change: %w", err)
		}

		fc := FileChange{Path: change.To.Name}
		switch action {
		case merkletrie.Insert:
			fc.Action = ActionCreated
		case merkletrie.Delete:
			fc.Action = ActionDeleted
			fc.Path = change.From.Name
		case merkletrie.Modify:
			fc.Action = ActionModified
		}
		snap.Changes = append(snap.Changes, fc)

		patch, err := change.PatchContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to compute patch for %s: %w", fc.Path, err)
		}
		for _, stat := range patch.Stats() {
			snap.LinesChanged += stat.Addition + stat.Deletion
		}
	}
	return snap, nil
}

// overlayWorktree folds uncommitted changes (working tree vs HEAD) into
// snap. Line deltas for dirty files are computed against the HEAD blob,
// so the aggregate is the committed delta plus the uncommitted delta.
func (i *Inspector) overlayWorktree(snap *Snapshot, headTree *object.Tree) error {
	wt, err := i.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	wt.Excludes = append(wt.Excludes, checkpoint.WorktreeExcludes...)
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("failed to get worktree status: %w", err)
	}

	seen := make(map[string]int, len(snap.Changes))
	for idx, fc := range snap.Changes {
		seen[fc.Path] = idx
	}

	paths := make([]string, 0, len(status))
	for path, st := range status {
		if st.Staging == git.Unmodified && st.Worktree == git.Unmodified {
			continue
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		oldContent, inHead := blobContents(headTree, path)
		newContent, onDisk := i.diskContents(path)

		var action Action
		switch {
		case !onDisk:
			action = ActionDeleted
		case !inHead:
			action = ActionCreated
		default:
			action = ActionModified
		}

		ins, del := lineDelta(oldContent, newContent)
		snap.LinesChanged += ins + del

		if idx, ok := seen[path]; ok {
			// Already changed base..HEAD; the final state decides the action.
			snap.Changes[idx].Action = combineActions(snap.Changes[idx].Action, action)
			continue
		}
		seen[path] = len(snap.Changes)
		snap.Changes = append(snap.Changes, FileChange{Path: path, Action: action})
	}
	return nil
}

// combineActions resolves the classification for a path changed both in
// history and on disk: creation survives further edits, deletion wins.
func combineActions(committed, dirty Action) Action {
	if dirty == ActionDeleted {
		return ActionDeleted
	}
	if committed == ActionCreated {
		return ActionCreated
	}
	return dirty
}

func blobContents(tree *object.Tree, path string) (string, bool) {
	if tree == nil {
		return "", false
	}
	f, err := tree.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", false
		}
		return "", false
	}
	content, err := f.Contents()
	if err != nil {
		return "", false
	}
	return content, true
}

func (i *Inspector) diskContents(path string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(i.workdir, path)) //nolint:gosec // Paths come from git status.
	if err != nil {
		return "", false
	}
	return string(data), true
}

// lineDelta counts inserted and deleted lines between two texts using a
// line-granular diff.
func lineDelta(oldText, newText string) (insertions, deletions int) {
	if oldText == newText {
		return 0, 0
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		n := countLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			insertions += n
		case diffmatchpatch.DiffDelete:
			deletions += n
		case diffmatchpatch.DiffEqual:
		}
	}
	return insertions, deletions
}

// countLines counts newline-terminated lines, treating a trailing partial
// line as one line.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
