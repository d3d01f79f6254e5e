// Package ledger records every observable event of a session: file
// changes, violations, checkpoints, and the finalize marker. The ledger
// is append-only in memory and flushed atomically (write-then-rename) to
// a JSON document external tooling can tail mid-session.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wardenhq/warden/cmd/warden/cli/checkpoint"
	"github.com/wardenhq/warden/cmd/warden/cli/detect"
)

// EventType discriminates ledger events.
type EventType string

const (
	// EventChange records one file touched between two checkpoints.
	EventChange EventType = "change"
	// EventViolation records one detected policy breach.
	EventViolation EventType = "violation"
	// EventCheckpoint records one created checkpoint.
	EventCheckpoint EventType = "checkpoint"
	// EventFinalized marks session finalization. Exactly one per session.
	EventFinalized EventType = "finalized"
)

// ChangeRecord is one observed file change.
type ChangeRecord struct {
	Path       string    `json:"path"`
	Action     string    `json:"action"`
	ObservedAt time.Time `json:"observed_at"`
}

// Event is one ledger entry. Exactly one payload field is set, matching
// Type. Events are never mutated after append.
type Event struct {
	Type       EventType              `json:"type"`
	RecordedAt time.Time              `json:"recorded_at"`
	Change     *ChangeRecord          `json:"change,omitempty"`
	Violation  *detect.Violation      `json:"violation,omitempty"`
	Checkpoint *checkpoint.Checkpoint `json:"checkpoint,omitempty"`
	Status     string                 `json:"status,omitempty"`
}

// Metadata is the session header written once at INIT.
type Metadata struct {
	SessionID          string        `json:"session_id"`
	Task               string        `json:"task"`
	Agent              string        `json:"agent"`
	Timeout            time.Duration `json:"timeout"`
	CheckpointInterval time.Duration `json:"checkpoint_interval"`
	StartedAt          time.Time     `json:"started_at"`
	WorkingDirectory   string        `json:"working_directory"`
	BaseRevision       string        `json:"base_revision"`
}

// Document is the flushed on-disk representation.
type Document struct {
	Metadata Metadata `json:"metadata"`
	Events   []Event  `json:"events"`
}

// Ledger accumulates events for one session. All mutation goes through
// the session's single writer; the mutex only guards Flush racing a
// concurrent reader of the struct in tests.
type Ledger struct {
	mu     sync.Mutex
	path   string
	doc    Document
	sealed bool
}

// New creates a ledger that flushes to path.
func New(path string, meta Metadata) *Ledger {
	return &Ledger{path: path, doc: Document{Metadata: meta}}
}

// RecordChange appends one file-change event.
func (l *Ledger) RecordChange(path, action string, observedAt time.Time) {
	l.append(Event{
		Type:       EventChange,
		RecordedAt: time.Now(),
		Change:     &ChangeRecord{Path: path, Action: action, ObservedAt: observedAt},
	})
}

// RecordViolation appends one violation event.
func (l *Ledger) RecordViolation(v detect.Violation) {
	l.append(Event{Type: EventViolation, RecordedAt: time.Now(), Violation: &v})
}

// RecordCheckpoint appends one checkpoint event.
func (l *Ledger) RecordCheckpoint(cp checkpoint.Checkpoint) {
	l.append(Event{Type: EventCheckpoint, RecordedAt: time.Now(), Checkpoint: &cp})
}

// Finalize appends the finalize marker carrying the terminal status and
// seals the ledger. Appends after Finalize are dropped; the marker is
// recorded at most once.
func (l *Ledger) Finalize(status string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		return
	}
	l.doc.Events = append(l.doc.Events, Event{
		Type:       EventFinalized,
		RecordedAt: time.Now(),
		Status:     status,
	})
	l.sealed = true
}

func (l *Ledger) append(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sealed {
		return
	}
	l.doc.Events = append(l.doc.Events, e)
}

// Violations returns every violation recorded so far, in recording order.
func (l *Ledger) Violations() []detect.Violation {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []detect.Violation
	for _, e := range l.doc.Events {
		if e.Type == EventViolation && e.Violation != nil {
			out = append(out, *e.Violation)
		}
	}
	return out
}

// Events returns a copy of the event sequence.
func (l *Ledger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.doc.Events))
	copy(out, l.doc.Events)
	return out
}

// Flush writes the full document to disk atomically. Safe to call at any
// time, including mid-session; a flush after Finalize contains every
// event recorded during the session in recording order.
func (l *Ledger) Flush() error {
	l.mu.Lock()
	data, err := json.MarshalIndent(&l.doc, "", "  ")
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(l.path), 0o750); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	// Atomic write: temp file in the same directory, then rename.
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to rename ledger: %w", err)
	}
	return nil
}

// Path returns the flush destination.
func (l *Ledger) Path() string { return l.path }

// Read loads a flushed ledger document.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path chosen by the operator.
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ledger: %w", err)
	}
	return &doc, nil
}
