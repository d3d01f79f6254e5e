// Package agent defines the adapter contract between a session and the
// external coding agent it supervises, plus a registry of known agent
// kinds. The session only needs three things from an agent: start it,
// await its exit, and terminate it early.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownKind is returned when no adapter is registered for a kind.
var ErrUnknownKind = errors.New("unknown agent kind")

// Error reports an agent process that failed unexpectedly. Sessions treat
// this as terminal.
type Error struct {
	Kind string
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("agent %s: %v", e.Kind, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// StartOptions carries everything an adapter needs to launch the agent.
type StartOptions struct {
	// Task is the free-text task handed to the agent.
	Task string

	// Workdir is the working directory the agent runs in.
	Workdir string

	// CommandLogPath is the append-only command log the adapter writes:
	// its own launch line plus every output line from the agent.
	CommandLogPath string

	// Command overrides the launch argv for the custom kind.
	Command []string
}

// Handle controls a started agent process.
type Handle interface {
	// Done is closed when the agent exits. A non-nil value on the channel
	// reports abnormal termination.
	Done() <-chan error

	// Terminate signals the agent to stop. Idempotent.
	Terminate() error
}

// Adapter launches one kind of coding agent.
type Adapter interface {
	// Kind is the registry name, e.g. "claude-code".
	Kind() string

	// Start launches the agent. The returned Handle outlives ctx; ctx only
	// bounds the launch itself.
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// Factory constructs an Adapter.
type Factory func() Adapter

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds an adapter factory under kind. Called from init() in the
// adapter's file; duplicate registration panics.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic("agent: duplicate registration for " + kind)
	}
	registry[kind] = f
}

// New returns the adapter registered under kind.
func New(kind string) (Adapter, error) {
	registryMu.RLock()
	f, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return f(), nil
}

// Kinds lists registered kinds, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
