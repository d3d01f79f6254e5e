// Package session orchestrates one supervised agent run: it owns the
// policy, the checkpoint chain, the violation detector, and the audit
// ledger, and drives the lifecycle state machine from a periodic
// monitoring loop.
//
// Concurrency model: the agent process runs on its own; the monitoring
// loop is the only writer of session state. A terminal transition is
// applied exactly once, and finalization (final checkpoint + ledger
// flush) runs exactly once on every exit route. When a timeout and a
// violation become true in the same evaluation, the timeout wins: the
// agent is being stopped regardless of cause.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wardenhq/warden/cmd/warden/cli/agent"
	"github.com/wardenhq/warden/cmd/warden/cli/checkpoint"
	"github.com/wardenhq/warden/cmd/warden/cli/config"
	"github.com/wardenhq/warden/cmd/warden/cli/detect"
	"github.com/wardenhq/warden/cmd/warden/cli/inspect"
	"github.com/wardenhq/warden/cmd/warden/cli/ledger"
	"github.com/wardenhq/warden/cmd/warden/cli/logging"
	"github.com/wardenhq/warden/cmd/warden/cli/policy"
	"github.com/wardenhq/warden/cmd/warden/cli/telemetry"
)

// StateDirName is the per-repository directory holding session artifacts
// (command logs, ledgers, session logs).
const StateDirName = checkpoint.StateDirName

// Options configures a session.
type Options struct {
	// Task is the free-text task for the agent.
	Task string

	// AgentKind selects the registered agent adapter.
	AgentKind string

	// AgentCommand is the launch argv for the custom agent kind.
	AgentCommand []string

	// Workdir is the supervised working tree root.
	Workdir string

	// Config supplies timing and telemetry settings.
	Config *config.Config

	// Policy is the validated guardrail policy.
	Policy *policy.Policy

	// Telemetry receives per-cycle events. Nil means disabled.
	Telemetry telemetry.Client
}

// Session supervises one agent run. All fields are owned by the single
// lifecycle goroutine; external readers use the accessor methods after
// Run returns.
type Session struct {
	ID           string
	StartedAt    time.Time
	BaseRevision string

	opts      Options
	stateDir  string
	cmdLog    string
	status    Status
	statusMu  sync.Mutex
	mgr       *checkpoint.Manager // nil when no repository is present
	inspector *inspect.Inspector  // nil when no repository is present
	detector  *detect.Detector
	led       *ledger.Ledger
	reported  detect.ReportedCommands
	lastRev   string
	telem     telemetry.Client

	finalizeOnce sync.Once
}

// New prepares a session in INIT state: state directory created, policy
// and detector wired, repository opened (absence is a warning, not an
// error), initial checkpoint attempted, ledger header written.
func New(ctx context.Context, opts Options) (*Session, error) {
	ctx = logging.WithComponent(ctx, "session")

	id := strings.ToLower(ulid.Make().String())
	stateDir := filepath.Join(opts.Workdir, StateDirName, id)
	if err := os.MkdirAll(stateDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create session state dir: %w", err)
	}
	// Self-ignoring state dir, like .terraform does it. Keeps session
	// artifacts out of checkpoints and out of the operator's git status.
	ignorePath := filepath.Join(opts.Workdir, StateDirName, ".gitignore")
	if _, err := os.Stat(ignorePath); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(ignorePath, []byte("*\n"), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write state dir ignore file: %w", err)
		}
	}

	s := &Session{
		ID:        id,
		StartedAt: time.Now(),
		opts:      opts,
		stateDir:  stateDir,
		cmdLog:    filepath.Join(stateDir, "commands.log"),
		status:    StatusInit,
		reported:  make(detect.ReportedCommands),
		telem:     opts.Telemetry,
	}
	if s.telem == nil {
		s.telem = telemetry.New(false, "", "")
	}

	detector, err := detect.New(opts.Policy, opts.Workdir)
	if err != nil {
		logging.Warn(ctx, "secret ruleset degraded", slog.Any("error", err))
	}
	s.detector = detector

	mgr, err := checkpoint.Open(opts.Workdir, id)
	switch {
	case errors.Is(err, checkpoint.ErrNoRepository):
		logging.Warn(ctx, "no git repository; session runs without rollback capability")
	case err != nil:
		logging.Warn(ctx, "failed to open repository", slog.Any("error", err))
	default:
		s.mgr = mgr
		s.inspector = inspect.New(mgr.Repository(), opts.Workdir)
		if cp, err := mgr.Save(ctx, "warden: session start", checkpoint.TriggerManual); err != nil {
			logging.Warn(ctx, "initial checkpoint failed", slog.Any("error", err))
		} else if cp != nil {
			logging.Info(ctx, "initial checkpoint", slog.String("revision", cp.Revision))
		}
		s.BaseRevision = mgr.Head()
		s.lastRev = s.BaseRevision
	}

	s.led = ledger.New(filepath.Join(stateDir, "ledger.json"), ledger.Metadata{
		SessionID:          id,
		Task:               opts.Task,
		Agent:              opts.AgentKind,
		Timeout:            opts.Config.Session.Timeout,
		CheckpointInterval: opts.Config.Session.CheckpointInterval,
		StartedAt:          s.StartedAt,
		WorkingDirectory:   opts.Workdir,
		BaseRevision:       s.BaseRevision,
	})
	if err := s.led.Flush(); err != nil {
		return nil, err
	}
	return s, nil
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// Violations returns the full violation ledger in recording order.
func (s *Session) Violations() []detect.Violation {
	return s.led.Violations()
}

// Events returns the recorded ledger events in order.
func (s *Session) Events() []ledger.Event {
	return s.led.Events()
}

// LedgerPath returns the flushed ledger file location.
func (s *Session) LedgerPath() string { return s.led.Path() }

// CommandLogPath returns the append-only command log location.
func (s *Session) CommandLogPath() string { return s.cmdLog }

// transition applies ev through the state machine and logs phase changes.
// Returns the resulting status.
func (s *Session) transition(ctx context.Context, ev Event) Status {
	s.statusMu.Lock()
	old := s.status
	s.status = Transition(old, ev)
	next := s.status
	s.statusMu.Unlock()

	if next != old {
		logging.Info(ctx, "phase transition",
			slog.String("session_id", s.ID),
			slog.String("event", string(ev)),
			slog.String("from", string(old)),
			slog.String("to", string(next)),
		)
	}
	return next
}

// Run starts the agent and drives the monitoring loop until a terminal
// state is reached. It always finalizes exactly once before returning.
func (s *Session) Run(ctx context.Context) (Status, error) {
	ctx = logging.WithComponent(ctx, "session")

	handle, err := s.startAgent(ctx)
	if err != nil {
		logging.Error(ctx, "agent failed to start", slog.Any("error", err))
		final := s.transition(ctx, EventAgentFailed)
		s.finalize(ctx, final)
		return final, err
	}
	s.transition(ctx, EventAgentStarted)

	interval := s.opts.Config.Session.CheckpointInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	timeout := time.NewTimer(s.opts.Config.Session.Timeout)
	defer timeout.Stop()

	var runErr error
	final := StatusFailed

loop:
	for {
		select {
		case <-ctx.Done():
			// External cancellation: stop the agent, stop scheduling
			// cycles, finalize below.
			_ = handle.Terminate()
			final = s.transition(ctx, EventCanceled)
			break loop

		case <-timeout.C:
			logging.Warn(ctx, "session timeout elapsed", slog.Duration("timeout", s.opts.Config.Session.Timeout))
			_ = handle.Terminate()
			final = s.transition(ctx, EventTimeout)
			break loop

		case agentErr := <-handle.Done():
			if agentErr != nil {
				logging.Error(ctx, "agent exited abnormally", slog.Any("error", agentErr))
				runErr = agentErr
				final = s.transition(ctx, EventAgentFailed)
			} else {
				final = s.transition(ctx, EventAgentCompleted)
			}
			break loop

		case <-ticker.C:
			violations := s.cycle(ctx)

			// Tie-break: if the timeout fired while this cycle ran, the
			// timeout outcome wins over any violation found in the same
			// evaluation.
			select {
			case <-timeout.C:
				_ = handle.Terminate()
				final = s.transition(ctx, EventTimeout)
				break loop
			default:
			}

			if len(violations) > 0 && s.opts.Policy.OnViolation == policy.ActionStop {
				logging.Warn(ctx, "stopping session on violation",
					slog.Int("violations", len(violations)),
				)
				_ = handle.Terminate()
				final = s.transition(ctx, EventViolationStop)
				break loop
			}
		}
	}

	s.finalize(ctx, final)
	return final, runErr
}

func (s *Session) startAgent(ctx context.Context) (agent.Handle, error) {
	adapter, err := agent.New(s.opts.AgentKind)
	if err != nil {
		return nil, err
	}
	return adapter.Start(ctx, agent.StartOptions{
		Task:           s.opts.Task,
		Workdir:        s.opts.Workdir,
		CommandLogPath: s.cmdLog,
		Command:        s.opts.AgentCommand,
	})
}

// cycle runs one monitoring pass: checkpoint first, then detect against
// the freshly captured state, then flush the ledger and emit telemetry.
// Returns the violations found this cycle.
func (s *Session) cycle(ctx context.Context) []detect.Violation {
	start := time.Now()

	s.checkpointAndRecord(ctx)

	snap := &inspect.Snapshot{}
	if s.inspector != nil {
		var err error
		snap, err = s.inspector.Since(ctx, s.BaseRevision)
		if err != nil {
			logging.Warn(ctx, "change inspection failed", slog.Any("error", err))
			snap = &inspect.Snapshot{}
		}
	}

	commandLog := s.readCommandLog()
	violations := s.detector.Detect(snap, commandLog, s.reported)
	for _, v := range violations {
		logging.Warn(ctx, "violation detected",
			slog.String("kind", string(v.Kind)),
			slog.String("detail", v.Detail),
			slog.String("file", v.File),
		)
		s.led.RecordViolation(v)
	}

	if err := s.led.Flush(); err != nil {
		logging.Warn(ctx, "ledger flush failed", slog.Any("error", err))
	}

	s.telem.Capture(telemetry.SessionEvent{
		SessionID:      s.ID,
		EventType:      telemetry.EventCycle,
		Task:           s.opts.Task,
		Agent:          s.opts.AgentKind,
		TimeoutSeconds: int(s.opts.Config.Session.Timeout.Seconds()),
		CheckResults:   snap.FilesChanged,
		Violations:     len(violations),
	})

	logging.LogDuration(ctx, slog.LevelDebug, "monitoring cycle", start,
		slog.Int("files_changed", snap.FilesChanged),
		slog.Int("lines_changed", snap.LinesChanged),
		slog.Int("violations", len(violations)),
	)
	return violations
}

// checkpointAndRecord saves a periodic checkpoint and appends the change
// records for files touched since the previous checkpoint. Checkpoint
// failures are warnings: losing a snapshot must not stop monitoring.
func (s *Session) checkpointAndRecord(ctx context.Context) {
	if s.mgr == nil {
		return
	}

	cp, err := s.mgr.Save(ctx, "warden: periodic checkpoint", checkpoint.TriggerPeriodic)
	if err != nil {
		logging.Warn(ctx, "checkpoint failed", slog.Any("error", err))
		return
	}
	if cp == nil {
		return // Clean tree: nothing to capture.
	}

	s.led.RecordCheckpoint(*cp)
	if snap, err := s.inspector.BetweenCommits(ctx, s.lastRev, cp.Revision); err == nil {
		for _, fc := range snap.Changes {
			s.led.RecordChange(fc.Path, string(fc.Action), cp.CreatedAt)
		}
	} else {
		logging.Warn(ctx, "failed to record changes", slog.Any("error", err))
	}
	s.lastRev = cp.Revision
}

// finalize runs the terminal cleanup exactly once: final checkpoint,
// finalize marker, ledger flush, closing telemetry event.
func (s *Session) finalize(ctx context.Context, final Status) {
	s.finalizeOnce.Do(func() {
		if s.mgr != nil {
			cp, err := s.mgr.Save(ctx, "warden: final checkpoint", checkpoint.TriggerFinal)
			if err != nil {
				logging.Warn(ctx, "final checkpoint failed", slog.Any("error", err))
			} else if cp != nil {
				s.led.RecordCheckpoint(*cp)
				if snap, err := s.inspector.BetweenCommits(ctx, s.lastRev, cp.Revision); err == nil {
					for _, fc := range snap.Changes {
						s.led.RecordChange(fc.Path, string(fc.Action), cp.CreatedAt)
					}
				}
				s.lastRev = cp.Revision
			}
		}

		s.led.Finalize(string(final))
		if err := s.led.Flush(); err != nil {
			logging.Error(ctx, "final ledger flush failed", slog.Any("error", err))
		}

		s.telem.Capture(telemetry.SessionEvent{
			SessionID:      s.ID,
			EventType:      telemetry.EventFinished,
			Task:           s.opts.Task,
			Agent:          s.opts.AgentKind,
			TimeoutSeconds: int(s.opts.Config.Session.Timeout.Seconds()),
			Violations:     len(s.led.Violations()),
			Status:         string(final),
		})
		s.telem.Close()

		logging.Info(ctx, "session finalized",
			slog.String("session_id", s.ID),
			slog.String("status", string(final)),
		)
	})
}

func (s *Session) readCommandLog() string {
	data, err := os.ReadFile(s.cmdLog) //nolint:gosec // Session-owned path.
	if err != nil {
		return ""
	}
	return string(data)
}
