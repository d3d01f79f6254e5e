package session

// Status is the session lifecycle state.
//
//	INIT → RUNNING → {STOPPED, COMPLETED, TIMED_OUT, FAILED}
//
// The four right-hand states are terminal; a terminal status absorbs all
// further events so a transition is applied exactly once.
type Status string

const (
	// StatusInit is the pre-start state: policy loaded, initial checkpoint attempted.
	StatusInit Status = "INIT"
	// StatusRunning means the agent is live and the monitoring loop is scheduled.
	StatusRunning Status = "RUNNING"
	// StatusStopped means a violation or external cancellation stopped the session.
	StatusStopped Status = "STOPPED"
	// StatusCompleted means the agent finished normally before the timeout.
	StatusCompleted Status = "COMPLETED"
	// StatusTimedOut means the wall-clock timeout elapsed with the agent still running.
	StatusTimedOut Status = "TIMED_OUT"
	// StatusFailed means an unrecoverable internal or agent error occurred.
	StatusFailed Status = "FAILED"
)

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusStopped, StatusCompleted, StatusTimedOut, StatusFailed:
		return true
	case StatusInit, StatusRunning:
		return false
	}
	return false
}

// ExitCode maps a terminal status to the process exit code: zero only for
// normal completion.
func (s Status) ExitCode() int {
	if s == StatusCompleted {
		return 0
	}
	return 1
}

// Event is a lifecycle trigger.
type Event string

const (
	// EventAgentStarted moves INIT to RUNNING.
	EventAgentStarted Event = "agent_started"
	// EventAgentCompleted reports normal agent exit.
	EventAgentCompleted Event = "agent_completed"
	// EventAgentFailed reports abnormal agent exit.
	EventAgentFailed Event = "agent_failed"
	// EventTimeout reports wall-clock timeout expiry.
	EventTimeout Event = "timeout"
	// EventViolationStop reports a violation under the stop action.
	EventViolationStop Event = "violation_stop"
	// EventCanceled reports external cancellation (signal, parent context).
	EventCanceled Event = "canceled"
	// EventInternalError reports an unhandled error in the loop.
	EventInternalError Event = "internal_error"
)

// Transition returns the state after applying ev in cur. Terminal states
// absorb every event; events that don't apply in cur leave it unchanged.
func Transition(cur Status, ev Event) Status {
	if cur.Terminal() {
		return cur
	}
	switch cur {
	case StatusInit:
		if ev == EventAgentStarted {
			return StatusRunning
		}
		if ev == EventAgentFailed || ev == EventInternalError {
			return StatusFailed
		}
		if ev == EventCanceled {
			return StatusStopped
		}
	case StatusRunning:
		switch ev {
		case EventAgentCompleted:
			return StatusCompleted
		case EventAgentFailed, EventInternalError:
			return StatusFailed
		case EventTimeout:
			return StatusTimedOut
		case EventViolationStop, EventCanceled:
			return StatusStopped
		case EventAgentStarted:
		}
	case StatusStopped, StatusCompleted, StatusTimedOut, StatusFailed:
	}
	return cur
}
