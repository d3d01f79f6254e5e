// Package telemetry emits best-effort session events to an external
// collector. Events are fire-and-forget: enqueue failures are ignored and
// never retried. When disabled, the client is a no-op and performs no
// network activity at all.
package telemetry

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/posthog/posthog-go"
)

// Event types sent to the collector.
const (
	EventCycle    = "session_cycle"
	EventFinished = "session_finished"
)

// SessionEvent is the payload attached to every outbound event.
type SessionEvent struct {
	SessionID      string
	EventType      string
	Task           string
	Agent          string
	TimeoutSeconds int
	CheckResults   int
	Violations     int
	Status         string
}

// Client sends session events. Implementations must never block the
// monitoring loop.
type Client interface {
	Capture(ev SessionEvent)
	Close()
}

// New returns a posthog-backed client when enabled, or a no-op client
// otherwise. The no-op has zero observable side effects.
func New(enabled bool, apiKey, endpoint string) Client {
	if !enabled || apiKey == "" {
		return noopClient{}
	}

	cfg := posthog.Config{}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}
	ph, err := posthog.NewWithConfig(apiKey, cfg)
	if err != nil {
		return noopClient{}
	}
	return &posthogClient{client: ph, distinctID: distinctID()}
}

type noopClient struct{}

func (noopClient) Capture(SessionEvent) {}
func (noopClient) Close()               {}

type posthogClient struct {
	client     posthog.Client
	distinctID string
}

func (c *posthogClient) Capture(ev SessionEvent) {
	// Enqueue is buffered and flushed in the background; errors are
	// dropped on purpose.
	_ = c.client.Enqueue(posthog.Capture{
		DistinctId: c.distinctID,
		Event:      ev.EventType,
		Properties: posthog.NewProperties().
			Set("session_id", ev.SessionID).
			Set("task", ev.Task).
			Set("agent", ev.Agent).
			Set("timeout_seconds", ev.TimeoutSeconds).
			Set("check_results", ev.CheckResults).
			Set("violations", ev.Violations).
			Set("status", ev.Status),
	})
}

func (c *posthogClient) Close() {
	c.client.Close()
}

// distinctID derives a stable, non-reversible machine identifier.
func distinctID() string {
	id, err := machineid.ProtectedID("warden")
	if err != nil {
		return "unknown"
	}
	return id
}
