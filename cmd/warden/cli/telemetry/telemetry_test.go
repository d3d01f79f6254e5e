package telemetry

import "testing"

func TestNew_DisabledReturnsNoop(t *testing.T) {
	c := New(false, "phc_key", "https://collector.example")
	if _, ok := c.(noopClient); !ok {
		t.Fatalf("disabled telemetry must be a no-op, got %T", c)
	}

	// Safe to call; must not panic or touch the network.
	c.Capture(SessionEvent{SessionID: "01jxtest", EventType: EventCycle})
	c.Close()
}

func TestNew_EnabledWithoutKeyReturnsNoop(t *testing.T) {
	c := New(true, "", "")
	if _, ok := c.(noopClient); !ok {
		t.Fatalf("missing API key must disable telemetry, got %T", c)
	}
}
