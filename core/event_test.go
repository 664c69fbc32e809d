package core

import (
	"testing"
)

func TestAgentEvent_Constructor(t *testing.T) {
	e := NewAgentEvent(EventCacheHit, "sql", "agent-1", "call-1", map[string]any{"key": "abc"})
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Fatalf("NewAgentEvent did not initialize id/timestamp: %+v", e)
	}
	if e.Kind != EventCacheHit || e.AgentName != "sql" || e.AgentID != "agent-1" || e.CallID != "call-1" {
		t.Fatalf("NewAgentEvent malformed: %+v", e)
	}
	if e.Payload["key"] != "abc" {
		t.Fatalf("payload not carried: %+v", e.Payload)
	}
	if e.UnixSeconds() <= 0 {
		t.Fatalf("expected positive unix seconds")
	}
}

func TestAllEventKinds_Complete(t *testing.T) {
	seen := map[EventKind]bool{}
	for _, k := range AllEventKinds {
		seen[k] = true
	}
	for _, k := range []EventKind{EventInit, EventPreProcess, EventExecuteStart, EventExecuteEnd,
		EventPostProcess, EventError, EventComplete, EventCacheHit, EventCacheMiss} {
		if !seen[k] {
			t.Errorf("missing event kind %s", k)
		}
	}
}

func TestModelLimiter(t *testing.T) {
	l := NewModelLimiter(2)
	if err := l.Increment(); err != nil {
		t.Fatal(err)
	}
	if err := l.Increment(); err != nil {
		t.Fatal(err)
	}
	err := l.Increment()
	if !IsKind(err, KindResource) {
		t.Fatalf("expected resource error, got %v", err)
	}
	if l.Remaining() != -1 {
		t.Fatalf("remaining = %d", l.Remaining())
	}

	if NewModelLimiter(0).Remaining() != -1 {
		t.Fatalf("unlimited limiter should report -1")
	}
}
