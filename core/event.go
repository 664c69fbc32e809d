package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates the lifecycle points an agent reports.
type EventKind string

const (
	EventInit         EventKind = "init"
	EventPreProcess   EventKind = "pre_process"
	EventExecuteStart EventKind = "execute_start"
	EventExecuteEnd   EventKind = "execute_end"
	EventPostProcess  EventKind = "post_process"
	EventError        EventKind = "error"
	EventComplete     EventKind = "complete"
	EventCacheHit     EventKind = "cache_hit"
	EventCacheMiss    EventKind = "cache_miss"
)

// AllEventKinds lists every EventKind in lifecycle order.
var AllEventKinds = []EventKind{
	EventInit, EventPreProcess, EventExecuteStart, EventExecuteEnd, EventPostProcess,
	EventError, EventComplete, EventCacheHit, EventCacheMiss,
}

// AgentEvent is emitted by the agent framework at each lifecycle point.
// After emission it should be treated as immutable.
type AgentEvent struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	AgentName string         `json:"agent_name"`
	AgentID   string         `json:"agent_id"`
	CallID    string         `json:"call_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewAgentEvent creates an event stamped with a fresh id and UTC timestamp.
func NewAgentEvent(kind EventKind, agentName, agentID, callID string, payload map[string]any) AgentEvent {
	return AgentEvent{
		ID:        NewID(),
		Kind:      kind,
		AgentName: agentName,
		AgentID:   agentID,
		CallID:    callID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// NewID generates a new unique identifier for agents, calls, queries and runs.
func NewID() string { return uuid.NewString() }

// UnixSeconds returns the timestamp as fractional seconds since Unix epoch.
func (e AgentEvent) UnixSeconds() float64 { return float64(e.Timestamp.UnixNano()) / 1e9 }
