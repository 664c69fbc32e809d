package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
)

// Callback observes agent lifecycle events of one kind.
//
// Callbacks run synchronously on the calling goroutine, so they should be
// fast. Unlike hooks, they cannot influence execution: a returned error or a
// panic is caught and logged by the CallbackManager and the agent continues.
type Callback interface {
	// Type returns the event kind this callback handles.
	Type() core.EventKind

	// Execute handles one event.
	Execute(ctx context.Context, ev core.AgentEvent) error
}

// FunctionCallback wraps a function as a Callback.
//
// Example:
//
//	hits := agent.NewFunctionCallback(core.EventCacheHit, func(ctx context.Context, ev core.AgentEvent) error {
//	    metrics.Inc(ev.AgentName)
//	    return nil
//	})
type FunctionCallback struct {
	kind core.EventKind
	fn   func(ctx context.Context, ev core.AgentEvent) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(kind core.EventKind, fn func(ctx context.Context, ev core.AgentEvent) error) *FunctionCallback {
	return &FunctionCallback{kind: kind, fn: fn}
}

// Type returns the event kind this function handles.
func (c *FunctionCallback) Type() core.EventKind { return c.kind }

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, ev core.AgentEvent) error {
	return c.fn(ctx, ev)
}

// CallbackManager keeps callbacks per event kind and dispatches events to
// them in registration order. It is safe for concurrent registration and
// dispatch.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[core.EventKind][]Callback
	logger    logging.Logger
}

// NewCallbackManager creates an empty manager. A nil logger discards
// callback failures.
func NewCallbackManager(logger logging.Logger) *CallbackManager {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &CallbackManager{callbacks: make(map[core.EventKind][]Callback), logger: logger}
}

// RegisterCallback adds a callback for its event kind.
func (cm *CallbackManager) RegisterCallback(cb Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
}

// ExecuteCallbacks dispatches ev to every callback registered for its kind.
// Failures never propagate.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, ev core.AgentEvent) {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[ev.Kind]...)
	cm.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cm.safeExecute(ctx, cb, ev); err != nil {
			cm.logger.Warn("event handler failed", "event", string(ev.Kind), "agent", ev.AgentName, "error", err)
		}
	}
}

func (cm *CallbackManager) safeExecute(ctx context.Context, cb Callback, ev core.AgentEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return cb.Execute(ctx, ev)
}

// Count returns the number of callbacks registered for kind.
func (cm *CallbackManager) Count(kind core.EventKind) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.callbacks[kind])
}
