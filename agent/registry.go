package agent

import (
	"fmt"
	"sync"

	"github.com/hupe1980/insightmesh/core"
)

// HealthReporter is implemented by agents that expose a Health report.
// *Agent and every type embedding it satisfy it.
type HealthReporter interface {
	Health() Health
}

// Registry maps labels to agents. Registration order is preserved.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]core.Agent
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: map[string]core.Agent{}}
}

// Register adds a under its Name. Duplicate labels are rejected.
func (r *Registry) Register(a core.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.Name()]; ok {
		return fmt.Errorf("agent %q already registered", a.Name())
	}
	r.agents[a.Name()] = a
	r.order = append(r.order, a.Name())
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(agents ...core.Agent) {
	for _, a := range agents {
		if err := r.Register(a); err != nil {
			panic(err)
		}
	}
}

// Get returns the agent registered under label.
func (r *Registry) Get(label string) (core.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[label]
	return a, ok
}

// Labels returns the registered labels in registration order.
func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Health collects the reports of every agent that exposes one.
func (r *Registry) Health() map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Health, len(r.agents))
	for label, a := range r.agents {
		if hr, ok := a.(HealthReporter); ok {
			out[label] = hr.Health()
		}
	}
	return out
}
