// Package status tracks what every agent is doing in every session.
//
// The Registry keeps one Record per (session, agent name). Records are kept
// in insertion order and are returned as copies. A single mutex guards the
// whole registry, which keeps per-(session, agent) transitions atomic.
package status

import (
	"fmt"
	"sync"
	"time"
)

// Status is the activity state of an agent within a session.
type Status string

const (
	Idle     Status = "idle"
	Working  Status = "working"
	Complete Status = "complete"
	Error    Status = "error"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case Idle, Working, Complete, Error:
		return true
	}
	return false
}

// Terminal reports whether s ends a unit of work.
func (s Status) Terminal() bool { return s == Complete || s == Error }

// Record describes the latest activity of one agent in one session.
type Record struct {
	Session   string         `json:"session"`
	Agent     string         `json:"agent"`
	Type      string         `json:"type"`
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	StartTime time.Time      `json:"start_time,omitempty"`
	EndTime   time.Time      `json:"end_time,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
	Aux       map[string]any `json:"aux,omitempty"`
}

// Duration returns EndTime-StartTime for terminal records, zero otherwise.
func (r Record) Duration() time.Duration {
	if !r.Status.Terminal() || r.StartTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

func (r Record) clone() Record {
	if r.Aux != nil {
		aux := make(map[string]any, len(r.Aux))
		for k, v := range r.Aux {
			aux[k] = v
		}
		r.Aux = aux
	}
	return r
}

type sessionLog struct {
	order   []string
	records map[string]*Record
}

// Registry is the process-wide status log. The zero value is not usable;
// construct it with NewRegistry.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*sessionLog
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*sessionLog{}, now: time.Now}
}

// Update sets the status of agent within session and returns the updated
// record. Re-using a name mutates the existing record. The first transition
// into Working stamps StartTime; Complete and Error stamp EndTime. A
// terminal update without a prior Working uses EndTime as StartTime.
// A nil aux keeps the previous payload.
func (r *Registry) Update(session, agent string, st Status, agentType, message string, aux map[string]any) (Record, error) {
	if !st.Valid() {
		return Record{}, fmt.Errorf("status: unknown status %q", st)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	log, ok := r.sessions[session]
	if !ok {
		log = &sessionLog{records: map[string]*Record{}}
		r.sessions[session] = log
	}
	rec, ok := log.records[agent]
	if !ok {
		rec = &Record{Session: session, Agent: agent}
		log.records[agent] = rec
		log.order = append(log.order, agent)
	}

	now := r.now().UTC()
	restarted := st == Working && rec.Status.Terminal()
	rec.Status = st
	rec.Message = message
	rec.UpdatedAt = now
	if agentType != "" {
		rec.Type = agentType
	}
	if aux != nil {
		rec.Aux = aux
	}
	switch {
	case restarted:
		// a new question reuses the agent's record
		rec.StartTime = now
		rec.EndTime = time.Time{}
	case st == Working && rec.StartTime.IsZero():
		rec.StartTime = now
	case st.Terminal():
		rec.EndTime = now
		if rec.StartTime.IsZero() {
			rec.StartTime = now
		}
	}
	return rec.clone(), nil
}

// Get returns the record of agent in session.
func (r *Registry) Get(session, agent string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.sessions[session]
	if !ok {
		return Record{}, false
	}
	rec, ok := log.records[agent]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// List returns the session's records in insertion order.
func (r *Registry) List(session string) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.sessions[session]
	if !ok {
		return []Record{}
	}
	out := make([]Record, 0, len(log.order))
	for _, name := range log.order {
		out = append(out, log.records[name].clone())
	}
	return out
}

// Clear removes every record of session.
func (r *Registry) Clear(session string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, session)
}

// ResetAll removes every record of every session.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = map[string]*sessionLog{}
}
