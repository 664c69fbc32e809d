package session

import (
	"sync"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
)

// DefaultMaxHistory bounds the per-session conversation history.
const DefaultMaxHistory = 50

// Options configures an InMemoryStore.
type Options struct {
	// MaxHistory caps history entries per session; the oldest are dropped.
	MaxHistory int
}

type entry struct {
	table     *dataset.Table
	origin    string
	updatedAt time.Time
	history   []core.HistoryEntry
}

// InMemoryStore is a volatile SessionStore keeping sessions in a process
// local map. It is safe for concurrent access. Tables are cloned on the way
// in and on the way out, so callers never share state with the store.
type InMemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*entry
	maxHistory int
	now        func() time.Time
}

var _ core.SessionStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{MaxHistory: DefaultMaxHistory}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}
	return &InMemoryStore{
		sessions:   make(map[string]*entry),
		maxHistory: opts.MaxHistory,
		now:        time.Now,
	}
}

// Update binds table to the session, creating it lazily.
func (s *InMemoryStore) Update(sessionID string, table *dataset.Table, origin string) error {
	if err := validate(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreateLocked(sessionID)
	e.table = table.Clone()
	e.origin = origin
	e.updatedAt = s.now().UTC()
	return nil
}

// Swap replaces the table of an active session and keeps the origin label.
func (s *InMemoryStore) Swap(sessionID string, table *dataset.Table) error {
	if err := validate(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok || e.table == nil {
		return core.Errorf(core.KindValidation, "session.swap", "session %q has no dataset", sessionID)
	}
	e.table = table.Clone()
	e.updatedAt = s.now().UTC()
	return nil
}

// Clear destroys the session.
func (s *InMemoryStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// IsActive reports whether the session has a table.
func (s *InMemoryStore) IsActive(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	return ok && e.table != nil
}

// Snapshot returns a deep copy of the session's dataset binding.
func (s *InMemoryStore) Snapshot(sessionID string) (core.SessionSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok || e.table == nil {
		return core.SessionSnapshot{}, false
	}
	return core.SessionSnapshot{
		Table:     e.table.Clone(),
		Origin:    e.origin,
		Rows:      e.table.Len(),
		Columns:   e.table.Columns(),
		UpdatedAt: e.updatedAt,
	}, true
}

// Append adds a history entry, dropping the oldest beyond MaxHistory.
func (s *InMemoryStore) Append(sessionID string, h core.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.getOrCreateLocked(sessionID)
	if h.Timestamp.IsZero() {
		h.Timestamp = s.now().UTC()
	}
	e.history = append(e.history, cloneEntry(h))
	if over := len(e.history) - s.maxHistory; over > 0 {
		e.history = append([]core.HistoryEntry(nil), e.history[over:]...)
	}
}

// History returns copies of the session's history entries, oldest first.
func (s *InMemoryStore) History(sessionID string) []core.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return []core.HistoryEntry{}
	}
	out := make([]core.HistoryEntry, len(e.history))
	for i, h := range e.history {
		out[i] = cloneEntry(h)
	}
	return out
}

// Sessions returns the ids of all known sessions.
func (s *InMemoryStore) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// getOrCreateLocked returns the session entry, allocating it if needed;
// caller must hold the write lock.
func (s *InMemoryStore) getOrCreateLocked(sessionID string) *entry {
	e, ok := s.sessions[sessionID]
	if !ok {
		e = &entry{}
		s.sessions[sessionID] = e
	}
	return e
}

func validate(table *dataset.Table) error {
	if table == nil {
		return core.NewError(core.KindValidation, "session.update", "table is nil")
	}
	if table.Width() == 0 {
		return core.NewError(core.KindValidation, "session.update", "table schema is empty")
	}
	return nil
}

func cloneEntry(h core.HistoryEntry) core.HistoryEntry {
	h.Result = h.Result.Clone()
	h.Steps = append([]string(nil), h.Steps...)
	return h
}
