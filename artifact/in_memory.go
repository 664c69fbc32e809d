package artifact

import (
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/insightmesh/core"
)

// InMemoryStore is an in-process ArtifactStore. Data is copied on save and on
// retrieval so callers never share buffers with the store.
//
// Layout: sessionID -> name -> artifact
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string]core.Artifact
	now       func() time.Time
}

var _ core.ArtifactStore = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string]core.Artifact), now: time.Now}
}

// Save stores or overwrites a. An empty name is rejected.
func (s *InMemoryStore) Save(sessionID string, a core.Artifact) error {
	if a.Name == "" {
		return core.NewError(core.KindValidation, "artifact.save", "artifact name must not be empty")
	}
	a.Data = append([]byte(nil), a.Data...)
	a.Size = len(a.Data)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.artifacts[sessionID]
	if !ok {
		m = make(map[string]core.Artifact)
		s.artifacts[sessionID] = m
	}
	m[a.Name] = a
	return nil
}

// Get returns a copy of the artifact or ErrNotFound.
func (s *InMemoryStore) Get(sessionID, name string) (core.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[sessionID][name]
	if !ok {
		return core.Artifact{}, ErrNotFound
	}
	a.Data = append([]byte(nil), a.Data...)
	return a, nil
}

// List returns metadata ordered by creation time, then name.
func (s *InMemoryStore) List(sessionID string) []core.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Artifact, 0, len(s.artifacts[sessionID]))
	for _, a := range s.artifacts[sessionID] {
		a.Data = nil
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Clear drops the session's artifacts.
func (s *InMemoryStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, sessionID)
}
