package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/hupe1980/insightmesh/core"
)

// DefaultMaxPerSession bounds the findings kept per session.
const DefaultMaxPerSession = 200

// StoredMemory is the internal representation persisted by InMemoryStore.
type StoredMemory struct {
	ID       string
	Content  string
	Metadata map[string]any
	Created  time.Time

	tokens map[string]struct{}
}

// Options configures an InMemoryStore.
type Options struct {
	// MaxPerSession caps stored findings per session; the oldest are evicted.
	MaxPerSession int
}

// InMemoryStore is a process-local MemoryStore.
//
// Search scores each stored finding by the share of query tokens it
// contains. An empty query matches everything with score 1. Results are
// ordered by score, then newest first. Concurrency: protected by RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	storage map[string][]StoredMemory // sessionID -> findings, oldest first
	seq     int
	max     int
}

var _ core.MemoryStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new in-memory finding store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{MaxPerSession: DefaultMaxPerSession}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxPerSession <= 0 {
		opts.MaxPerSession = DefaultMaxPerSession
	}
	return &InMemoryStore{storage: make(map[string][]StoredMemory), max: opts.MaxPerSession}
}

// Search returns up to limit findings of the session relevant to query.
func (m *InMemoryStore) Search(sessionID string, query string, limit int) ([]core.SearchResult, error) {
	if limit <= 0 {
		return []core.SearchResult{}, nil
	}
	q := tokenize(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.storage[sessionID]
	results := make([]core.SearchResult, 0, len(stored))
	order := make(map[string]int, len(stored))
	for i, s := range stored {
		score := 1.0
		if len(q) > 0 {
			hits := 0
			for tok := range q {
				if _, ok := s.tokens[tok]; ok {
					hits++
				}
			}
			if hits == 0 {
				continue
			}
			score = float64(hits) / float64(len(q))
		}
		md := make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			md[k] = v
		}
		order[s.ID] = i
		results = append(results, core.SearchResult{ID: s.ID, Content: s.Content, Score: score, Metadata: md})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return order[results[i].ID] > order[results[j].ID]
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Store appends a finding, evicting the oldest beyond MaxPerSession.
func (m *InMemoryStore) Store(sessionID string, content string, metadata map[string]any) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("memory: empty content")
	}
	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	list := append(m.storage[sessionID], StoredMemory{
		ID:       fmt.Sprintf("mem_%d", m.seq),
		Content:  content,
		Metadata: md,
		Created:  time.Now().UTC(),
		tokens:   tokenize(content),
	})
	if over := len(list) - m.max; over > 0 {
		list = append([]StoredMemory(nil), list[over:]...)
	}
	m.storage[sessionID] = list
	return nil
}

// Delete removes a stored finding by id.
func (m *InMemoryStore) Delete(sessionID string, memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.storage[sessionID]
	for i, s := range list {
		if s.ID == memoryID {
			m.storage[sessionID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("memory not found")
}

// Clear drops every finding of the session.
func (m *InMemoryStore) Clear(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.storage, sessionID)
	return nil
}

// Len returns the number of findings stored for the session.
func (m *InMemoryStore) Len(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.storage[sessionID])
}

func tokenize(s string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if len(f) > 2 {
			out[f] = struct{}{}
		}
	}
	return out
}
