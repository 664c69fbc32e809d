package core

// SearchResult represents a retrieved finding with a relevance score and arbitrary metadata.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

// MemoryStore persists short findings per session and retrieves the ones
// relevant to a new query. Implementations can back search with embeddings,
// keywords or any heuristic.
type MemoryStore interface {
	Search(sessionID string, query string, limit int) ([]SearchResult, error)
	Store(sessionID string, content string, metadata map[string]any) error
	Clear(sessionID string) error
}
