package core

import (
	"time"

	"github.com/hupe1980/insightmesh/dataset"
)

// SessionSnapshot is a point-in-time copy of a session's dataset binding.
type SessionSnapshot struct {
	Table     *dataset.Table   `json:"-"`
	Origin    string           `json:"origin"`
	Rows      int              `json:"rows"`
	Columns   []dataset.Column `json:"columns"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// SessionStore binds datasets and conversation history to session ids.
// Implementations serialize all mutations and hand out snapshots, never live
// references.
type SessionStore interface {
	// Update sets the session's table and origin label, creating the session
	// on first use.
	Update(sessionID string, table *dataset.Table, origin string) error
	// Swap replaces the table of an active session, keeping its origin.
	Swap(sessionID string, table *dataset.Table) error
	// Clear destroys the session including its history.
	Clear(sessionID string)
	// IsActive reports whether a table is set and has not been cleared.
	IsActive(sessionID string) bool
	// Snapshot returns a copy of the session's dataset binding.
	Snapshot(sessionID string) (SessionSnapshot, bool)
	// Append adds a completed query to the session history.
	Append(sessionID string, entry HistoryEntry)
	// History returns the session history, oldest first.
	History(sessionID string) []HistoryEntry
}
