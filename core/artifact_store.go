package core

import "time"

// Artifact is a named export produced by a run, e.g. a chart specification.
type Artifact struct {
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// ArtifactStore keeps run exports per session.
type ArtifactStore interface {
	// Save stores or overwrites the artifact under its name.
	Save(sessionID string, a Artifact) error
	// Get returns the artifact or an error of kind validation when absent.
	Get(sessionID, name string) (Artifact, error)
	// List returns artifact metadata, oldest first. Data is omitted.
	List(sessionID string) []Artifact
	// Clear drops every artifact of the session.
	Clear(sessionID string)
}
