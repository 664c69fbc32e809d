// Package artifact contains implementations of core.ArtifactStore.
//
// The interface lives in core so the orchestrator and the HTTP layer can
// depend on it without importing a backend. Runs export chart specifications
// here; the server hands them out by name.
package artifact
