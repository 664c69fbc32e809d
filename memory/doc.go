// Package memory contains concrete core.MemoryStore implementations. The
// insight specialist stores its key findings per session and retrieves the
// ones relevant to a follow-up question. Depend on core.MemoryStore and pick
// an implementation at wiring time.
package memory
