// Package session houses concrete implementations of core.SessionStore. The
// interface lives in the core package so the flow engine and orchestrator
// never depend on a concrete backend.
package session
