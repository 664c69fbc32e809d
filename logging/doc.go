// Package logging provides a minimal logging interface and adapters for InsightMesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that agents, the planner and the flow engine use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - ZerologAdapter (default backend for the CLI and HTTP server)
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - WithLevel / With decorators for per-agent levels and bound fields
//
// Usage:
//
//	logger := logging.New(logging.Config{Level: logging.LevelDebug, Format: "json"})
//	sql := specialist.NewSQL(completer, func(o *agent.Options) { o.Logger = logger })
package logging
