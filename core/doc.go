// Package core provides the foundational domain types and interfaces shared by
// InsightMesh packages. It defines:
//
//   - Agent (the unit the flow engine and debate call) and the specialist labels
//   - Result, Metrics and Critique shapes returned by agents
//   - AgentEvent lifecycle records
//   - The error taxonomy (ErrorKind, Error, Classify) and recovery actions
//   - MemoryStore for finding retrieval and ModelLimiter for call budgets
//
// Implementation concerns (caching, retries, persistence, graph execution)
// live in the agent, session, status, planner and flow packages.
package core
