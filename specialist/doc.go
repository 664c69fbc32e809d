// Package specialist implements the analysis agents routed to by the
// planner: SQL, Chart, Insight, Debate, Critique and DataCleaner.
//
// Each specialist is an agent.Executor wrapped in an *agent.Agent, so every
// call gets caching, retries, timeouts, metrics and lifecycle events from
// the framework. Specialists read the table they are given and never
// modify it; DataCleaner returns a new table instead.
package specialist
