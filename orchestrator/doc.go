// Package orchestrator is the entry point callers use to run a query through
// the analysis flow.
//
// An Orchestrator resolves the session table, invokes the flow, converts
// errors and panics into a FlowResult with status "error", and afterwards
// appends the turn to session history and reports the outcome back to the
// planner.
//
// # Responsibilities
//   - Synchronous runs (RunFlowSync) and asynchronous runs with cancellation
//     (RunFlowAsync, Cancel)
//   - flow.start / flow.complete span events on the injected tracer
//   - Session history persistence
//   - Planner feedback and best effort history saving
package orchestrator
