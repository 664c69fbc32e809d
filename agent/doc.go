// Package agent is the shared framework every specialist is built on.
//
// A specialist supplies an Executor; New wraps it in an Agent that adds:
//
//  1. Content addressed result caching (Cache, CachePolicy)
//  2. Linear retry with per-attempt timeout (Config.RetryAttempts, Config.Timeout)
//  3. Metrics per call and aggregated per agent, exported through OpenTelemetry
//  4. Lifecycle events dispatched to Callbacks (CallbackManager)
//  5. A uniform failure shape with error kind, recovery hint and data summary
//
// Execution model:
//   - Run never returns a Go error; failures come back as *core.Result with
//     Success=false.
//   - Executors receive a *Call holding the query, the borrowed table and a
//     metered completer. Call.Complete enforces Config.MaxModelCalls and
//     records token usage.
//   - Config can be replaced at any time with SetConfig; runs in flight keep
//     the config they started with.
package agent
