// Package server exposes sessions and the orchestrator over HTTP.
//
// Routes:
//
//	POST   /sessions/{id}/dataset   upload a CSV (text/csv) or JSON table
//	POST   /sessions/{id}/query     run a question through the flow
//	GET    /sessions/{id}/status    per-agent status records
//	GET    /sessions/{id}/history   conversation history
//	GET    /sessions/{id}/artifacts exported chart specifications
//	GET    /sessions/{id}/artifacts/{name}
//	DELETE /sessions/{id}           drop dataset, history and status
//	GET    /healthz                 liveness plus per-agent health
package server
