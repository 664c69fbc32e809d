// Package model defines the provider-agnostic completion capability used by
// InsightMesh specialists.
//
// Every specialist that "asks an LLM" consumes exactly one operation:
// Complete(prompt) -> text. Keeping the surface this small lets tests swap in
// the deterministic MockCompleter and lets the wiring layer choose a vendor
// adapter (model/openai, model/anthropic) without touching specialist code.
package model
