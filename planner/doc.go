// Package planner routes a question to a specialist label.
//
// Routing scores the question against a fixed intent keyword table, adjusts
// the scores for the shape of the attached table, learns from the outcome
// of earlier routings and optionally balances the workload across agents.
// Complex questions are decomposed into dependent sub-queries.
//
// The planner keeps bounded routing and feedback histories that can be
// persisted as YAML and reloaded across runs.
package planner
