// Package flow runs a question through the analysis graph.
//
// The graph has a single entry node (planner) and a single exit (End):
//
//	planner ─(next_node)─► chart | sql | insight | debate | data_cleaner | error_handler
//	chart | sql | insight | debate ─► critique
//	data_cleaner ─► clean_target
//	critique ─► End
//	error_handler ─► End
//
// Graph is a small hand-rolled DAG of labeled node functions with static and
// conditional edges. It is compiled once, which rejects unknown targets and
// cycles, and then invoked once per question with a fresh State.
package flow
