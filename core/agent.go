package core

import (
	"context"

	"github.com/hupe1980/insightmesh/dataset"
)

// Specialist and node labels. Labels key the agent registry, the planner's
// routing decisions and the flow graph's nodes.
const (
	LabelSQL          = "sql"
	LabelChart        = "chart"
	LabelInsight      = "insight"
	LabelDebate       = "debate"
	LabelCritique     = "critique"
	LabelDataCleaner  = "data_cleaner"
	LabelData         = "data"
	LabelNarrative    = "narrative"
	LabelReport       = "report"
	LabelPlanner      = "planner"
	LabelErrorHandler = "error_handler"
)

// SpecialistLabels lists the labels that may be configured per agent.
var SpecialistLabels = []string{
	LabelSQL, LabelChart, LabelInsight, LabelDebate, LabelCritique, LabelDataCleaner,
}

// Agent is the unit of work the flow engine and debate specialist call.
//
// Run never returns an error: failures are reported through the Result's
// failure shape (Success=false, ErrorKind, RecoveryAction, FallbackResponse).
// table is a borrowed read-only view; implementations must not mutate it.
type Agent interface {
	// Name returns the registry label of the agent.
	Name() string
	// Role returns a short human readable description of the agent's job.
	Role() string
	// Run executes the agent for one query.
	Run(ctx context.Context, query string, table *dataset.Table, kwargs map[string]any) *Result
}
