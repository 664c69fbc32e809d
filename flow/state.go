package flow

import (
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
	"github.com/hupe1980/insightmesh/planner"
)

// State is carried along the graph edges for one question. Nodes update it
// in place.
type State struct {
	Query     string
	Table     *dataset.Table
	SessionID string

	// NextNode is written by the planner node and read by its router.
	NextNode string
	// CleanTarget is the node that follows data_cleaner.
	CleanTarget string
	Plan        *planner.Outcome

	Result   *core.Result
	Steps    []string
	History  []core.HistoryEntry
	Critique *core.Critique
	// Cleaning is the data_cleaner result when cleaning ran.
	Cleaning *core.Result

	// Error is the reason the error handler was entered.
	Error   string
	Message string
}

// NewState returns the initial state for one question.
func NewState(query string, table *dataset.Table, sessionID string) *State {
	return &State{Query: query, Table: table, SessionID: sessionID, Steps: []string{}}
}
