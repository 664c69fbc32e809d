package planner

import "github.com/hupe1980/insightmesh/core"

// Intent names a kind of request.
type Intent string

const (
	IntentVisualization Intent = "data_visualization"
	IntentAnalysis      Intent = "data_analysis"
	IntentCleaning      Intent = "data_cleaning"
	IntentSQL           Intent = "sql_query"
	IntentInsight       Intent = "insight_generation"
	IntentCritique      Intent = "critique"
	IntentDebate        Intent = "debate"
	IntentNarrative     Intent = "narrative"
	IntentReport        Intent = "report"
)

type intentRule struct {
	intent   Intent
	agent    string
	keywords []string
}

// intentTable is ordered; earlier intents win ties.
var intentTable = []intentRule{
	{IntentVisualization, core.LabelChart, []string{"chart", "plot", "graph", "visualize", "show me", "display"}},
	{IntentAnalysis, core.LabelData, []string{"analyze", "statistics", "correlation", "distribution", "relationship"}},
	{IntentCleaning, core.LabelDataCleaner, []string{"clean", "remove", "fix", "missing values", "normalize", "standardize"}},
	{IntentSQL, core.LabelSQL, []string{"sql", "query", "select", "filter", "where", "join", "group by"}},
	{IntentInsight, core.LabelInsight, []string{"insights", "patterns", "tell me about", "what can you tell me"}},
	{IntentCritique, core.LabelCritique, []string{"evaluate", "critique", "review", "assess", "check", "validate"}},
	{IntentDebate, core.LabelDebate, []string{"debate", "perspectives", "pros and cons", "different views"}},
	{IntentNarrative, core.LabelNarrative, []string{"explain", "narrate", "story", "describe"}},
	{IntentReport, core.LabelReport, []string{"report", "document", "summary", "create report", "export"}},
}

// Agents returns every routable agent label in table order.
func Agents() []string {
	out := make([]string, len(intentTable))
	for i, r := range intentTable {
		out[i] = r.agent
	}
	return out
}

// AgentFor returns the agent label serving intent.
func AgentFor(intent Intent) string {
	for _, r := range intentTable {
		if r.intent == intent {
			return r.agent
		}
	}
	return ""
}

// IntentOf returns the intent served by an agent label.
func IntentOf(agent string) Intent {
	for _, r := range intentTable {
		if r.agent == agent {
			return r.intent
		}
	}
	return ""
}

// Keywords returns a copy of the built-in keywords of intent.
func Keywords(intent Intent) []string {
	for _, r := range intentTable {
		if r.intent == intent {
			return append([]string(nil), r.keywords...)
		}
	}
	return nil
}

// defaultDuration is the expected run time of an agent without history.
var defaultDuration = map[string]float64{
	core.LabelChart:       2,
	core.LabelData:        4,
	core.LabelDataCleaner: 2,
	core.LabelSQL:         3,
	core.LabelInsight:     5,
	core.LabelCritique:    3,
	core.LabelDebate:      15,
	core.LabelNarrative:   5,
	core.LabelReport:      8,
}

var dataFree = map[string]bool{
	core.LabelCritique:  true,
	core.LabelNarrative: true,
	core.LabelReport:    true,
}
