package specialist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
)

const insightInstruction = `You are a data analyst writing insights for business users.
The dataset has {{.rows}} rows and the columns: {{.schema}}.
Summarize the most important patterns in a short paragraph. Ground every statement in the findings provided.`

// relatedFindings is how many prior findings are added to the prompt.
const relatedFindings = 3

// InsightOutput is the output of the Insight specialist.
type InsightOutput struct {
	Insights    string          `json:"insights"`
	KeyFindings []string        `json:"key_findings"`
	DataProfile dataset.Profile `json:"data_profile"`
	Related     []string        `json:"related,omitempty"`
}

// Insight profiles the table, derives key findings and asks the completer
// for a narrative summary. With a memory store configured, findings of
// earlier questions in the same session are added to the prompt and new
// findings are stored.
type Insight struct {
	*agent.Agent
	instruction agent.Instruction
	memory      core.MemoryStore
}

// NewInsight creates the Insight specialist.
func NewInsight(optFns ...func(o *Options)) *Insight {
	opts := newOptions(optFns)
	s := &Insight{
		instruction: opts.instruction(insightInstruction),
		memory:      opts.Memory,
	}
	s.Agent = agent.New(core.LabelInsight, "Profiles the data and explains key findings", s, opts.agentOptions())
	return s
}

// SessionScoped implements agent.SessionScoped. Output depends on the
// session's finding memory whenever one is configured.
func (s *Insight) SessionScoped() bool { return s.memory != nil }

// Execute implements agent.Executor.
func (s *Insight) Execute(ctx context.Context, call *agent.Call) (any, error) {
	if err := call.RequireTable(); err != nil {
		return nil, err
	}
	profile := call.Table.Profile()
	findings := KeyFindings(profile)

	sessionID := core.SessionIDFrom(ctx)
	var related []string
	if s.memory != nil && sessionID != "" {
		hits, err := s.memory.Search(sessionID, call.Query, relatedFindings)
		if err != nil {
			call.Logger.Warn("finding memory search failed", "error", err)
		}
		for _, h := range hits {
			related = append(related, h.Content)
		}
	}

	system, err := s.instruction.Resolve(call)
	if err != nil {
		return nil, core.NewError(core.KindValidation, core.LabelInsight, "render instruction").Wrap(err)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question: %s\n\nKey findings:\n", call.Query)
	for _, f := range findings {
		fmt.Fprintf(&prompt, "- %s\n", f)
	}
	if len(related) > 0 {
		prompt.WriteString("\nEarlier findings in this conversation:\n")
		for _, f := range related {
			fmt.Fprintf(&prompt, "- %s\n", f)
		}
	}

	text, err := call.Complete(ctx, system, prompt.String())
	if err != nil {
		return nil, completionError(core.LabelInsight, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, core.NewError(core.KindGenerationFailed, core.LabelInsight, "model returned an empty summary")
	}

	if s.memory != nil && sessionID != "" {
		for _, f := range findings {
			if err := s.memory.Store(sessionID, f, map[string]any{"query": call.Query, "agent": core.LabelInsight}); err != nil {
				call.Logger.Warn("finding memory store failed", "error", err)
				break
			}
		}
	}

	return &InsightOutput{
		Insights:    text,
		KeyFindings: findings,
		DataProfile: profile,
		Related:     related,
	}, nil
}

// KeyFindings derives ordered, deterministic findings from a profile: shape
// first, then one finding per column, then missing values.
func KeyFindings(p dataset.Profile) []string {
	findings := []string{fmt.Sprintf("The dataset has %d rows and %d columns.", p.Rows, p.Width)}

	for _, c := range p.Columns {
		switch c.Type {
		case dataset.Number:
			if c.Min != nil && c.Max != nil && c.Mean != nil {
				findings = append(findings, fmt.Sprintf("%s ranges from %s to %s with a mean of %s.",
					c.Name, formatNumber(*c.Min), formatNumber(*c.Max), formatNumber(*c.Mean)))
			}
		case dataset.Timestamp:
			if c.First != nil && c.Last != nil {
				findings = append(findings, fmt.Sprintf("%s spans %s to %s.",
					c.Name, c.First.Format(time.DateOnly), c.Last.Format(time.DateOnly)))
			}
		default:
			if c.Unique > 0 {
				findings = append(findings, fmt.Sprintf("%s has %d distinct values; the most common is %q.",
					c.Name, c.Unique, c.Top))
			}
		}
	}

	for _, c := range p.Columns {
		if c.Missing > 0 {
			findings = append(findings, fmt.Sprintf("%s is missing %d of %d values.", c.Name, c.Missing, p.Rows))
		}
	}
	return findings
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}
