package specialist

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/util"
)

const arbiterInstruction = `You are the arbiter of a debate between data analysis agents.
Compare the answers and their critiques and pick the most trustworthy one.
Respond with a JSON object matching this schema:
%s`

// Decision is the arbiter's verdict.
type Decision struct {
	Winner    string `json:"winner" description:"Label of the winning agent or none"`
	Reason    string `json:"reason" description:"Why the winner was chosen"`
	Corrected string `json:"corrected,omitempty" description:"An optional corrected answer"`
}

// DecisionParseFailed is the decision used when the arbiter output cannot be parsed.
var DecisionParseFailed = Decision{Winner: "none", Reason: "parse-failed"}

// DebateOutput is the output of the Debate specialist.
type DebateOutput struct {
	Responses   map[string]*core.Result   `json:"responses"`
	Evaluations map[string]*core.Critique `json:"evaluations"`
	Decision    Decision                  `json:"decision"`
}

// Debate runs several specialists on the same question, critiques every
// answer and lets the model arbitrate.
type Debate struct {
	*agent.Agent
	instruction  agent.Instruction
	participants []core.Agent
	critic       core.Agent
}

// NewDebate creates the Debate specialist. participants answer concurrently;
// critic reviews each answer.
func NewDebate(participants []core.Agent, critic core.Agent, optFns ...func(o *Options)) *Debate {
	opts := newOptions(optFns)
	s := &Debate{
		instruction:  opts.instruction(fmt.Sprintf(arbiterInstruction, util.SchemaJSON(Decision{}))),
		participants: participants,
		critic:       critic,
	}
	s.Agent = agent.New(core.LabelDebate, "Lets specialists compete and arbitrates the best answer", s, opts.agentOptions())
	return s
}

// Execute implements agent.Executor.
func (s *Debate) Execute(ctx context.Context, call *agent.Call) (any, error) {
	if err := call.RequireTable(); err != nil {
		return nil, err
	}
	if len(s.participants) == 0 {
		return nil, core.NewError(core.KindValidation, core.LabelDebate, "no participants configured")
	}

	responses := make([]*core.Result, len(s.participants))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range s.participants {
		i, p := i, p
		g.Go(func() error {
			responses[i] = p.Run(gctx, call.Query, call.Table, nil)
			return nil
		})
	}
	_ = g.Wait()

	evaluations := make([]*core.Critique, len(responses))
	if s.critic != nil {
		g, gctx = errgroup.WithContext(ctx)
		for i, r := range responses {
			i, r := i, r
			g.Go(func() error {
				evaluations[i] = critiqueOf(s.critic.Run(gctx, call.Query, call.Table, map[string]any{KwargCandidate: r}))
				return nil
			})
		}
		_ = g.Wait()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &DebateOutput{
		Responses:   make(map[string]*core.Result, len(responses)),
		Evaluations: make(map[string]*core.Critique, len(responses)),
	}
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question: %s\n", call.Query)
	for i, p := range s.participants {
		name := p.Name()
		out.Responses[name] = responses[i]
		fmt.Fprintf(&prompt, "\n## %s\nAnswer: %s\n", name, answerText(responses[i]))
		if ev := evaluations[i]; ev != nil {
			out.Evaluations[name] = ev
			fmt.Fprintf(&prompt, "Critique: confidence=%s flagged=%t issues=%s\n",
				ev.Confidence, ev.Flagged, strings.Join(ev.Issues, "; "))
		}
	}

	system, err := s.instruction.Resolve(call)
	if err != nil {
		return nil, core.NewError(core.KindValidation, core.LabelDebate, "render instruction").Wrap(err)
	}
	out.Decision = DecisionParseFailed
	text, err := call.Complete(ctx, system, prompt.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		call.Logger.Warn("arbiter call failed", "error", err)
		return out, nil
	}
	var d Decision
	if err := util.DecodeInto(text, &d); err != nil || d.Winner == "" {
		call.Logger.Debug("arbiter decision not parseable", "error", err)
		return out, nil
	}
	out.Decision = d
	return out, nil
}

func critiqueOf(r *core.Result) *core.Critique {
	if r == nil {
		return nil
	}
	if c, ok := r.Output.(*core.Critique); ok && r.Success {
		return c
	}
	return &core.Critique{
		Confidence: core.ConfidenceLow,
		Flagged:    true,
		Issues:     []string{"critique failed: " + string(r.ErrorKind)},
	}
}
