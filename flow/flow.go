package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/planner"
	"github.com/hupe1980/insightmesh/specialist"
	"github.com/hupe1980/insightmesh/status"
)

// Agent types reported to the status registry.
const (
	TypePlanner    = "planner"
	TypeSpecialist = "specialist"
	TypeCritic     = "critic"
	TypeHandler    = "handler"
)

// Options configures a Flow.
type Options struct {
	// Status receives working/complete/error transitions of every node.
	Status *status.Registry
	// Sessions receives the cleaned table after data_cleaner ran.
	Sessions core.SessionStore
	Logger   logging.Logger
	// CleanTarget is the node that follows data_cleaner.
	CleanTarget string
}

// Flow is the compiled analysis graph wired to a planner and the registered
// specialists.
type Flow struct {
	graph    *Compiled
	planner  *planner.Planner
	agents   *agent.Registry
	status   *status.Registry
	sessions core.SessionStore
	logger   logging.Logger
	target   string
}

// New builds and compiles the graph.
func New(p *planner.Planner, agents *agent.Registry, optFns ...func(o *Options)) (*Flow, error) {
	opts := Options{
		Status:      status.NewRegistry(),
		Logger:      logging.NoOpLogger{},
		CleanTarget: core.LabelInsight,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if p == nil || agents == nil {
		return nil, core.NewError(core.KindValidation, "flow", "planner and agent registry are required")
	}

	f := &Flow{
		planner:  p,
		agents:   agents,
		status:   opts.Status,
		sessions: opts.Sessions,
		logger:   opts.Logger,
		target:   opts.CleanTarget,
	}

	specialists := []string{core.LabelChart, core.LabelSQL, core.LabelInsight, core.LabelDebate}
	g := NewGraph().
		SetEntry(core.LabelPlanner).
		SetErrorNode(core.LabelErrorHandler).
		AddNode(core.LabelPlanner, f.node(core.LabelPlanner, TypePlanner, f.plan)).
		AddNode(core.LabelDataCleaner, f.node(core.LabelDataCleaner, TypeSpecialist, f.clean)).
		AddNode(core.LabelCritique, f.node(core.LabelCritique, TypeCritic, f.critique)).
		AddNode(core.LabelErrorHandler, f.node(core.LabelErrorHandler, TypeHandler, f.handleError))
	for _, label := range specialists {
		g.AddNode(label, f.node(label, TypeSpecialist, f.specialist(label))).
			AddEdge(label, core.LabelCritique)
	}
	routes := []string{core.LabelChart, core.LabelSQL, core.LabelInsight, core.LabelDebate, core.LabelDataCleaner, core.LabelErrorHandler}
	g.AddConditionalEdges(core.LabelPlanner, func(st *State) string { return st.NextNode }, routes...).
		AddConditionalEdges(core.LabelDataCleaner, func(st *State) string { return st.CleanTarget }, specialists...).
		AddEdge(core.LabelCritique, End).
		AddEdge(core.LabelErrorHandler, End)

	compiled, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile flow: %w", err)
	}
	f.graph = compiled
	return f, nil
}

// Status returns the status registry the flow reports to.
func (f *Flow) Status() *status.Registry { return f.status }

// Run walks the graph for st.
func (f *Flow) Run(ctx context.Context, st *State) error {
	if st.SessionID != "" {
		ctx = core.WithSessionID(ctx, st.SessionID)
	}
	return f.graph.Invoke(ctx, st)
}

// Planner returns the planner routing this flow.
func (f *Flow) Planner() *planner.Planner { return f.planner }

// NodeFor maps a planner label onto a graph node. The second result is the
// node that follows data_cleaner, if any.
func NodeFor(label, cleanTarget string) (string, string) {
	switch label {
	case core.LabelChart, core.LabelSQL, core.LabelInsight, core.LabelDebate:
		return label, ""
	case core.LabelData, core.LabelNarrative, core.LabelReport:
		return core.LabelInsight, ""
	case core.LabelCritique:
		return core.LabelDebate, ""
	case core.LabelDataCleaner:
		return core.LabelDataCleaner, cleanTarget
	}
	return label, ""
}

// node brackets fn with status transitions and records the step.
func (f *Flow) node(label, typ string, fn NodeFunc) NodeFunc {
	return func(ctx context.Context, st *State) (err error) {
		f.setStatus(st.SessionID, label, status.Working, typ, "started", nil)
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in %s: %v", label, r)
			}
			st.Steps = append(st.Steps, label)
			res := st.Result
			if label == core.LabelDataCleaner {
				res = st.Cleaning
			}
			switch {
			case err != nil:
				f.setStatus(st.SessionID, label, status.Error, typ, err.Error(), nil)
			case typ == TypeSpecialist && res != nil && !res.Success:
				f.setStatus(st.SessionID, label, status.Error, typ, res.Error, nil)
			default:
				f.setStatus(st.SessionID, label, status.Complete, typ, "done", nil)
			}
		}()
		return fn(ctx, st)
	}
}

func (f *Flow) setStatus(session, label string, s status.Status, typ, msg string, aux map[string]any) {
	if _, err := f.status.Update(session, label, s, typ, msg, aux); err != nil {
		f.logger.Warn("status update failed", "agent", label, "error", err)
	}
}

func (f *Flow) plan(_ context.Context, st *State) error {
	out := f.planner.Plan(st.Query, st.Table)
	st.Plan = &out
	st.NextNode, st.CleanTarget = NodeFor(out.PrimaryAgent, f.target)
	f.setStatus(st.SessionID, core.LabelPlanner, status.Working, TypePlanner, "routed to "+st.NextNode, map[string]any{
		"primary_agent": out.PrimaryAgent,
		"confidence":    out.Confidence,
		"query_id":      out.QueryID,
	})
	f.logger.Debug("flow routed", "session_id", st.SessionID, "agent", out.PrimaryAgent, "node", st.NextNode)
	return nil
}

func (f *Flow) lookup(label string) (core.Agent, error) {
	a, ok := f.agents.Get(label)
	if !ok {
		return nil, core.Errorf(core.KindValidation, "flow", "no agent registered for %q", label)
	}
	return a, nil
}

func (f *Flow) specialist(label string) NodeFunc {
	return func(ctx context.Context, st *State) error {
		a, err := f.lookup(label)
		if err != nil {
			return err
		}
		st.Result = a.Run(ctx, st.Query, st.Table, nil)
		return nil
	}
}

func (f *Flow) clean(ctx context.Context, st *State) error {
	a, err := f.lookup(core.LabelDataCleaner)
	if err != nil {
		return err
	}
	res := a.Run(ctx, st.Query, st.Table, nil)
	st.Cleaning = res
	if !res.Success {
		f.logger.Warn("cleaning failed, continuing with original table", "error", res.Error)
		return nil
	}
	out, ok := res.Output.(*specialist.CleanOutput)
	if !ok || out.Table == nil {
		return nil
	}
	st.Table = out.Table
	if f.sessions != nil && st.SessionID != "" && f.sessions.IsActive(st.SessionID) {
		if err := f.sessions.Swap(st.SessionID, out.Table); err != nil {
			f.logger.Warn("session swap failed", "session_id", st.SessionID, "error", err)
		}
	}
	return nil
}

func (f *Flow) critique(ctx context.Context, st *State) error {
	a, err := f.lookup(core.LabelCritique)
	if err != nil {
		return err
	}
	res := a.Run(ctx, st.Query, st.Table, map[string]any{specialist.KwargCandidate: st.Result})

	c, ok := res.Output.(*core.Critique)
	if !res.Success || !ok {
		c = &core.Critique{
			Confidence: core.ConfidenceLow,
			Flagged:    true,
			Issues:     []string{"critique failed: " + string(res.ErrorKind)},
			Advice:     res.FallbackResponse,
		}
	}
	st.Critique = c

	if c.Confidence == core.ConfidenceLow && c.Flagged && st.Result != nil {
		r := st.Result.Clone()
		r.Warning = "This answer may be unreliable: " + strings.Join(c.Issues, "; ")
		r.Issues = append([]string(nil), c.Issues...)
		st.Result = r
	}
	return nil
}

func (f *Flow) handleError(_ context.Context, st *State) error {
	reason := st.Error
	if reason == "" {
		reason = "the request could not be routed"
	}
	kind := core.KindUnknown
	if strings.Contains(reason, "unknown route") {
		kind = core.KindValidation
	}
	st.Message = kind.FallbackMessage()
	st.Result = &core.Result{
		Agent:            core.LabelErrorHandler,
		Role:             "Produces a fallback answer",
		Success:          false,
		Error:            reason,
		ErrorKind:        kind,
		RecoveryAction:   kind.Recovery(),
		FallbackResponse: st.Message,
		Query:            st.Query,
		DataSummary:      st.Table.Summarize(),
	}
	return nil
}
