// Package insightmesh is the high-level facade over the analysis core. Most
// applications interact with it by:
//  1. Creating an InsightMesh via New or FromConfig
//  2. Loading a table into a session (LoadDataset, LoadCSV)
//  3. Asking questions synchronously (Ask) or asynchronously (AskAsync)
//
// The facade wires the specialists, planner, flow and orchestrator together.
// Defaults use in-memory stores and are safe for local development and tests.
package insightmesh

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/anthropics/anthropic-sdk-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/artifact"
	"github.com/hupe1980/insightmesh/config"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
	"github.com/hupe1980/insightmesh/flow"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/memory"
	"github.com/hupe1980/insightmesh/model"
	anthropicmodel "github.com/hupe1980/insightmesh/model/anthropic"
	openaimodel "github.com/hupe1980/insightmesh/model/openai"
	"github.com/hupe1980/insightmesh/orchestrator"
	"github.com/hupe1980/insightmesh/planner"
	"github.com/hupe1980/insightmesh/session"
	"github.com/hupe1980/insightmesh/specialist"
	"github.com/hupe1980/insightmesh/status"
)

// Options configures the InsightMesh instance.
type Options struct {
	// Completer serves every specialist. Required.
	Completer model.Completer
	// AgentConfigs overrides the framework config per specialist label.
	AgentConfigs map[string]agent.Config
	// Disabled lists specialist labels that are not registered.
	Disabled map[string]bool
	// Planner configures routing.
	Planner planner.Options
	// Engine creates SQL engines; defaults to the in-memory SQLite engine.
	Engine specialist.EngineFactory

	// Stores (defaults to in-memory implementations if not provided)
	Sessions  core.SessionStore
	Memory    core.MemoryStore
	Status    *status.Registry
	Artifacts core.ArtifactStore

	Tracer trace.Tracer
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// InsightMesh aggregates the wired components.
type InsightMesh struct {
	agents    *agent.Registry
	planner   *planner.Planner
	flow      *flow.Flow
	orch      *orchestrator.Orchestrator
	sessions  core.SessionStore
	memory    core.MemoryStore
	status    *status.Registry
	artifacts core.ArtifactStore
	logger    logging.Logger
}

// New wires an InsightMesh. Planner history is loaded when a history dir is
// configured; a load failure is logged and routing starts fresh.
func New(optFns ...func(o *Options)) (*InsightMesh, error) {
	opts := Options{
		Planner: planner.DefaultOptions(),
		Logger:  logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Completer == nil {
		return nil, core.NewError(core.KindValidation, "insightmesh.new", "a completer is required")
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewInMemoryStore()
	}
	if opts.Memory == nil {
		opts.Memory = memory.NewInMemoryStore()
	}
	if opts.Status == nil {
		opts.Status = status.NewRegistry()
	}
	if opts.Artifacts == nil {
		opts.Artifacts = artifact.NewInMemoryStore()
	}
	if opts.Planner.Logger == nil {
		opts.Planner.Logger = opts.Logger
	}

	reg, err := buildAgents(opts)
	if err != nil {
		return nil, err
	}

	p, err := planner.New(func(o *planner.Options) { *o = opts.Planner })
	if err != nil {
		return nil, err
	}
	if opts.Planner.HistoryDir != "" {
		if err := p.Load(); err != nil {
			opts.Logger.Warn("planner history not loaded", "error", err)
		}
	}

	f, err := flow.New(p, reg, func(o *flow.Options) {
		o.Status = opts.Status
		o.Sessions = opts.Sessions
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(f, func(o *orchestrator.Options) {
		o.Sessions = opts.Sessions
		o.Artifacts = opts.Artifacts
		o.Logger = opts.Logger
		o.Tracer = opts.Tracer
	})

	return &InsightMesh{
		agents:    reg,
		planner:   p,
		flow:      f,
		orch:      orch,
		sessions:  opts.Sessions,
		memory:    opts.Memory,
		status:    opts.Status,
		artifacts: opts.Artifacts,
		logger:    opts.Logger,
	}, nil
}

func buildAgents(opts Options) (*agent.Registry, error) {
	base := func(label string) []func(o *specialist.Options) {
		cfg, ok := opts.AgentConfigs[label]
		if !ok {
			cfg = agent.DefaultConfig()
		}
		return []func(o *specialist.Options){
			specialist.WithCompleter(opts.Completer),
			specialist.WithConfig(cfg),
			specialist.WithLogger(logging.With(opts.Logger, "agent", label)),
			specialist.WithEngine(opts.Engine),
			specialist.WithMemory(opts.Memory),
		}
	}

	reg := agent.NewRegistry()
	var critic core.Agent
	if !opts.Disabled[core.LabelCritique] {
		critic = specialist.NewCritique(base(core.LabelCritique)...)
	}
	var participants []core.Agent
	var all []core.Agent
	for _, label := range []string{core.LabelSQL, core.LabelChart, core.LabelInsight} {
		if opts.Disabled[label] {
			continue
		}
		var a core.Agent
		switch label {
		case core.LabelSQL:
			a = specialist.NewSQL(base(label)...)
		case core.LabelChart:
			a = specialist.NewChart(base(label)...)
		case core.LabelInsight:
			a = specialist.NewInsight(base(label)...)
		}
		participants = append(participants, a)
		all = append(all, a)
	}
	if !opts.Disabled[core.LabelDebate] {
		all = append(all, specialist.NewDebate(participants, critic, base(core.LabelDebate)...))
	}
	if !opts.Disabled[core.LabelDataCleaner] {
		all = append(all, specialist.NewDataCleaner(base(core.LabelDataCleaner)...))
	}
	if critic != nil {
		all = append(all, critic)
	}

	for _, a := range all {
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// FromConfig builds an InsightMesh from loaded configuration.
func FromConfig(cfg *config.Config, optFns ...func(o *Options)) (*InsightMesh, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger()
	completer, err := NewCompleter(cfg.LLM)
	if err != nil {
		return nil, err
	}

	agentConfigs := make(map[string]agent.Config, len(cfg.Agents))
	disabled := map[string]bool{}
	for _, label := range config.AgentLabels {
		ac := cfg.Agent(label)
		agentConfigs[label] = ac.Framework()
		if !ac.Enabled {
			disabled[label] = true
		}
	}
	maxHistory := cfg.Session.MaxHistory

	return New(append([]func(o *Options){func(o *Options) {
		o.Completer = completer
		o.AgentConfigs = agentConfigs
		o.Disabled = disabled
		o.Planner = cfg.PlannerOptions(logger)
		o.Sessions = session.NewInMemoryStore(func(so *session.Options) { so.MaxHistory = maxHistory })
		o.Logger = logger
	}}, optFns...)...)
}

// NewCompleter builds the completer named by the llm section. The mock
// provider answers offline with canned replies.
func NewCompleter(llm config.LLMConfig) (model.Completer, error) {
	switch llm.Provider {
	case "openai":
		return openaimodel.New(func(o *openaimodel.Options) {
			o.APIKey = llm.APIKey
			o.BaseURL = llm.BaseURL
			if llm.Model != "" {
				o.Model = llm.Model
			}
		}), nil
	case "anthropic":
		return anthropicmodel.New(func(o *anthropicmodel.Options) {
			o.APIKey = llm.APIKey
			if llm.Model != "" {
				o.Model = anthropic.Model(llm.Model)
			}
		}), nil
	case "mock":
		return OfflineCompleter(), nil
	}
	return nil, core.Errorf(core.KindValidation, "insightmesh.completer", "unknown llm provider %q", llm.Provider)
}

// OfflineCompleter answers without a model: SQL previews the first rows,
// critique stays neutral and everything else gets a short notice.
func OfflineCompleter() *model.MockCompleter {
	return model.NewMockCompleter("No language model is configured; showing computed findings only.").
		On("You are a SQL analyst", "SELECT * FROM df LIMIT 10").
		On("critical reviewer", `{"confidence": "medium", "issues": []}`)
}

// LoadDataset binds table to the session.
func (m *InsightMesh) LoadDataset(sessionID string, table *dataset.Table, origin string) error {
	return m.sessions.Update(sessionID, table, origin)
}

// LoadCSV reads a CSV stream and binds it to the session.
func (m *InsightMesh) LoadCSV(sessionID string, r io.Reader, origin string) error {
	tbl, err := dataset.ReadCSV(r)
	if err != nil {
		return core.NewError(core.KindValidation, "insightmesh.load_csv", "invalid csv").Wrap(err)
	}
	return m.LoadDataset(sessionID, tbl, origin)
}

// Ask runs query against the session's dataset.
func (m *InsightMesh) Ask(ctx context.Context, sessionID, query string) orchestrator.FlowResult {
	return m.orch.RunFlowSync(ctx, query, nil, sessionID)
}

// AskAsync starts query in the background.
func (m *InsightMesh) AskAsync(ctx context.Context, sessionID, query string) (string, <-chan orchestrator.FlowResult) {
	return m.orch.RunFlowAsync(ctx, query, nil, sessionID)
}

// Cancel stops an asynchronous run.
func (m *InsightMesh) Cancel(runID string) error { return m.orch.Cancel(runID) }

// Plan routes query without executing it. A nil table uses the session's.
func (m *InsightMesh) Plan(sessionID, query string, table *dataset.Table) planner.Outcome {
	if table == nil {
		if snap, ok := m.sessions.Snapshot(sessionID); ok {
			table = snap.Table
		}
	}
	return m.planner.Plan(query, table)
}

// Status returns the per-agent status records of a session.
func (m *InsightMesh) Status(sessionID string) []status.Record { return m.status.List(sessionID) }

// History returns the conversation history of a session.
func (m *InsightMesh) History(sessionID string) []core.HistoryEntry {
	return m.sessions.History(sessionID)
}

// ClearSession drops the session's dataset and history along with its
// status records, artifacts and remembered findings.
func (m *InsightMesh) ClearSession(sessionID string) error {
	m.sessions.Clear(sessionID)
	m.status.Clear(sessionID)
	m.artifacts.Clear(sessionID)
	if err := m.memory.Clear(sessionID); err != nil {
		return fmt.Errorf("clear memory: %w", err)
	}
	return nil
}

// Close persists planner history when a history dir is configured.
func (m *InsightMesh) Close() error {
	if err := m.planner.Save(); err != nil && !errors.Is(err, planner.ErrNoHistoryDir) {
		return err
	}
	return nil
}

// Agents returns the specialist registry.
func (m *InsightMesh) Agents() *agent.Registry { return m.agents }

// Planner returns the router.
func (m *InsightMesh) Planner() *planner.Planner { return m.planner }

// Orchestrator returns the run coordinator.
func (m *InsightMesh) Orchestrator() *orchestrator.Orchestrator { return m.orch }

// Sessions returns the session store.
func (m *InsightMesh) Sessions() core.SessionStore { return m.sessions }

// Artifacts returns the artifact store.
func (m *InsightMesh) Artifacts() core.ArtifactStore { return m.artifacts }

// StatusRegistry returns the status registry.
func (m *InsightMesh) StatusRegistry() *status.Registry { return m.status }
