package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
	"github.com/hupe1980/insightmesh/internal/testutil"
	"github.com/hupe1980/insightmesh/model"
	"github.com/hupe1980/insightmesh/planner"
	"github.com/hupe1980/insightmesh/session"
	"github.com/hupe1980/insightmesh/specialist"
	"github.com/hupe1980/insightmesh/status"
)

type stack struct {
	flow     *Flow
	status   *status.Registry
	sessions *session.InMemoryStore
}

func mockCompleter() *model.MockCompleter {
	return model.NewMockCompleter("").
		On("You are a SQL analyst", "SELECT name, salary FROM df WHERE salary > 50000").
		On("writing insights", "Two employees with salaries between 40k and 60k.").
		On("critical reviewer", `{"confidence": "high", "issues": []}`).
		On("arbiter of a debate", "I cannot decide, all answers look fine")
}

func newStack(t *testing.T, mc model.Completer, skip map[string]bool, planOpts ...func(o *planner.Options)) stack {
	t.Helper()
	cfg := agent.DefaultConfig()
	cfg.RetryAttempts = 0
	cfg.RetryDelay = 0
	cfg.CacheResults = false
	cfg.Timeout = 5 * time.Second
	opts := []func(o *specialist.Options){specialist.WithCompleter(mc), specialist.WithConfig(cfg)}

	critic := specialist.NewCritique(opts...)
	insight := specialist.NewInsight(opts...)
	sql := specialist.NewSQL(opts...)
	chart := specialist.NewChart(opts...)
	all := []core.Agent{
		chart, sql, insight, critic,
		specialist.NewDebate([]core.Agent{insight, sql, chart}, critic, opts...),
		specialist.NewDataCleaner(opts...),
	}
	reg := agent.NewRegistry()
	for _, a := range all {
		if !skip[a.Name()] {
			reg.MustRegister(a)
		}
	}

	p, err := planner.New(planOpts...)
	require.NoError(t, err)

	st := status.NewRegistry()
	sessions := session.NewInMemoryStore()
	f, err := New(p, reg, func(o *Options) {
		o.Status = st
		o.Sessions = sessions
	})
	require.NoError(t, err)
	return stack{flow: f, status: st, sessions: sessions}
}

func run(t *testing.T, s stack, query string, tbl *dataset.Table) *State {
	t.Helper()
	st := NewState(query, tbl, "s1")
	require.NoError(t, s.flow.Run(context.Background(), st))
	return st
}

func TestFlow_SQLRoute(t *testing.T) {
	s := newStack(t, mockCompleter(), nil)

	st := run(t, s, "show me a sql query filtering rows where salary > 50000", testutil.Salaries())

	assert.Equal(t, []string{core.LabelPlanner, core.LabelSQL, core.LabelCritique}, st.Steps)
	require.NotNil(t, st.Result)
	require.True(t, st.Result.Success, st.Result.Error)
	out := st.Result.Output.(*specialist.SQLOutput)
	assert.NotEmpty(t, out.SQLQuery)
	assert.Contains(t, out.SQLQuery, "df")
	require.NotNil(t, st.Critique)
	assert.Contains(t, []core.Confidence{core.ConfidenceHigh, core.ConfidenceMedium, core.ConfidenceLow}, st.Critique.Confidence)
	require.NotNil(t, st.Plan)
	assert.Equal(t, core.LabelSQL, st.Plan.PrimaryAgent)

	records := s.status.List("s1")
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, status.Complete, r.Status, r.Agent)
		assert.False(t, r.EndTime.Before(r.StartTime), r.Agent)
	}
	assert.Equal(t, core.LabelSQL, records[0].Aux["primary_agent"])
}

func TestFlow_ChartAutoAxes(t *testing.T) {
	s := newStack(t, mockCompleter(), nil)

	st := run(t, s, "chart of sales over time", testutil.Sales())

	assert.Equal(t, []string{core.LabelPlanner, core.LabelChart, core.LabelCritique}, st.Steps)
	out := st.Result.Output.(*specialist.ChartOutput)
	assert.Equal(t, specialist.ChartLine, out.ChartType)
	assert.Equal(t, "region", out.X)
	assert.Equal(t, "sales", out.Y)
	assert.NotNil(t, out.Insights.Statistics)
}

func TestFlow_FallbackToInsight(t *testing.T) {
	s := newStack(t, mockCompleter(), nil)

	st := run(t, s, "hello", testutil.Salaries())

	assert.Equal(t, core.LabelInsight, st.Plan.PrimaryAgent)
	assert.Equal(t, planner.FallbackConfidence, st.Plan.Confidence)
	assert.Equal(t, []string{core.LabelPlanner, core.LabelInsight, core.LabelCritique}, st.Steps)
	assert.True(t, st.Result.Success)
}

func TestFlow_CritiqueFlagsMissingColumn(t *testing.T) {
	mc := model.NewMockCompleter("").
		On("You are a SQL analyst", "SELECT bonus FROM df WHERE salary > 0").
		On("critical reviewer", `{"confidence": "medium"}`)
	s := newStack(t, mc, nil)

	st := run(t, s, "sql query to select the bonus column where salary > 0", testutil.Salaries())

	assert.Equal(t, []string{core.LabelPlanner, core.LabelSQL, core.LabelCritique}, st.Steps)
	require.NotNil(t, st.Critique)
	assert.True(t, st.Critique.Flagged)
	assert.Equal(t, core.ConfidenceLow, st.Critique.Confidence)
	assert.Contains(t, st.Critique.Issues, "missing column: bonus")
	assert.NotEmpty(t, st.Result.Warning)
	assert.Contains(t, st.Result.Warning, "bonus")
	assert.Equal(t, st.Critique.Issues, st.Result.Issues)

	rec, ok := s.status.Get("s1", core.LabelSQL)
	require.True(t, ok)
	assert.Equal(t, status.Error, rec.Status)
}

func TestFlow_DebateParseFailure(t *testing.T) {
	s := newStack(t, mockCompleter(), nil)

	st := run(t, s, "debate different perspectives on salary", testutil.Salaries())

	assert.Equal(t, []string{core.LabelPlanner, core.LabelDebate, core.LabelCritique}, st.Steps)
	require.True(t, st.Result.Success, st.Result.Error)
	out := st.Result.Output.(*specialist.DebateOutput)
	assert.Equal(t, specialist.Decision{Winner: "none", Reason: "parse-failed"}, out.Decision)
}

func TestFlow_UnknownNextNode(t *testing.T) {
	s := newStack(t, mockCompleter(), nil, func(o *planner.Options) { o.FallbackAgent = "oracle" })

	st := run(t, s, "hello", testutil.Salaries())

	assert.Equal(t, []string{core.LabelPlanner, core.LabelErrorHandler}, st.Steps)
	require.False(t, st.Result.Success)
	assert.Contains(t, st.Error, "oracle")
	assert.NotEmpty(t, st.Result.FallbackResponse)
	assert.Equal(t, st.Result.FallbackResponse, st.Message)
	require.NotNil(t, st.Result.DataSummary)
	assert.Equal(t, 2, st.Result.DataSummary.Rows)
	assert.Equal(t, []string{"name", "salary"}, st.Result.DataSummary.Columns)
}

func TestFlow_MissingAgentRoutesToErrorHandler(t *testing.T) {
	s := newStack(t, mockCompleter(), map[string]bool{core.LabelChart: true})

	st := run(t, s, "chart of sales over time", testutil.Sales())

	assert.Equal(t, []string{core.LabelPlanner, core.LabelChart, core.LabelErrorHandler}, st.Steps)
	assert.False(t, st.Result.Success)
	rec, ok := s.status.Get("s1", core.LabelChart)
	require.True(t, ok)
	assert.Equal(t, status.Error, rec.Status)
}

func TestFlow_EmptyTableExitsViaCritique(t *testing.T) {
	s := newStack(t, mockCompleter(), nil)
	empty := testutil.NewTableBuilder().Text("name").Number("salary").Build()

	st := run(t, s, "show me a sql query filtering rows where salary > 50000", empty)

	assert.Equal(t, core.LabelCritique, st.Steps[len(st.Steps)-1])
	assert.Equal(t, core.LabelPlanner, st.Steps[0])
	require.False(t, st.Result.Success)
	assert.Equal(t, core.KindValidation, st.Result.ErrorKind)
	assert.Equal(t, core.ConfidenceLow, st.Critique.Confidence)
}

func TestFlow_DataCleanerThenInsight(t *testing.T) {
	s := newStack(t, mockCompleter(), nil)
	require.NoError(t, s.sessions.Update("s1", testutil.Prices(), "upload"))

	st := run(t, s, "clean the price column", testutil.Prices())

	assert.Equal(t, []string{core.LabelPlanner, core.LabelDataCleaner, core.LabelInsight, core.LabelCritique}, st.Steps)
	require.NotNil(t, st.Cleaning)
	assert.True(t, st.Cleaning.Success)
	vals, _ := st.Table.ColumnValues("price")
	assert.Equal(t, []any{1200.0, 3.5}, vals)

	snap, ok := s.sessions.Snapshot("s1")
	require.True(t, ok)
	assert.Equal(t, "upload", snap.Origin)
	assert.True(t, snap.Table.Equal(st.Table))
}

func TestNodeFor(t *testing.T) {
	cases := map[string][2]string{
		core.LabelData:        {core.LabelInsight, ""},
		core.LabelNarrative:   {core.LabelInsight, ""},
		core.LabelReport:      {core.LabelInsight, ""},
		core.LabelCritique:    {core.LabelDebate, ""},
		core.LabelDataCleaner: {core.LabelDataCleaner, core.LabelInsight},
		core.LabelSQL:         {core.LabelSQL, ""},
		"oracle":              {"oracle", ""},
	}
	for label, want := range cases {
		node, target := NodeFor(label, core.LabelInsight)
		assert.Equal(t, want[0], node, label)
		assert.Equal(t, want[1], target, label)
	}
}

func TestNew_RequiresPlannerAndRegistry(t *testing.T) {
	_, err := New(nil, agent.NewRegistry())
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func noop(context.Context, *State) error { return nil }

func TestGraph_CompileRejectsCycles(t *testing.T) {
	_, err := NewGraph().
		SetEntry("a").SetErrorNode("err").
		AddNode("a", noop).AddNode("b", noop).AddNode("err", noop).
		AddEdge("a", "b").AddEdge("b", "a").AddEdge("err", End).
		Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestGraph_CompileRejectsUnknownTargets(t *testing.T) {
	_, err := NewGraph().
		SetEntry("a").SetErrorNode("err").
		AddNode("a", noop).AddNode("err", noop).
		AddConditionalEdges("a", func(*State) string { return "x" }, "x").
		AddEdge("err", End).
		Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target")
}

func TestGraph_CompileRejectsDeadEndsAndMissingEntry(t *testing.T) {
	_, err := NewGraph().
		SetEntry("missing").SetErrorNode("err").
		AddNode("a", noop).AddNode("err", noop).
		AddEdge("err", End).
		Compile()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry node")
	assert.Contains(t, err.Error(), `"a" has no outgoing edge`)
}

func TestGraph_InvokeRoutesErrorsOnce(t *testing.T) {
	var visited []string
	track := func(label string, err error) NodeFunc {
		return func(_ context.Context, st *State) error {
			visited = append(visited, label)
			return err
		}
	}
	g, err := NewGraph().
		SetEntry("a").SetErrorNode("err").
		AddNode("a", track("a", errors.New("boom"))).
		AddNode("b", track("b", nil)).
		AddNode("err", track("err", nil)).
		AddEdge("a", "b").AddEdge("b", End).AddEdge("err", End).
		Compile()
	require.NoError(t, err)

	st := NewState("q", nil, "")
	require.NoError(t, g.Invoke(context.Background(), st))
	assert.Equal(t, []string{"a", "err"}, visited)
	assert.Equal(t, "a: boom", st.Error)
}

func TestGraph_InvokeStopsOnCancel(t *testing.T) {
	g, err := NewGraph().
		SetEntry("a").SetErrorNode("err").
		AddNode("a", noop).AddNode("err", noop).
		AddEdge("a", End).AddEdge("err", End).
		Compile()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.Invoke(ctx, NewState("q", nil, "")), context.Canceled)
}
