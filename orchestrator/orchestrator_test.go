package orchestrator

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/artifact"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/flow"
	"github.com/hupe1980/insightmesh/internal/testutil"
	"github.com/hupe1980/insightmesh/model"
	"github.com/hupe1980/insightmesh/planner"
	"github.com/hupe1980/insightmesh/session"
	"github.com/hupe1980/insightmesh/specialist"
)

const sqlQuery = "show me a sql query filtering rows where salary > 50000"

type fixture struct {
	orch     *Orchestrator
	planner  *planner.Planner
	sessions *session.InMemoryStore
	spans    *tracetest.SpanRecorder
}

func defaultCompleter() model.Completer {
	return model.NewMockCompleter("").
		On("You are a SQL analyst", "SELECT name FROM df WHERE salary > 50000").
		On("writing insights", "Salaries range from 40k to 60k.").
		On("critical reviewer", `{"confidence": "high"}`)
}

func newFixture(t *testing.T, mc model.Completer, sessions core.SessionStore, planOpts ...func(o *planner.Options)) fixture {
	t.Helper()
	cfg := agent.DefaultConfig()
	cfg.RetryAttempts = 0
	cfg.CacheResults = false
	cfg.Timeout = 5 * time.Second
	opts := []func(o *specialist.Options){specialist.WithCompleter(mc), specialist.WithConfig(cfg)}

	reg := agent.NewRegistry()
	reg.MustRegister(specialist.NewSQL(opts...))
	reg.MustRegister(specialist.NewInsight(opts...))
	reg.MustRegister(specialist.NewChart(opts...))
	reg.MustRegister(specialist.NewCritique(opts...))

	p, err := planner.New(planOpts...)
	require.NoError(t, err)
	f, err := flow.New(p, reg, func(o *flow.Options) { o.Sessions = sessions })
	require.NoError(t, err)

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	mem, _ := sessions.(*session.InMemoryStore)
	o := New(f, func(o *Options) {
		o.Sessions = sessions
		o.Tracer = tp.Tracer("test")
	})
	return fixture{orch: o, planner: p, sessions: mem, spans: rec}
}

func TestRunFlowSync_Success(t *testing.T) {
	fx := newFixture(t, defaultCompleter(), session.NewInMemoryStore())

	res := fx.orch.RunFlowSync(context.Background(), sqlQuery, testutil.Salaries(), "s1")

	require.Equal(t, StatusSuccess, res.Status, res.Message)
	assert.Equal(t, []string{core.LabelPlanner, core.LabelSQL, core.LabelCritique}, res.Steps)
	require.NotNil(t, res.Result)
	assert.True(t, res.Result.Success)
	require.NotNil(t, res.Plan)
	assert.Equal(t, core.LabelSQL, res.Plan.PrimaryAgent)
	require.NotNil(t, res.Critique)
	assert.GreaterOrEqual(t, res.ExecutionTime, 0.0)
	assert.False(t, res.StartTime.IsZero())

	history := fx.sessions.History("s1")
	require.Len(t, history, 1)
	assert.Equal(t, sqlQuery, history[0].Query)
	assert.Equal(t, res.Steps, history[0].Steps)

	routing := fx.planner.History()
	require.Len(t, routing, 1)
	require.NotNil(t, routing[0].Success)
	assert.True(t, *routing[0].Success)
	assert.Equal(t, 1, fx.planner.Stats()[core.LabelSQL].Calls)
}

func TestRunFlowSync_SpanEvents(t *testing.T) {
	fx := newFixture(t, defaultCompleter(), session.NewInMemoryStore())

	fx.orch.RunFlowSync(context.Background(), "hello", testutil.Salaries(), "s1")

	spans := fx.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "flow.run", spans[0].Name())
	events := spans[0].Events()
	require.Len(t, events, 2)
	assert.Equal(t, "flow.start", events[0].Name)
	assert.Equal(t, "flow.complete", events[1].Name)
}

func TestRunFlowSync_UsesSessionTable(t *testing.T) {
	sessions := session.NewInMemoryStore()
	require.NoError(t, sessions.Update("s1", testutil.Salaries(), "upload"))
	fx := newFixture(t, defaultCompleter(), sessions)

	res := fx.orch.RunFlowSync(context.Background(), sqlQuery, nil, "s1")

	require.Equal(t, StatusSuccess, res.Status)
	require.NotNil(t, res.Result)
	assert.True(t, res.Result.Success, res.Result.Error)
	out := res.Result.Output.(*specialist.SQLOutput)
	assert.Equal(t, 1, out.RowCount)
}

func TestRunFlowSync_FailedSpecialistIsStillAResult(t *testing.T) {
	fx := newFixture(t, defaultCompleter(), session.NewInMemoryStore())

	res := fx.orch.RunFlowSync(context.Background(), sqlQuery, nil, "unknown")

	assert.Equal(t, StatusSuccess, res.Status)
	assert.False(t, res.Result.Success)
	assert.Equal(t, core.KindValidation, res.Result.ErrorKind)
	routing := fx.planner.History()
	require.Len(t, routing, 1)
	assert.False(t, *routing[0].Success)
}

type panickingStore struct{ core.SessionStore }

func (panickingStore) Snapshot(string) (core.SessionSnapshot, bool) { panic("store exploded") }

func TestRunFlowSync_RecoversPanics(t *testing.T) {
	fx := newFixture(t, defaultCompleter(), panickingStore{session.NewInMemoryStore()})

	res := fx.orch.RunFlowSync(context.Background(), sqlQuery, nil, "s1")

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "store exploded")
	assert.Empty(t, res.Steps)

	spans := fx.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestRunFlowSync_CanceledContext(t *testing.T) {
	fx := newFixture(t, defaultCompleter(), session.NewInMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := fx.orch.RunFlowSync(ctx, sqlQuery, testutil.Salaries(), "s1")

	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "context canceled")
	assert.Empty(t, fx.sessions.History("s1"))
}

func TestRunFlowSync_SavesPlannerHistory(t *testing.T) {
	dir := t.TempDir()
	fx := newFixture(t, defaultCompleter(), session.NewInMemoryStore(), func(o *planner.Options) { o.HistoryDir = dir })

	fx.orch.RunFlowSync(context.Background(), sqlQuery, testutil.Salaries(), "s1")

	assert.FileExists(t, filepath.Join(dir, planner.RoutingHistoryFile))
	assert.FileExists(t, filepath.Join(dir, planner.FeedbackHistoryFile))
}

func TestRunFlowAsync(t *testing.T) {
	fx := newFixture(t, defaultCompleter(), session.NewInMemoryStore())

	runID, ch := fx.orch.RunFlowAsync(context.Background(), "hello", testutil.Salaries(), "s1")
	require.NotEmpty(t, runID)

	select {
	case res := <-ch:
		assert.Equal(t, runID, res.RunID)
		assert.Equal(t, StatusSuccess, res.Status)
		assert.Equal(t, []string{core.LabelPlanner, core.LabelInsight, core.LabelCritique}, res.Steps)
	case <-time.After(5 * time.Second):
		t.Fatal("async run did not finish")
	}

	_, open := <-ch
	assert.False(t, open)
	assert.Eventually(t, func() bool { return len(fx.orch.ActiveRuns()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestRunFlowAsync_Cancel(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	blocking := model.CompleterFunc(func(ctx context.Context, _ model.Request) (*model.Completion, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, ctx.Err()
	})
	fx := newFixture(t, blocking, session.NewInMemoryStore())

	runID, ch := fx.orch.RunFlowAsync(context.Background(), sqlQuery, testutil.Salaries(), "s1")
	<-started
	require.NoError(t, fx.orch.Cancel(runID))

	select {
	case res := <-ch:
		assert.Equal(t, StatusError, res.Status)
		assert.Contains(t, res.Message, "context canceled")
	case <-time.After(5 * time.Second):
		t.Fatal("canceled run did not finish")
	}
}

func TestCancel_UnknownRun(t *testing.T) {
	fx := newFixture(t, defaultCompleter(), session.NewInMemoryStore())

	err := fx.orch.Cancel("nope")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestRunFlowSync_ExportsChartSpec(t *testing.T) {
	fx := newFixture(t, defaultCompleter(), session.NewInMemoryStore())
	store := artifact.NewInMemoryStore()
	fx.orch.artifacts = store

	res := fx.orch.RunFlowSync(context.Background(), "chart of sales over time", testutil.Sales(), "s1")

	require.Equal(t, StatusSuccess, res.Status, res.Message)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, "chart-"+res.Plan.QueryID+".vl.json", res.Artifacts[0])

	a, err := store.Get("s1", res.Artifacts[0])
	require.NoError(t, err)
	assert.Equal(t, VegaLiteContentType, a.ContentType)
	var spec map[string]any
	require.NoError(t, json.Unmarshal(a.Data, &spec))
	assert.Equal(t, "line", spec["mark"])

	res = fx.orch.RunFlowSync(context.Background(), sqlQuery, testutil.Salaries(), "s1")
	assert.Empty(t, res.Artifacts)
}

func TestRunFlowSync_SeedsStateWithHistory(t *testing.T) {
	fx := newFixture(t, defaultCompleter(), session.NewInMemoryStore())

	assert.Empty(t, fx.orch.newState(sqlQuery, testutil.Salaries(), "s1").History)

	fx.orch.RunFlowSync(context.Background(), sqlQuery, testutil.Salaries(), "s1")
	fx.orch.RunFlowSync(context.Background(), "hello", testutil.Salaries(), "s1")

	st := fx.orch.newState("next", testutil.Salaries(), "s1")
	require.Len(t, st.History, 2)
	assert.Equal(t, sqlQuery, st.History[0].Query)
	assert.Equal(t, "hello", st.History[1].Query)
	assert.Equal(t, []string{"planner", "sql", "critique"}, st.History[0].Steps)

	st.History[0].Query = "changed"
	assert.Equal(t, sqlQuery, fx.sessions.History("s1")[0].Query)

	assert.Nil(t, fx.orch.newState("q", nil, "").History)
}
