package planner

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/internal/testutil"
)

func newPlanner(t *testing.T, optFns ...func(o *Options)) *Planner {
	t.Helper()
	p, err := New(optFns...)
	require.NoError(t, err)
	return p
}

func TestPlan_SQLKeywords(t *testing.T) {
	p := newPlanner(t)

	out := p.Plan("show me a sql query filtering rows where salary > 50000", testutil.Salaries())

	assert.Equal(t, core.LabelSQL, out.PrimaryAgent)
	assert.Equal(t, IntentSQL, out.Intent)
	assert.InDelta(t, 0.7, out.Confidence, 1e-9)
	assert.False(t, out.Fallback)
	assert.True(t, out.RequiresData)
	assert.Empty(t, out.SubQueries)
	assert.NotEmpty(t, out.QueryID)
}

func TestPlan_KeywordStrategySkipsDataState(t *testing.T) {
	p := newPlanner(t, func(o *Options) { o.Strategy = StrategyKeyword })

	out := p.Plan("show me a sql query filtering rows where salary > 50000", testutil.Salaries())

	assert.Equal(t, core.LabelSQL, out.PrimaryAgent)
	assert.InDelta(t, 0.8, out.Confidence, 1e-9)
}

func TestPhraseMatch(t *testing.T) {
	tests := []struct {
		q, kw string
		want  bool
	}{
		{"rows where salary > 1", "where", true},
		{"somewhere in the data", "where", false},
		{"the prefix column", "fix", false},
		{"fix the prefix", "fix", true},
		{"filtering rows", "filter", true},
		{"(chart) of sales", "chart", true},
		{"grouped by region then group by year", "group by", true},
		{"subgroup by region", "group by", false},
		{"where", "where", true},
	}
	for _, tt := range tests {
		t.Run(tt.q+"/"+tt.kw, func(t *testing.T) {
			assert.Equal(t, tt.want, phraseMatch(tt.q, tt.kw))
		})
	}
}

func TestPlan_KeywordsMatchAtWordStart(t *testing.T) {
	p := newPlanner(t, func(o *Options) { o.Strategy = StrategyKeyword })

	out := p.Plan("anything somewhere in the prefix", nil)

	assert.True(t, out.Fallback)
	assert.Equal(t, core.LabelInsight, out.PrimaryAgent)
	assert.Zero(t, out.Scores[core.LabelSQL])
	assert.Zero(t, out.Scores[core.LabelDataCleaner])
}

func TestPlan_ChartWithTimeSeries(t *testing.T) {
	p := newPlanner(t)

	out := p.Plan("chart of sales over time", testutil.Sales())

	assert.Equal(t, core.LabelChart, out.PrimaryAgent)
	assert.Equal(t, 1.0, out.Confidence)
	assert.InDelta(t, 0.1, out.Scores[core.LabelInsight], 1e-9)
}

func TestPlan_FallbackOnNoIntent(t *testing.T) {
	p := newPlanner(t)

	out := p.Plan("hello", testutil.Salaries())

	assert.Equal(t, core.LabelInsight, out.PrimaryAgent)
	assert.Equal(t, FallbackConfidence, out.Confidence)
	assert.True(t, out.Fallback)
}

func TestPlan_FallbackBelowThreshold(t *testing.T) {
	p := newPlanner(t)

	out := p.Plan("plot the query", nil)

	assert.Equal(t, core.LabelInsight, out.PrimaryAgent)
	assert.Equal(t, FallbackConfidence, out.Confidence)
	assert.InDelta(t, 0.5, out.Scores[core.LabelChart], 1e-9)
	assert.InDelta(t, 0.5, out.Scores[core.LabelSQL], 1e-9)
}

func TestPlan_Deterministic(t *testing.T) {
	queries := []string{
		"show me a sql query filtering rows where salary > 50000",
		"chart of sales over time",
		"hello",
		"plot the sales and then filter where region is north? and what about the trend over the last few months in every region",
	}
	for _, q := range queries {
		a := newPlanner(t).Plan(q, testutil.Sales())
		b := newPlanner(t).Plan(q, testutil.Sales())
		a.QueryID, b.QueryID = "", ""
		a.CreatedAt, b.CreatedAt = time.Time{}, time.Time{}
		assert.Equal(t, a, b, q)
	}
}

func TestComplexity(t *testing.T) {
	assert.Equal(t, 0.0, Complexity("hello"))
	assert.InDelta(t, 0.3, Complexity("sales and costs"), 1e-9)
	assert.InDelta(t, 0.4, Complexity("why? how?"), 1e-9)
	assert.Equal(t, 1.0, Complexity("a? b? c? d? e? f? and"))
}

func TestPlan_DecomposesComplexQueries(t *testing.T) {
	p := newPlanner(t)
	q := "show me a chart of sales and then run a sql query to filter where region is north? also summarize everything in a report please"
	require.Greater(t, Complexity(q), ComplexityThreshold)

	out := p.Plan(q, testutil.Sales())

	require.Len(t, out.SubQueries, 2)
	assert.Equal(t, "show me a chart of sales", out.SubQueries[0].Query)
	assert.Equal(t, core.LabelChart, out.SubQueries[0].Agent)
	assert.Empty(t, out.SubQueries[0].DependsOn)
	assert.Equal(t, []string{out.SubQueries[0].ID}, out.SubQueries[1].DependsOn)
}

func TestPlan_SimpleQueryHasNoSubQueries(t *testing.T) {
	p := newPlanner(t)
	q := "plot sales and costs"
	require.LessOrEqual(t, Complexity(q), ComplexityThreshold)

	out := p.Plan(q, nil)

	assert.NotNil(t, out.SubQueries)
	assert.Empty(t, out.SubQueries)
}

func TestPlan_HierarchicalSplitsCompoundQueries(t *testing.T) {
	p := newPlanner(t, func(o *Options) { o.Strategy = StrategyHierarchical })

	out := p.Plan("plot sales and filter with sql", nil)

	require.Len(t, out.SubQueries, 2)
	assert.Equal(t, core.LabelChart, out.SubQueries[0].Agent)
	assert.Equal(t, core.LabelSQL, out.SubQueries[1].Agent)
}

func TestAddFeedback_LearnsCorrection(t *testing.T) {
	p := newPlanner(t)
	q := "compare revenue across stores"

	first := p.Plan(q, nil)
	require.Equal(t, core.LabelInsight, first.PrimaryAgent)

	p.AddFeedback(Feedback{RoutedAgent: core.LabelInsight, Success: false, ActualAgent: core.LabelChart, ExecutionSeconds: 2})

	assert.Equal(t, []string{"compare", "revenue", "across", "stores"}, p.LearnedKeywords(core.LabelChart))
	hist := p.History()
	require.Len(t, hist, 1)
	require.NotNil(t, hist[0].Success)
	assert.False(t, *hist[0].Success)
	assert.Equal(t, core.LabelChart, hist[0].ActualAgent)

	second := p.Plan(q, nil)
	assert.Equal(t, core.LabelChart, second.PrimaryAgent)
	assert.Equal(t, 1.0, second.Confidence)
}

func TestAddFeedback_ByQueryIDAndRunningMean(t *testing.T) {
	p := newPlanner(t)
	a := p.Plan("run a sql query", nil)
	b := p.Plan("another sql query", nil)

	p.AddFeedback(Feedback{QueryID: a.QueryID, RoutedAgent: core.LabelSQL, Success: true, ExecutionSeconds: 1})
	p.AddFeedback(Feedback{QueryID: b.QueryID, RoutedAgent: core.LabelSQL, Success: false, ExecutionSeconds: 3})

	st := p.Stats()[core.LabelSQL]
	assert.Equal(t, 2, st.Calls)
	assert.InDelta(t, 0.5, st.SuccessRate, 1e-9)
	assert.InDelta(t, 2.0, st.AvgSeconds, 1e-9)

	hist := p.History()
	assert.True(t, *hist[0].Success)
	assert.False(t, *hist[1].Success)

	next := p.Plan("sql query", nil)
	assert.Equal(t, 2.0, next.ExpectedExecutionSeconds)
}

func assertScores(t *testing.T, want, got map[string]float64) {
	t.Helper()
	assert.Len(t, got, len(want))
	for agent, w := range want {
		assert.InDelta(t, w, got[agent], 1e-9, agent)
	}
}

func TestApplyDataAdjustments(t *testing.T) {
	withMissing := func(rows, missing int) *testutil.TableBuilder {
		b := testutil.NewTableBuilder().Text("name").Number("v")
		for i := 0; i < rows; i++ {
			var v any = float64(i)
			if i < missing {
				v = nil
			}
			b.Row(fmt.Sprintf("r%d", i), v)
		}
		return b
	}
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name  string
		table *testutil.TableBuilder
		want  map[string]float64
	}{
		{"over ten percent missing", withMissing(10, 2), map[string]float64{
			core.LabelChart: 0.1, core.LabelDataCleaner: 0.15,
		}},
		{"exactly ten percent missing", withMissing(10, 1), map[string]float64{
			core.LabelChart: 0.1,
		}},
		{"tiny categorical table", withMissing(3, 0), map[string]float64{
			core.LabelChart: 0, core.LabelSQL: -0.1,
		}},
		{"tiny numeric table", testutil.NewTableBuilder().Number("v").Row(1).Row(2), map[string]float64{
			core.LabelChart: -0.1, core.LabelSQL: -0.1,
		}},
		{"time series", testutil.NewTableBuilder().Timestamp("d").Number("v").
			Row(day(1), 1).Row(day(2), 2).Row(day(3), 3).Row(day(4), 4).Row(day(5), 5), map[string]float64{
			core.LabelChart: 0.1, core.LabelInsight: 0.1,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scores := map[string]float64{}
			applyDataAdjustments(scores, tt.table.Build())
			assertScores(t, tt.want, scores)
		})
	}
}

func TestApplyLearning(t *testing.T) {
	ok := func(b bool) *bool { return &b }
	const q = "total sales by region"
	repeat := func(n int, r RoutingRecord) []RoutingRecord {
		out := make([]RoutingRecord, n)
		for i := range out {
			out[i] = r
		}
		return out
	}

	tests := []struct {
		name    string
		query   string
		history []RoutingRecord
		want    map[string]float64
	}{
		{"identical success", q, []RoutingRecord{{Query: q, Agent: core.LabelSQL, Success: ok(true)}},
			map[string]float64{core.LabelSQL: 0.2}},
		{"delta scales with similarity", q + " now", []RoutingRecord{{Query: q, Agent: core.LabelSQL, Success: ok(true)}},
			map[string]float64{core.LabelSQL: 0.16}},
		{"failure moves score to actual agent", q, []RoutingRecord{{Query: q, Agent: core.LabelSQL, Success: ok(false), ActualAgent: core.LabelChart}},
			map[string]float64{core.LabelSQL: -0.2, core.LabelChart: 0.2}},
		{"dissimilar ignored", "hello world", []RoutingRecord{{Query: q, Agent: core.LabelSQL, Success: ok(true)}},
			map[string]float64{}},
		{"pending ignored", q, []RoutingRecord{{Query: q, Agent: core.LabelSQL}},
			map[string]float64{}},
		{"five nearest only", q, repeat(7, RoutingRecord{Query: q, Agent: core.LabelSQL, Success: ok(true)}),
			map[string]float64{core.LabelSQL: 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlanner(t)
			p.history = tt.history
			scores := map[string]float64{}
			p.applyLearning(scores, tt.query)
			assertScores(t, tt.want, scores)
		})
	}
}

func TestApplyBalancing(t *testing.T) {
	p := newPlanner(t)
	for i := 0; i < 10; i++ {
		p.record(RoutingRecord{Agent: core.LabelSQL})
	}
	p.record(RoutingRecord{Agent: core.LabelChart})

	scores := map[string]float64{core.LabelSQL: 0.5, core.LabelChart: 0.5}
	p.applyBalancing(scores)

	assert.InDelta(t, 0.45, scores[core.LabelSQL], 1e-9)
	assert.InDelta(t, 0.55, scores[core.LabelChart], 1e-9)
}

func TestHistoryBounded(t *testing.T) {
	p := newPlanner(t, func(o *Options) { o.MaxPlanHistory = 3 })
	for _, q := range []string{"a", "b", "c", "d", "e"} {
		p.Plan(q, nil)
	}
	hist := p.History()
	require.Len(t, hist, 3)
	assert.Equal(t, "c", hist[0].Query)
	assert.Equal(t, "e", hist[2].Query)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := newPlanner(t, func(o *Options) { o.HistoryDir = dir })
	for _, q := range []string{"plot sales", "sql query", "hello"} {
		p.Plan(q, nil)
	}
	p.AddFeedback(Feedback{RoutedAgent: core.LabelInsight, Success: false, ActualAgent: core.LabelReport, ExecutionSeconds: 4})
	require.NoError(t, p.Save())

	loaded := newPlanner(t, func(o *Options) { o.HistoryDir = dir })
	require.NoError(t, loaded.Load())

	want, got := p.History(), loaded.History()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].QueryID, got[i].QueryID)
		assert.Equal(t, want[i].Query, got[i].Query)
		assert.Equal(t, want[i].Agent, got[i].Agent)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
	}
	require.NotNil(t, got[2].Success)
	assert.Equal(t, core.LabelReport, got[2].ActualAgent)
	assert.Equal(t, p.Stats(), loaded.Stats())
	assert.Equal(t, []string{"hello"}, loaded.LearnedKeywords(core.LabelReport))

	capped := newPlanner(t, func(o *Options) { o.HistoryDir = dir; o.MaxPlanHistory = 2 })
	require.NoError(t, capped.Load())
	got = capped.History()
	require.Len(t, got, 2)
	assert.Equal(t, "sql query", got[0].Query)
	assert.Equal(t, "hello", got[1].Query)
}

func TestLoad_MissingFilesAndNoDir(t *testing.T) {
	p := newPlanner(t, func(o *Options) { o.HistoryDir = t.TempDir() })
	require.NoError(t, p.Load())
	assert.Empty(t, p.History())

	q := newPlanner(t)
	assert.ErrorIs(t, q.Save(), ErrNoHistoryDir)
	assert.ErrorIs(t, q.Load(), ErrNoHistoryDir)
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New(func(o *Options) {
		o.Strategy = "magic"
		o.MinConfidenceThreshold = 2
	})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard("Sales by Region", "region by sales"))
	assert.InDelta(t, 1.0/3.0, Jaccard("sales region", "sales year"), 1e-9)
	assert.Equal(t, 0.0, Jaccard("", ""))
}
