package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/insightmesh/agent"
	"github.com/hupe1980/insightmesh/artifact"
	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/flow"
	"github.com/hupe1980/insightmesh/model"
	"github.com/hupe1980/insightmesh/orchestrator"
	"github.com/hupe1980/insightmesh/planner"
	"github.com/hupe1980/insightmesh/session"
	"github.com/hupe1980/insightmesh/specialist"
	"github.com/hupe1980/insightmesh/status"
)

const salariesCSV = "name,salary\nann,40000\nbob,60000\n"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mc := model.NewMockCompleter("").
		On("You are a SQL analyst", "SELECT name FROM df WHERE salary > 50000").
		On("writing insights", "Two salaries.").
		On("critical reviewer", `{"confidence": "high"}`)
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

	p, err := planner.New()
	require.NoError(t, err)
	sessions := session.NewInMemoryStore()
	st := status.NewRegistry()
	f, err := flow.New(p, reg, func(o *flow.Options) {
		o.Sessions = sessions
		o.Status = st
	})
	require.NoError(t, err)
	artifacts := artifact.NewInMemoryStore()
	orch := orchestrator.New(f, func(o *orchestrator.Options) {
		o.Sessions = sessions
		o.Artifacts = artifacts
	})

	srv := httptest.NewServer(New(orch, sessions, st, reg, func(o *Options) { o.Artifacts = artifacts }).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, contentType, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestServer_SessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/sessions/s1"

	resp := do(t, http.MethodPost, base+"/dataset", "text/csv", salariesCSV)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var snap core.SessionSnapshot
	decode(t, resp, &snap)
	assert.Equal(t, 2, snap.Rows)
	assert.Equal(t, "upload", snap.Origin)

	resp = do(t, http.MethodPost, base+"/query", "application/json",
		`{"query": "show me a sql query filtering rows where salary > 50000"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res struct {
		Status string   `json:"status"`
		Steps  []string `json:"steps"`
		Result struct {
			Success bool           `json:"success"`
			Output  map[string]any `json:"output"`
		} `json:"result"`
	}
	decode(t, resp, &res)
	assert.Equal(t, orchestrator.StatusSuccess, res.Status)
	assert.Equal(t, []string{core.LabelPlanner, core.LabelSQL, core.LabelCritique}, res.Steps)
	assert.True(t, res.Result.Success)
	assert.Contains(t, res.Result.Output["sql_query"], "df")

	resp = do(t, http.MethodGet, base+"/status", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []status.Record
	decode(t, resp, &records)
	require.Len(t, records, 3)
	assert.Equal(t, core.LabelPlanner, records[0].Agent)

	resp = do(t, http.MethodGet, base+"/history", "", "")
	var history []core.HistoryEntry
	decode(t, resp, &history)
	require.Len(t, history, 1)

	resp = do(t, http.MethodDelete, base, "", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, base+"/status", "", "")
	decode(t, resp, &records)
	assert.Empty(t, records)

	resp = do(t, http.MethodPost, base+"/query", "application/json", `{"query": "hello"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_JSONDataset(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/sessions/s2/dataset", "application/json",
		`{"columns": [{"name": "name", "type": "text"}, {"name": "salary", "type": "number"}],
		  "records": [{"name": "ann", "salary": 40000}]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var snap core.SessionSnapshot
	decode(t, resp, &snap)
	assert.Equal(t, 1, snap.Rows)
}

func TestServer_RejectsBadInput(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/sessions/s1/dataset", "application/json", `{"columns": []}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body errorResponse
	decode(t, resp, &body)
	assert.Equal(t, core.KindValidation, body.Kind)

	resp = do(t, http.MethodPost, srv.URL+"/sessions/s1/dataset", "text/csv", salariesCSV)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/sessions/s1/query", "application/json", `{"query": "  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/sessions/s1/query", "application/json", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/healthz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status string                     `json:"status"`
		Agents map[string]json.RawMessage `json:"agents"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Contains(t, body.Agents, core.LabelSQL)
	assert.Contains(t, body.Agents, core.LabelCritique)
}

func TestServer_ChartArtifacts(t *testing.T) {
	srv := newTestServer(t)
	base := srv.URL + "/sessions/s3"

	csv := "date,sales,region\n2024-01-01,100,north\n2024-01-02,120,south\n2024-01-03,90,north\n"
	resp := do(t, http.MethodPost, base+"/dataset", "text/csv", csv)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, http.MethodPost, base+"/query", "application/json", `{"query": "chart of sales over time"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res struct {
		Artifacts []string `json:"artifacts"`
	}
	decode(t, resp, &res)
	require.Len(t, res.Artifacts, 1)

	resp = do(t, http.MethodGet, base+"/artifacts", "", "")
	var list []core.Artifact
	decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, res.Artifacts[0], list[0].Name)

	resp = do(t, http.MethodGet, base+"/artifacts/"+res.Artifacts[0], "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, orchestrator.VegaLiteContentType, resp.Header.Get("Content-Type"))
	var spec map[string]any
	decode(t, resp, &spec)
	assert.Equal(t, "line", spec["mark"])

	resp = do(t, http.MethodGet, base+"/artifacts/missing", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
