package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "salaries.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,salary\nann,40000\nbob,60000\n"), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("INSIGHTMESH_LLM_PROVIDER", "mock")
	t.Setenv("INSIGHTMESH_LOG_LEVEL", "error")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPlanCmd_YAML(t *testing.T) {
	out, err := run(t, "plan", "--data", writeCSV(t), "show me a sql query filtering rows where salary > 50000")
	require.NoError(t, err)

	var plan map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &plan))
	assert.Equal(t, "sql", plan["primary_agent"])
	assert.Equal(t, 0.7, plan["confidence"])
}

func TestPlanCmd_JSONWithoutData(t *testing.T) {
	out, err := run(t, "plan", "--format", "json", "hello")
	require.NoError(t, err)

	var plan map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, "insight", plan["primary_agent"])
	assert.Equal(t, 0.5, plan["confidence"])
}

func TestPlanCmd_UnknownFormat(t *testing.T) {
	_, err := run(t, "plan", "--format", "xml", "hello")
	require.Error(t, err)
}

func TestAskCmd(t *testing.T) {
	out, err := run(t, "ask", "--data", writeCSV(t), "write a sql query for the rows")
	require.NoError(t, err)

	var res struct {
		Status string   `json:"status"`
		Steps  []string `json:"steps"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, []string{"planner", "sql", "critique"}, res.Steps)
}

func TestAskCmd_RequiresData(t *testing.T) {
	_, err := run(t, "ask", "hello")
	require.Error(t, err)
}
