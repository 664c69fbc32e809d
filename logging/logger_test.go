package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(msg string, _ ...any) { r.lines = append(r.lines, "debug:"+msg) }
func (r *recordingLogger) Info(msg string, _ ...any)  { r.lines = append(r.lines, "info:"+msg) }
func (r *recordingLogger) Warn(msg string, _ ...any)  { r.lines = append(r.lines, "warn:"+msg) }
func (r *recordingLogger) Error(msg string, _ ...any) { r.lines = append(r.lines, "error:"+msg) }

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestWithLevel_Filters(t *testing.T) {
	rec := &recordingLogger{}
	l := WithLevel(rec, LevelWarn)
	l.Debug("a")
	l.Info("b")
	l.Warn("c")
	l.Error("d")
	assert.Equal(t, []string{"warn:c", "error:d"}, rec.lines)
}

func TestNew_ZerologJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Format: "json", Output: &buf})
	l.Debug("hidden")
	l.Info("visible", "agent", "sql", "attempt", 2, "error", errors.New("boom"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "sql", entry["agent"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNew_Slog(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Format: "json", Backend: "slog", Output: &buf})
	l.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestWith_PrependsFields(t *testing.T) {
	var buf bytes.Buffer
	l := With(New(Config{Format: "json", Output: &buf}), "component", "planner")
	l.Info("routed")
	assert.Contains(t, buf.String(), `"component":"planner"`)
}
