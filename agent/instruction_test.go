package agent

import (
	"errors"
	"testing"

	"github.com/hupe1980/insightmesh/dataset"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(*Call) (string, error) { return m.text, m.err }

func newTestCall() *Call {
	tbl := dataset.MustNew(
		[]dataset.Column{{Name: "name", Type: dataset.Text}, {Name: "salary", Type: dataset.Number}},
		[][]any{{"ann", 40000}, {"bob", 60000}},
	)
	return NewCall("test", "top earners", tbl, map[string]any{"limit": 5}, DefaultConfig(), nil, nil)
}

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	if !inst.IsStatic() {
		t.Fatalf("expected static instruction")
	}
	got, err := inst.Resolve(newTestCall())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "static instruction" {
		t.Fatalf("expected 'static instruction', got %q", got)
	}
}

func TestInstruction_StaticTemplate(t *testing.T) {
	inst := NewInstructionFromText(`Q: {{.query}} | {{.schema}} | {{join "," .columns}} | {{.rows}} | {{.limit}}`)
	got, err := inst.Resolve(newTestCall())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Q: top earners | name text, salary number | name,salary | 2 | 5"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestInstruction_NewInstructionFromFunc(t *testing.T) {
	inst := NewInstructionFromFunc(func(c *Call) (string, error) { return "dynamic " + c.Query, nil })
	if inst.IsStatic() {
		t.Fatalf("expected dynamic instruction")
	}
	got, err := inst.Resolve(newTestCall())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "dynamic top earners" {
		t.Fatalf("expected 'dynamic top earners', got %q", got)
	}
}

func TestInstruction_NewInstructionFromProvider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "provider text"})
	if inst.IsStatic() {
		t.Fatalf("expected dynamic instruction")
	}
	got, err := inst.Resolve(newTestCall())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "provider text" {
		t.Fatalf("expected 'provider text', got %q", got)
	}
}

func TestInstruction_ErrorPropagation(t *testing.T) {
	expectedErr := errors.New("boom")
	inst := NewInstructionFromProvider(mockProvider{err: expectedErr})
	_, err := inst.Resolve(newTestCall())
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected error %v, got %v", expectedErr, err)
	}
}
