package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Request is the normalized input to a single completion.
// Zero valued tuning fields leave the provider defaults in place.
type Request struct {
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the text produced for a Request plus accounting data.
type Completion struct {
	Text  string     `json:"text"`
	Model string     `json:"model,omitempty"`
	Usage TokenUsage `json:"usage"`
}

// Info contains metadata about a completer implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", ...
}

// Completer is the single capability specialists need from a language model:
// turn a prompt into text.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Info returns information about the implementation.
	Info() Info
}

// ErrNoCompleter is returned when a specialist that needs a model has none.
var ErrNoCompleter = errors.New("model: no completer configured")

// CompleterFunc adapts a plain function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (*Completion, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Completion, error) {
	return f(ctx, req)
}

// Info implements Completer.
func (f CompleterFunc) Info() Info { return Info{Name: "func", Provider: "func"} }

type mockRule struct {
	trigger  string
	response string
	err      error
}

// MockCompleter is a deterministic in-memory Completer for tests and examples.
// Rules are matched in registration order against System+Prompt; the first
// rule whose trigger is a substring wins. Without a match the fallback text is
// returned.
type MockCompleter struct {
	mu       sync.Mutex
	rules    []mockRule
	fallback string
	calls    []Request
}

// NewMockCompleter constructs a MockCompleter with a fallback response.
func NewMockCompleter(fallback string) *MockCompleter {
	return &MockCompleter{fallback: fallback}
}

// On registers a canned response for prompts containing trigger.
func (m *MockCompleter) On(trigger, response string) *MockCompleter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{trigger: trigger, response: response})
	return m
}

// OnError registers an error for prompts containing trigger.
func (m *MockCompleter) OnError(trigger string, err error) *MockCompleter {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{trigger: trigger, err: err})
	return m
}

// Calls returns a copy of every request seen so far.
func (m *MockCompleter) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Complete implements Completer.
func (m *MockCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	rules := m.rules
	m.mu.Unlock()

	haystack := req.System + "\n" + req.Prompt
	text := m.fallback
	for _, r := range rules {
		if strings.Contains(haystack, r.trigger) {
			if r.err != nil {
				return nil, r.err
			}
			text = r.response
			break
		}
	}
	if text == "" {
		text = fmt.Sprintf("Mock response to: %s", req.Prompt)
	}

	prompt := len(strings.Fields(haystack))
	completion := len(strings.Fields(text))
	return &Completion{
		Text:  text,
		Model: "mock",
		Usage: TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion},
	}, nil
}

// Info implements Completer.
func (m *MockCompleter) Info() Info { return Info{Name: "mock", Provider: "mock"} }
