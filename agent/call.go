package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/insightmesh/core"
	"github.com/hupe1980/insightmesh/dataset"
	"github.com/hupe1980/insightmesh/logging"
	"github.com/hupe1980/insightmesh/model"
)

// Call carries everything an Executor needs for one Run: the query, the
// borrowed table, caller kwargs, the effective config and a metered
// completer. Calls are created by the framework; executors must treat Table
// as read-only.
type Call struct {
	ID     string
	Agent  string
	Query  string
	Table  *dataset.Table
	Kwargs map[string]any
	Config Config
	Logger logging.Logger

	completer model.Completer
	limiter   *core.ModelLimiter

	mu    sync.Mutex
	usage model.TokenUsage
}

// NewCall builds a Call outside of the agent pipeline. Executors composing
// other executors and tests use it directly.
func NewCall(agentName, query string, table *dataset.Table, kwargs map[string]any, cfg Config, completer model.Completer, logger logging.Logger) *Call {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Call{
		ID:        core.NewID(),
		Agent:     agentName,
		Query:     query,
		Table:     table,
		Kwargs:    kwargs,
		Config:    cfg,
		Logger:    logger,
		completer: completer,
		limiter:   core.NewModelLimiter(cfg.MaxModelCalls),
	}
}

// RequireTable returns a validation error when no usable table is attached.
func (c *Call) RequireTable() error {
	if c.Table == nil {
		return core.NewError(core.KindValidation, c.Agent, "no dataset loaded")
	}
	if c.Table.Width() == 0 || c.Table.IsEmpty() {
		return core.NewError(core.KindValidation, c.Agent, "dataset is empty")
	}
	return nil
}

// String returns a string kwarg or "".
func (c *Call) String(key string) string {
	if v, ok := c.Kwargs[key].(string); ok {
		return v
	}
	return ""
}

// Complete sends one prompt to the agent's completer, applying the agent's
// model, temperature and token settings and recording token usage.
func (c *Call) Complete(ctx context.Context, system, prompt string) (string, error) {
	if c.completer == nil {
		return "", core.NewError(core.KindGenerationFailed, c.Agent, "no completer configured").Wrap(model.ErrNoCompleter)
	}
	if err := c.limiter.Increment(); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.completer.Complete(ctx, model.Request{
		System:      system,
		Prompt:      prompt,
		Model:       c.Config.Model,
		Temperature: c.Config.Temperature,
		MaxTokens:   c.Config.MaxTokens,
	})
	if err != nil {
		logging.LogLLMCall(c.Logger, c.completer.Info().Name, 0, time.Since(start), err)
		return "", fmt.Errorf("complete: %w", err)
	}
	logging.LogLLMCall(c.Logger, resp.Model, resp.Usage.TotalTokens, time.Since(start), nil)

	c.mu.Lock()
	c.usage.PromptTokens += resp.Usage.PromptTokens
	c.usage.CompletionTokens += resp.Usage.CompletionTokens
	c.usage.TotalTokens += resp.Usage.TotalTokens
	c.mu.Unlock()

	return resp.Text, nil
}

// Usage returns the tokens consumed so far.
func (c *Call) Usage() model.TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// ModelCalls returns the number of completer calls made.
func (c *Call) ModelCalls() int { return c.limiter.Count() }
