// Package anthropic provides a model.Completer for the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/insightmesh/model"
)

// Options configures the Anthropic completer (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Completer wraps the Anthropic Messages API behind model.Completer.
type Completer struct {
	client *anthropic.Client
	opts   Options
}

// New creates a completer using the official client.
func New(optFns ...func(o *Options)) *Completer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)
	return &Completer{client: &client, opts: opts}
}

// NewFromClient creates a completer from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Completer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Completer{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Complete implements model.Completer.
func (c *Completer) Complete(ctx context.Context, req model.Request) (*model.Completion, error) {
	params := anthropic.MessageNewParams{
		Model:       c.opts.Model,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: anthropic.Float(c.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Model != "" {
		params.Model = anthropic.Model(req.Model)
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return &model.Completion{
		Text:  sb.String(),
		Model: string(resp.Model),
		Usage: model.TokenUsage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
	}, nil
}

// Info returns metadata describing this completer.
func (c *Completer) Info() model.Info {
	return model.Info{Name: string(c.opts.Model), Provider: "anthropic"}
}
