// Package openai provides an implementation of model.Completer using the
// OpenAI Chat Completions API.
package openai

import (
	"context"
	"fmt"

	"github.com/hupe1980/insightmesh/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI completer.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Completer wraps the OpenAI Chat Completions API behind model.Completer.
type Completer struct {
	client *openai.Client
	opts   Options
}

// New creates a completer using the official client. APIKey and BaseURL
// override the SDK's environment defaults when set.
func New(optFns ...func(o *Options)) *Completer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(clientOpts...)
	return &Completer{client: &client, opts: opts}
}

// NewFromClient creates a completer from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Completer {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Completer{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
}

// Complete implements model.Completer. Request fields override the
// configured defaults when non-zero.
func (c *Completer) Complete(ctx context.Context, req model.Request) (*model.Completion, error) {
	params := c.buildParams(req)

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices returned")
	}

	return &model.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Usage: model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

func (c *Completer) buildParams(req model.Request) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	modelName := c.opts.Model
	if req.Model != "" {
		modelName = req.Model
	}
	temperature := c.opts.Temperature
	if req.Temperature > 0 {
		temperature = req.Temperature
	}
	maxTokens := c.opts.MaxCompletionTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	return openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               modelName,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}
}

// Info returns metadata describing this completer.
func (c *Completer) Info() model.Info {
	return model.Info{Name: c.opts.Model, Provider: "openai"}
}
