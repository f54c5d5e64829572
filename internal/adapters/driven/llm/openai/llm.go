// Package openai provides a Generator adapter for the OpenAI chat
// completions API and compatible endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

var _ driven.Generator = (*Generator)(nil)

const (
	DefaultBaseURL = "https://api.openai.com/v1/"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 120 * time.Second
)

// Config selects the endpoint and model. APIKey may be empty only when
// BaseURL points at a compatible server that needs none.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Generator answers prompts through chat completions.
type Generator struct {
	client openai.Client
	model  string
}

// NewGenerator creates an OpenAI generator, filling in defaults.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai: generation.api_key is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Generator{
		client: openai.NewClient(
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(cfg.BaseURL),
			option.WithRequestTimeout(cfg.Timeout),
			option.WithMaxRetries(1),
		),
		model: cfg.Model,
	}, nil
}

// Generate sends opts.System, when set, and the prompt as one chat.
func (g *Generator) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if opts.System != "" {
		messages = append(messages, openai.SystemMessage(opts.System))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       openai.ChatModel(g.model),
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxTokens))
	}
	if len(opts.StopWords) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: opts.StopWords}
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: openai: %w", domain.ErrGenerationUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", domain.ErrGenerationUnavailable)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		logger.Warn("Answer from %s was cut off at %d tokens", g.model, opts.MaxTokens)
	}
	answer := strings.TrimSpace(choice.Message.Content)
	if answer == "" {
		return "", fmt.Errorf("%w: openai returned an empty answer", domain.ErrGenerationUnavailable)
	}
	return answer, nil
}

// ModelName returns the configured model.
func (g *Generator) ModelName() string {
	return g.model
}

// Ping looks the model up, which needs a valid key but no inference.
func (g *Generator) Ping(ctx context.Context) error {
	if _, err := g.client.Models.Get(ctx, g.model); err != nil {
		return fmt.Errorf("%w: openai model %q: %w", domain.ErrGenerationUnavailable, g.model, err)
	}
	return nil
}

// Close is a no-op.
func (g *Generator) Close() error {
	return nil
}
