// Package ollama provides a Generator adapter for a local Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/ollamaapi"
	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

var _ driven.Generator = (*Generator)(nil)

const (
	DefaultModel   = "llama3.2"
	DefaultTimeout = 120 * time.Second
)

// Config selects the server and model.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Generator answers prompts through Ollama's chat endpoint.
type Generator struct {
	api   *ollamaapi.Client
	model string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

// chatOptions always sends temperature: Ollama treats a missing value as
// its own default, not as zero.
type chatOptions struct {
	Temperature float64  `json:"temperature"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type chatResponse struct {
	Message    chatMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason"`
}

// NewGenerator creates an Ollama generator, filling in defaults.
func NewGenerator(cfg Config) *Generator {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Generator{
		api:   ollamaapi.New(cfg.BaseURL, cfg.Timeout),
		model: cfg.Model,
	}
}

// Generate sends the assembled prompt as the user turn of a chat,
// preceded by opts.System when set.
func (g *Generator) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	var messages []chatMessage
	if opts.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	req := chatRequest{
		Model:    g.model,
		Messages: messages,
		Options: chatOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
			Stop:        opts.StopWords,
		},
	}
	var out chatResponse
	if err := g.api.Post(ctx, "/api/chat", req, &out); err != nil {
		return "", g.unavailable(err)
	}
	if out.DoneReason == "length" {
		logger.Warn("Answer from %s was cut off at %d tokens", g.model, opts.MaxTokens)
	}
	answer := strings.TrimSpace(out.Message.Content)
	if answer == "" {
		return "", fmt.Errorf("%w: ollama returned an empty answer", domain.ErrGenerationUnavailable)
	}
	return answer, nil
}

// ModelName returns the configured model.
func (g *Generator) ModelName() string {
	return g.model
}

// Ping checks that the server is up and the model has been pulled.
func (g *Generator) Ping(ctx context.Context) error {
	ok, err := g.api.HasModel(ctx, g.model)
	if err != nil {
		return g.unavailable(err)
	}
	if !ok {
		return fmt.Errorf("%w: model %q is not pulled (run: ollama pull %s)",
			domain.ErrGenerationUnavailable, g.model, g.model)
	}
	return nil
}

// Close is a no-op.
func (g *Generator) Close() error {
	return nil
}

func (g *Generator) unavailable(err error) error {
	var status *ollamaapi.StatusError
	switch {
	case errors.As(err, &status):
		return fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: ollama did not answer in time: %w", domain.ErrGenerationUnavailable, err)
	default:
		return fmt.Errorf("%w: ollama unreachable at %s: %w", domain.ErrGenerationUnavailable, g.api.BaseURL(), err)
	}
}
