package driven

import "context"

// Generator turns an assembled handbook prompt into answer text.
// It is optional: with no generator configured, callers stop at the prompt.
type Generator interface {
	// Generate answers prompt. Implementations wrap every failure with
	// domain.ErrGenerationUnavailable.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ModelName identifies the model in logs and `index stats`.
	ModelName() string

	// Ping checks that the backend is reachable and the model is usable,
	// without running inference.
	Ping(ctx context.Context) error

	Close() error
}

// GenerateOptions tunes one Generate call.
type GenerateOptions struct {
	// System is sent ahead of the prompt by backends with a system role.
	System string

	// MaxTokens caps the answer length. Zero leaves it to the backend.
	MaxTokens int

	// Temperature is always sent, so zero means deterministic output.
	Temperature float64

	StopWords []string
}
