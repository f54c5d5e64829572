package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driving"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// Ensure AnswerService implements the interface.
var _ driving.AnswerService = (*AnswerService)(nil)

// Generation defaults for answers. Low temperature keeps the generator
// close to the excerpts.
const (
	answerMaxTokens   = 512
	answerTemperature = 0.1
	answerSystem      = "You answer questions about a student handbook. " +
		"Use only the numbered excerpts you are given and cite them as [n]. " +
		"If they do not contain the answer, say that the handbook does not cover it."
)

// AnswerService runs retrieval, prompt assembly and generation.
type AnswerService struct {
	retriever driving.RetrievalService
	prompts   driving.PromptService
	generator driven.Generator
	timeout   time.Duration
}

// NewAnswerService creates a new answer service.
// The generator is optional (can be nil); without it Ask returns the
// assembled prompt and no answer text.
func NewAnswerService(
	retriever driving.RetrievalService,
	prompts driving.PromptService,
	generator driven.Generator,
	settings domain.GenerationSettings,
) *AnswerService {
	return &AnswerService{
		retriever: retriever,
		prompts:   prompts,
		generator: generator,
		timeout:   settings.Timeout,
	}
}

// Ask answers query from the retrieved handbook excerpts.
// When nothing relevant is retrieved the generator is asked to say so and
// the answer is marked Insufficient.
func (s *AnswerService) Ask(ctx context.Context, query string, opts domain.RetrieveOptions) (*domain.Answer, error) {
	result, err := s.retriever.Retrieve(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	prompt, err := s.prompts.Assemble(query, result, 0)
	if err != nil {
		return nil, err
	}

	answer := &domain.Answer{
		Prompt:       prompt,
		Result:       result,
		Insufficient: result.Empty(),
	}
	if s.generator == nil {
		logger.Debug("No generator configured, returning prompt only")
		return answer, nil
	}

	gctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger.Debug("Generating answer with %s", s.generator.ModelName())
	text, err := s.generator.Generate(gctx, prompt, driven.GenerateOptions{
		System:      answerSystem,
		MaxTokens:   answerMaxTokens,
		Temperature: answerTemperature,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrGenerationUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrGenerationUnavailable, err)
		}
		logger.Warn("Answer generation failed: %v", err)
		return nil, err
	}

	answer.Text = strings.TrimSpace(text)
	return answer, nil
}
