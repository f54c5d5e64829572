package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driving"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// Ensure PromptService implements the interface.
var _ driving.PromptService = (*PromptService)(nil)

// Template placeholders.
const (
	placeholderContext  = "{{context}}"
	placeholderQuestion = "{{question}}"
)

// PromptService assembles generator prompts from retrieval results.
type PromptService struct {
	prompts  driven.PromptStore
	maxChars int
}

// NewPromptService creates a new prompt service.
func NewPromptService(prompts driven.PromptStore, settings domain.PromptSettings) *PromptService {
	maxChars := settings.MaxContextChars
	if maxChars <= 0 {
		maxChars = domain.DefaultSettings().Prompt.MaxContextChars
	}
	return &PromptService{prompts: prompts, maxChars: maxChars}
}

// Assemble builds a prompt for query from the ranked chunks of result.
//
// Chunks are added in rank order, each behind a "[n] (source: <document
// id>)" marker, until the next one would push the prompt past maxChars
// characters; the remaining lower ranked chunks are dropped. When no chunk
// fits, or result is empty, the no-context template is used instead. The
// query is always included, even if it alone exceeds the budget.
func (s *PromptService) Assemble(query string, result *domain.RetrievalResult, maxChars int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: query is empty", domain.ErrInvalidInput)
	}
	if maxChars <= 0 {
		maxChars = s.maxChars
	}

	if !result.Empty() {
		tmpl, err := s.prompts.Load(driven.PromptAnswer)
		if err != nil {
			return "", fmt.Errorf("load %s prompt: %w", driven.PromptAnswer, err)
		}

		frame := render(tmpl, "", query)
		budget := maxChars - utf8.RuneCountInString(frame)

		var blocks []string
		used := 0
		for i, chunk := range result.Chunks {
			block := fmt.Sprintf("[%d] (source: %s)\n%s", i+1, chunk.DocumentID, strings.TrimSpace(chunk.Content))
			cost := utf8.RuneCountInString(block)
			if len(blocks) > 0 {
				cost += 2
			}
			if used+cost > budget {
				logger.Debug("Prompt budget reached, dropping %d lower ranked chunks", len(result.Chunks)-i)
				break
			}
			blocks = append(blocks, block)
			used += cost
		}

		if len(blocks) > 0 {
			return render(tmpl, strings.Join(blocks, "\n\n"), query), nil
		}
		logger.Warn("No retrieved chunk fits a %d character prompt", maxChars)
	}

	tmpl, err := s.prompts.Load(driven.PromptNoContext)
	if err != nil {
		return "", fmt.Errorf("load %s prompt: %w", driven.PromptNoContext, err)
	}
	return render(tmpl, "", query), nil
}

// render fills the placeholders in a single pass, so a question that
// contains a placeholder is never expanded.
func render(tmpl, excerpts, question string) string {
	return strings.NewReplacer(placeholderContext, excerpts, placeholderQuestion, question).Replace(tmpl)
}
