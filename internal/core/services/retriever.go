package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driving"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// Ensure RetrievalService implements the interface.
var _ driving.RetrievalService = (*RetrievalService)(nil)

// candidate holds an index hit while it is hydrated and re-ranked.
type candidate struct {
	hit   driven.VectorHit
	chunk *domain.Chunk
	doc   *domain.Document
	score float64
}

// RetrievalService answers queries from the vector index.
type RetrievalService struct {
	embedder driven.Embedder
	index    driven.VectorIndex
	docStore driven.DocumentStore
	settings domain.RetrievalSettings
}

// NewRetrievalService creates a new retrieval service.
func NewRetrievalService(
	embedder driven.Embedder,
	index driven.VectorIndex,
	docStore driven.DocumentStore,
	settings domain.RetrievalSettings,
) *RetrievalService {
	defaults := domain.DefaultSettings().Retrieval
	if settings.TopK <= 0 {
		settings.TopK = defaults.TopK
	}
	if settings.OverFetch < 1 {
		settings.OverFetch = defaults.OverFetch
	}
	return &RetrievalService{
		embedder: embedder,
		index:    index,
		docStore: docStore,
		settings: settings,
	}
}

// Retrieve embeds query, over-fetches candidates from the index, drops
// those below the relevance threshold, re-ranks the rest and returns at
// most TopK of them with their text attached.
func (s *RetrievalService) Retrieve(
	ctx context.Context, query string, opts domain.RetrieveOptions,
) (*domain.RetrievalResult, error) {
	logger.Section("Retrieval")
	defer logger.Timed("Retrieval")()
	logger.Debug("Query: %q", query)

	result := &domain.RetrievalResult{Query: query, Chunks: []domain.RetrievedChunk{}}

	query = strings.TrimSpace(query)
	if query == "" {
		logger.Debug("Empty query, returning no results")
		return result, nil
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = s.settings.TopK
	}
	minScore := s.settings.MinScore
	if opts.MinScore != nil {
		minScore = *opts.MinScore
	}
	fetch := topK * s.settings.OverFetch
	logger.Debug("TopK: %d, fetch: %d, min score: %.3f", topK, fetch, minScore)

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.index.Search(ctx, vector, fetch, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	logger.Debug("Index returned %d candidates", len(hits))

	kept := hits[:0:0]
	for _, hit := range hits {
		if hit.Similarity >= minScore {
			kept = append(kept, hit)
		}
	}
	if len(kept) == 0 {
		logger.Info("No chunk cleared the relevance threshold %.3f", minScore)
		return result, nil
	}

	candidates, err := s.hydrate(ctx, kept)
	if err != nil {
		return nil, err
	}

	s.rerank(query, candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].hit.ChunkID < candidates[j].hit.ChunkID
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	for _, c := range candidates {
		rc := domain.RetrievedChunk{
			ChunkID:    c.hit.ChunkID,
			Score:      c.score,
			Similarity: c.hit.Similarity,
			Content:    c.chunk.Content,
			DocumentID: c.chunk.DocumentID,
			Section:    c.chunk.Section,
			Ordinal:    c.chunk.Ordinal,
		}
		if c.doc != nil {
			rc.Title = c.doc.Title
			rc.URI = c.doc.URI
		}
		result.Chunks = append(result.Chunks, rc)
	}

	logger.Info("Retrieved %d chunks", len(result.Chunks))
	return result, nil
}

// embedQuery embeds the query within the configured timeout.
func (s *RetrievalService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	qctx := ctx
	if s.settings.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, s.settings.QueryTimeout)
		defer cancel()
	}

	vector, err := s.embedder.Embed(qctx, query)
	if err != nil {
		if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded)) {
			return nil, fmt.Errorf("embed query after %s: %w", s.settings.QueryTimeout, domain.ErrEmbeddingTimeout)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vector, nil
}

// hydrate attaches chunk text and document details. Hits whose chunk is
// no longer stored are skipped.
func (s *RetrievalService) hydrate(ctx context.Context, hits []driven.VectorHit) ([]candidate, error) {
	ids := make([]string, len(hits))
	for i := range hits {
		ids[i] = hits[i].ChunkID
	}
	chunks, err := s.docStore.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	docs := make(map[string]*domain.Document)
	candidates := make([]candidate, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := chunks[hit.ChunkID]
		if !ok {
			logger.Debug("Chunk %s is indexed but not stored, skipping", hit.ChunkID)
			continue
		}
		doc, seen := docs[chunk.DocumentID]
		if !seen {
			doc, err = s.docStore.GetDocument(ctx, chunk.DocumentID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("load document %s: %w", chunk.DocumentID, err)
			}
			docs[chunk.DocumentID] = doc
		}
		candidates = append(candidates, candidate{hit: hit, chunk: chunk, doc: doc, score: hit.Similarity})
	}
	return candidates, nil
}

// rerank adds the lexical overlap and recency boosts. Both are
// non-negative, so a boosted score never falls below the similarity that
// cleared the threshold. Freshness is measured against the newest
// candidate so that the ranking does not depend on the wall clock.
func (s *RetrievalService) rerank(query string, candidates []candidate) {
	if s.settings.LexicalBoost > 0 {
		queryTerms := termSet(query)
		if len(queryTerms) > 0 {
			for i := range candidates {
				candidates[i].score += s.settings.LexicalBoost * overlap(queryTerms, candidates[i].chunk.Content)
			}
		}
	}

	if s.settings.RecencyBoost > 0 && s.settings.RecencyHalfLife > 0 {
		var newest time.Time
		for i := range candidates {
			if m := candidates[i].hit.Metadata.ModifiedAt; m.After(newest) {
				newest = m
			}
		}
		if newest.IsZero() {
			return
		}
		for i := range candidates {
			modified := candidates[i].hit.Metadata.ModifiedAt
			if modified.IsZero() {
				continue
			}
			age := newest.Sub(modified)
			freshness := math.Exp2(-float64(age) / float64(s.settings.RecencyHalfLife))
			candidates[i].score += s.settings.RecencyBoost * freshness
		}
	}
}

// overlap returns the share of query terms found in text.
func overlap(queryTerms map[string]struct{}, text string) float64 {
	textTerms := termSet(text)
	found := 0
	for term := range queryTerms {
		if _, ok := textTerms[term]; ok {
			found++
		}
	}
	return float64(found) / float64(len(queryTerms))
}

// termSet returns the distinct lower-cased words of text that are at
// least three characters long or contain a digit.
func termSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) >= 3 || strings.IndexFunc(f, unicode.IsDigit) >= 0 {
			if !lexicalStopWords[f] {
				terms[f] = struct{}{}
			}
		}
	}
	return terms
}

var lexicalStopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "can": true, "what": true,
	"where": true, "when": true, "who": true, "how": true, "which": true, "does": true,
	"with": true, "this": true, "that": true, "from": true, "have": true, "has": true,
	"you": true, "your": true, "its": true, "was": true, "not": true, "there": true,
}
