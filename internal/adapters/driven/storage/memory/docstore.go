package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore keeps documents and chunks in maps. The service tests run
// against it instead of a database.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk
	byID      map[string]*domain.Chunk
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
		byID:      make(map[string]*domain.Chunk),
	}
}

// ReplaceDocument stores doc and swaps all of its chunks.
func (s *DocumentStore) ReplaceDocument(_ context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	for i := range chunks {
		if chunks[i].DocumentID != doc.ID {
			return fmt.Errorf("%w: chunk %s belongs to %q, not %q",
				domain.ErrInvalidInput, chunks[i].ID, chunks[i].DocumentID, doc.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *doc
	if prev, ok := s.documents[doc.ID]; ok && !prev.CreatedAt.IsZero() {
		stored.CreatedAt = prev.CreatedAt
	}
	s.documents[doc.ID] = stored

	for _, old := range s.chunks[doc.ID] {
		delete(s.byID, old.ID)
	}

	owned := slices.Clone(chunks)
	slices.SortStableFunc(owned, func(a, b domain.Chunk) int { return cmp.Compare(a.Ordinal, b.Ordinal) })
	s.chunks[doc.ID] = owned
	for i := range owned {
		s.byID[owned[i].ID] = &owned[i]
	}
	return nil
}

func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// GetChunks returns a copy of the document's chunks; unknown ids give nil.
func (s *DocumentStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.chunks[documentID]), nil
}

func (s *DocumentStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *chunk
	return &c, nil
}

// GetChunksByIDs returns copies of the chunks found among ids.
func (s *DocumentStore) GetChunksByIDs(_ context.Context, ids []string) (map[string]*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]*domain.Chunk, len(ids))
	for _, id := range ids {
		if chunk, ok := s.byID[id]; ok {
			c := *chunk
			result[id] = &c
		}
	}
	return result, nil
}

func (s *DocumentStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return domain.ErrNotFound
	}
	for _, c := range s.chunks[id] {
		delete(s.byID, c.ID)
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	return nil
}

// ListDocuments returns every document ordered by ID.
func (s *DocumentStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.documents))
	for _, id := range slices.Sorted(maps.Keys(s.documents)) {
		docs = append(docs, s.documents[id])
	}
	return docs, nil
}

// ListChunks calls fn for every chunk ordered by document and ordinal.
// fn runs on a copy taken under the lock, so it may call back into the store.
func (s *DocumentStore) ListChunks(_ context.Context, fn func(chunk *domain.Chunk) error) error {
	s.mu.RLock()
	var all []domain.Chunk
	for _, id := range slices.Sorted(maps.Keys(s.chunks)) {
		all = append(all, s.chunks[id]...)
	}
	s.mu.RUnlock()

	for i := range all {
		if err := fn(&all[i]); err != nil {
			return err
		}
	}
	return nil
}
