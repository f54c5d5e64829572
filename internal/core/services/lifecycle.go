package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driving"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// Ensure IndexLifecycle implements the interface.
var _ driving.IndexService = (*IndexLifecycle)(nil)

// IndexLifecycle owns the index for the lifetime of the process.
// Open loads or builds it, Close saves and releases it. Only changes made
// by this process are saved: a process that never wrote leaves the stored
// index alone, so it cannot overwrite a newer one saved by another process.
type IndexLifecycle struct {
	index    driven.VectorIndex
	store    driven.IndexStore
	docStore driven.DocumentStore
	embedder driven.Embedder
	batches  *batchEmbedder

	mu     sync.Mutex
	opened bool
	closed bool
	dirty  atomic.Bool
}

// NewIndexLifecycle creates a new index lifecycle.
func NewIndexLifecycle(
	index driven.VectorIndex,
	store driven.IndexStore,
	docStore driven.DocumentStore,
	embedder driven.Embedder,
	settings domain.IngestionSettings,
) *IndexLifecycle {
	return &IndexLifecycle{
		index:    index,
		store:    store,
		docStore: docStore,
		embedder: embedder,
		batches:  newBatchEmbedder(embedder, settings),
	}
}

// Open publishes the saved snapshot, or rebuilds from stored chunks when
// there is none. A snapshot built with another model or dimension is
// refused. An index that already holds entries (an external backend) is
// only checked.
func (l *IndexLifecycle) Open(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return domain.ErrIndexClosed
	}
	if l.opened {
		return nil
	}
	logger.Section("Index")

	info, err := l.index.Info(ctx)
	if err != nil {
		return fmt.Errorf("index info: %w", err)
	}
	if info.Size > 0 {
		if err := checkCompatible(ctx, l.index, l.embedder); err != nil {
			return err
		}
		logger.Info("Index already holds %d entries", info.Size)
		l.opened = true
		return nil
	}

	snap, err := l.store.LoadSnapshot(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Info("No saved index, rebuilding from stored chunks")
		if _, err := l.rebuild(ctx); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("load index: %w", err)
	default:
		if err := l.verify(snap); err != nil {
			return err
		}
		if err := l.index.Build(ctx, snap.ModelVersion, snap.Entries); err != nil {
			return fmt.Errorf("publish index: %w", err)
		}
		logger.Info("Loaded index: %d entries, model %s, saved %s",
			len(snap.Entries), snap.ModelVersion, snap.SavedAt.Format(time.RFC3339))
	}

	l.opened = true
	return nil
}

// Tracked returns the index wrapped so that every successful write marks
// it as changed. Services that write to the index must go through it.
func (l *IndexLifecycle) Tracked() driven.VectorIndex {
	return &trackedIndex{VectorIndex: l.index, dirty: &l.dirty}
}

// Rebuild re-embeds every stored chunk, publishes the result in one step
// and saves it.
func (l *IndexLifecycle) Rebuild(ctx context.Context) (*domain.IndexInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, domain.ErrIndexClosed
	}
	info, err := l.rebuild(ctx)
	if err != nil {
		return nil, err
	}
	l.opened = true
	return info, nil
}

// Stats reports the index state. Before Open it describes the saved
// index instead, which is how a model or dimension change shows up.
func (l *IndexLifecycle) Stats(ctx context.Context) (*driving.IndexStats, error) {
	l.mu.Lock()
	opened := l.opened
	l.mu.Unlock()

	info, err := l.index.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("index info: %w", err)
	}
	if !opened && info.Size == 0 {
		snap, err := l.store.LoadSnapshot(ctx)
		switch {
		case err == nil:
			info = domain.IndexInfo{ModelVersion: snap.ModelVersion, Dimension: snap.Dimension, Size: len(snap.Entries)}
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("load index: %w", err)
		}
	}
	docs, err := l.docStore.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return &driving.IndexStats{
		Info:              info,
		Documents:         len(docs),
		Embedder:          l.embedder.ModelName(),
		EmbedderDimension: l.embedder.Dimensions(),
	}, nil
}

// Flush saves the index if it changed since it was loaded or last saved.
// It does nothing before Open, so an unopened index never overwrites the
// saved one.
func (l *IndexLifecycle) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return domain.ErrIndexClosed
	}
	if !l.opened || !l.dirty.Load() {
		return nil
	}
	return l.flush(ctx)
}

// Close saves and releases the index. Closing twice is a no-op.
func (l *IndexLifecycle) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if l.opened && l.dirty.Load() {
		if err := l.flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := l.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	return errors.Join(errs...)
}

// flush clears the dirty mark before taking the snapshot, so a write that
// lands meanwhile marks it again.
func (l *IndexLifecycle) flush(ctx context.Context) error {
	l.dirty.Store(false)
	snap, err := l.index.Snapshot(ctx)
	if err != nil {
		l.dirty.Store(true)
		return fmt.Errorf("snapshot index: %w", err)
	}
	if err := l.store.SaveSnapshot(ctx, snap); err != nil {
		l.dirty.Store(true)
		return fmt.Errorf("save index: %w", err)
	}
	logger.Debug("Saved index: %d entries", len(snap.Entries))
	return nil
}

func (l *IndexLifecycle) rebuild(ctx context.Context) (*domain.IndexInfo, error) {
	defer logger.Timed("Index rebuild")()
	docs, err := l.docStore.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	modified := make(map[string]time.Time, len(docs))
	for i := range docs {
		modified[docs[i].ID] = docs[i].ModifiedAt
	}

	var chunks []domain.Chunk
	err = l.docStore.ListChunks(ctx, func(c *domain.Chunk) error {
		chunks = append(chunks, *c)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors, err := l.batches.embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	entries := make([]domain.IndexEntry, len(chunks))
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		entries[i] = domain.NewIndexEntry(&chunks[i], modified[chunks[i].DocumentID])
	}

	if err := l.index.Build(ctx, l.embedder.ModelName(), entries); err != nil {
		return nil, fmt.Errorf("publish index: %w", err)
	}
	if err := l.flush(ctx); err != nil {
		return nil, err
	}

	info, err := l.index.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("index info: %w", err)
	}
	logger.Info("Rebuilt index: %d entries from %d documents", info.Size, len(docs))
	return &info, nil
}

// verify refuses a snapshot built with a different model or dimension.
func (l *IndexLifecycle) verify(snap *domain.IndexSnapshot) error {
	if len(snap.Entries) == 0 && snap.ModelVersion == "" {
		return nil
	}
	if snap.ModelVersion != l.embedder.ModelName() {
		return fmt.Errorf("%w: saved index built with %q, embedder is %q",
			domain.ErrModelVersionMismatch, snap.ModelVersion, l.embedder.ModelName())
	}
	if snap.Dimension != 0 && snap.Dimension != l.embedder.Dimensions() {
		return fmt.Errorf("%w: saved index has %d dimensions, embedder produces %d",
			domain.ErrDimensionMismatch, snap.Dimension, l.embedder.Dimensions())
	}
	for i := range snap.Entries {
		if len(snap.Entries[i].Vector) != l.embedder.Dimensions() {
			return fmt.Errorf("%w: entry %s has %d dimensions, embedder produces %d",
				domain.ErrDimensionMismatch, snap.Entries[i].ChunkID, len(snap.Entries[i].Vector), l.embedder.Dimensions())
		}
	}
	return nil
}

// trackedIndex marks the lifecycle dirty after every successful write.
type trackedIndex struct {
	driven.VectorIndex
	dirty *atomic.Bool
}

func (t *trackedIndex) Build(ctx context.Context, modelVersion string, entries []domain.IndexEntry) error {
	return t.mark(t.VectorIndex.Build(ctx, modelVersion, entries))
}

func (t *trackedIndex) Upsert(ctx context.Context, entry domain.IndexEntry) error {
	return t.mark(t.VectorIndex.Upsert(ctx, entry))
}

func (t *trackedIndex) ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error {
	return t.mark(t.VectorIndex.ReplaceDocument(ctx, documentID, entries))
}

func (t *trackedIndex) Delete(ctx context.Context, chunkID string) error {
	return t.mark(t.VectorIndex.Delete(ctx, chunkID))
}

func (t *trackedIndex) mark(err error) error {
	if err == nil {
		t.dirty.Store(true)
	}
	return err
}
