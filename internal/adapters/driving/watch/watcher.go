// Package watch keeps the index in step with a handbook directory by
// re-ingesting documents as they change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driving"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// DefaultDebounce is how long the watcher waits for a burst of changes
// to settle before applying them.
const DefaultDebounce = 500 * time.Millisecond

// ErrMissingIngestService is returned when no ingest service is provided.
var ErrMissingIngestService = errors.New("watch: ingest service is required")

// Source streams document changes below a root directory.
type Source interface {
	Watch(ctx context.Context, root string) (<-chan domain.RawDocumentChange, error)
}

// Result describes one applied batch of changes.
type Result struct {
	// Report is the ingestion report, nil when the batch only deleted.
	Report *driving.IngestReport

	// Deleted lists the documents removed from the index.
	Deleted []string

	// Err joins every failure of the batch.
	Err error
}

// Config configures a Watcher.
type Config struct {
	// Debounce delays applying changes until none arrived for this long.
	Debounce time.Duration

	// OnBatch is called after every applied batch. Optional.
	OnBatch func(Result)
}

// Watcher applies document changes to the index.
type Watcher struct {
	source   Source
	ingest   driving.IngestService
	index    driving.IndexService
	debounce time.Duration
	onBatch  func(Result)
}

// New creates a watcher. The index service is optional; when set it is
// flushed after every batch so a crash loses at most the pending burst.
func New(source Source, ingest driving.IngestService, index driving.IndexService, cfg Config) (*Watcher, error) {
	if ingest == nil {
		return nil, ErrMissingIngestService
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		source:   source,
		ingest:   ingest,
		index:    index,
		debounce: debounce,
		onBatch:  cfg.OnBatch,
	}, nil
}

// Run blocks until ctx is cancelled or the source closes its stream.
// Changes to the same document within one burst collapse to the last one.
func (w *Watcher) Run(ctx context.Context, root string) error {
	changes, err := w.source.Watch(ctx, root)
	if err != nil {
		return fmt.Errorf("watch %s: %w", root, err)
	}
	logger.Info("Watching %s", root)

	pending := make(map[string]domain.RawDocumentChange)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(pending) > 0 {
				logger.Debug("Dropping %d pending changes on shutdown", len(pending))
			}
			return nil

		case change, ok := <-changes:
			if !ok {
				w.apply(ctx, pending)
				return nil
			}
			pending[change.Document.ID] = change
			timer.Reset(w.debounce)

		case <-timer.C:
			w.apply(ctx, pending)
			pending = make(map[string]domain.RawDocumentChange)
		}
	}
}

// apply ingests created and updated documents and deletes removed ones.
func (w *Watcher) apply(ctx context.Context, pending map[string]domain.RawDocumentChange) {
	if len(pending) == 0 {
		return
	}

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var result Result
	var errs []error
	var raws []domain.RawDocument
	for _, id := range ids {
		change := pending[id]
		if change.Type != domain.ChangeDeleted {
			raws = append(raws, change.Document)
			continue
		}
		err := w.ingest.Delete(ctx, id)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// Never ingested, e.g. an unsupported file type.
		case err != nil:
			errs = append(errs, err)
		default:
			result.Deleted = append(result.Deleted, id)
		}
	}

	if len(raws) > 0 {
		report, err := w.ingest.IngestRaw(ctx, raws)
		result.Report = report
		if err != nil {
			errs = append(errs, err)
		}
	}

	if w.index != nil {
		if err := w.index.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush index: %w", err))
		}
	}

	result.Err = errors.Join(errs...)
	if result.Err != nil {
		logger.Error("Applying changes: %v", result.Err)
	}
	if w.onBatch != nil {
		w.onBatch(result)
	}
}
