package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driving"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// outcome is the result of ingesting one document.
type outcome struct {
	indexed   bool
	unchanged bool
	failed    bool
	chunks    int
	warnings  []domain.Warning
	err       error
}

// IngestService chunks, embeds and indexes documents.
type IngestService struct {
	docStore driven.DocumentStore
	index    driven.VectorIndex
	embedder driven.Embedder
	pipeline driven.PostProcessorPipeline
	registry driven.NormaliserRegistry
	batches  *batchEmbedder
	workers  int
}

// NewIngestService creates a new ingest service.
// The registry is only needed by IngestRaw and may be nil.
func NewIngestService(
	docStore driven.DocumentStore,
	index driven.VectorIndex,
	embedder driven.Embedder,
	pipeline driven.PostProcessorPipeline,
	registry driven.NormaliserRegistry,
	settings domain.IngestionSettings,
) *IngestService {
	workers := settings.Workers
	if workers <= 0 {
		workers = domain.DefaultSettings().Ingestion.Workers
	}
	return &IngestService{
		docStore: docStore,
		index:    index,
		embedder: embedder,
		pipeline: pipeline,
		registry: registry,
		batches:  newBatchEmbedder(embedder, settings),
		workers:  workers,
	}
}

// Ingest chunks, embeds and publishes docs on a bounded worker pool.
//
// Each document is replaced atomically in the index and the store.
// Documents whose content and chunking are unchanged are skipped.
// Documents whose embedding still fails after retries are skipped and
// listed in the report. Other per-document failures are joined into the
// returned error; the report is returned either way.
func (s *IngestService) Ingest(ctx context.Context, docs []domain.Document) (*driving.IngestReport, error) {
	logger.Section("Ingestion")
	defer logger.Timed("Ingestion")()

	if err := checkCompatible(ctx, s.index, s.embedder); err != nil {
		return nil, err
	}

	docs = lastByID(docs)
	report := &driving.IngestReport{Documents: len(docs)}
	if len(docs) == 0 {
		return report, nil
	}

	pool, err := ants.NewPool(s.workers, ants.WithPanicHandler(func(p any) {
		logger.Error("Ingestion worker panic recovered: %v", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(doc *domain.Document, o outcome) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case o.err != nil:
			report.Failed = append(report.Failed, doc.ID)
			errs = append(errs, fmt.Errorf("ingest %s: %w", doc.ID, o.err))
		case o.failed:
			report.Failed = append(report.Failed, doc.ID)
		case o.unchanged:
			report.Unchanged++
		case o.indexed:
			report.Indexed++
			report.Chunks += o.chunks
		}
		report.Warnings = append(report.Warnings, o.warnings...)
	}

	for i := range docs {
		doc := &docs[i]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			o := s.ingestOne(ctx, doc)
			if o.err == nil && ctx.Err() == nil {
				logger.Debug("Document %s: indexed=%t unchanged=%t chunks=%d", doc.ID, o.indexed, o.unchanged, o.chunks)
			}
			record(doc, o)
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			record(doc, outcome{err: fmt.Errorf("submit: %w", err)})
		}
	}
	wg.Wait()

	sort.Strings(report.Failed)
	sort.SliceStable(report.Warnings, func(i, j int) bool {
		a, b := report.Warnings[i], report.Warnings[j]
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.ChunkID < b.ChunkID
	})
	for _, w := range report.Warnings {
		logger.Warn("%s", w.Error())
	}

	logger.Info("Ingestion complete: %d documents, %d indexed, %d unchanged, %d failed, %d chunks",
		report.Documents, report.Indexed, report.Unchanged, len(report.Failed), report.Chunks)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, errors.Join(errs...)
}

// IngestRaw normalises raws through the registry and ingests the result.
// Documents that cannot be normalised are listed as failed.
func (s *IngestService) IngestRaw(ctx context.Context, raws []domain.RawDocument) (*driving.IngestReport, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("%w: no normaliser registry configured", domain.ErrInvalidInput)
	}

	docs := make([]domain.Document, 0, len(raws))
	var failed []string
	var errs []error
	for i := range raws {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := s.registry.Normalise(ctx, &raws[i])
		if err != nil {
			failed = append(failed, raws[i].ID)
			if errors.Is(err, domain.ErrUnsupportedType) {
				logger.Warn("Skipping %s: %v", raws[i].URI, err)
				continue
			}
			errs = append(errs, fmt.Errorf("normalise %s: %w", raws[i].ID, err))
			continue
		}
		docs = append(docs, res.Document)
	}

	report, err := s.Ingest(ctx, docs)
	if report == nil {
		return nil, err
	}
	report.Documents += len(failed)
	report.Failed = append(report.Failed, failed...)
	sort.Strings(report.Failed)
	return report, errors.Join(append(errs, err)...)
}

// Delete removes a document from the index and the store.
func (s *IngestService) Delete(ctx context.Context, documentID string) error {
	if err := s.index.ReplaceDocument(ctx, documentID, nil); err != nil {
		return fmt.Errorf("remove %s from index: %w", documentID, err)
	}
	if err := s.docStore.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete %s: %w", documentID, err)
	}
	logger.Info("Deleted document %s", documentID)
	return nil
}

// ingestOne chunks, embeds and publishes a single document. The index is
// written before the store: if the store write is lost, the next run sees
// a changed document and repeats the work, while chunks missing from the
// store are skipped at query time.
func (s *IngestService) ingestOne(ctx context.Context, doc *domain.Document) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{err: err}
	}
	if doc.ID == "" {
		return outcome{err: fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)}
	}

	chunks, err := s.pipeline.Process(ctx, doc)
	if err != nil {
		return outcome{err: fmt.Errorf("chunk: %w", err)}
	}

	var o outcome
	if len(chunks) == 0 {
		o.warnings = append(o.warnings, domain.Warning{
			Kind:       domain.WarningEmptyDocument,
			DocumentID: doc.ID,
			Message:    "no extractable text",
		})
	}
	for i := range chunks {
		if chunks[i].Oversized {
			o.warnings = append(o.warnings, domain.Warning{
				Kind:       domain.WarningOversizedUnit,
				DocumentID: doc.ID,
				ChunkID:    chunks[i].ID,
				Message:    fmt.Sprintf("single unit of %d characters kept as its own chunk", chunks[i].Length),
			})
		}
	}

	hash := contentHash(doc.Content)
	unchanged, err := s.unchanged(ctx, doc, hash, chunks)
	if err != nil {
		o.err = err
		return o
	}
	if unchanged {
		o.unchanged = true
		return o
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}
	vectors, err := s.batches.embed(ctx, texts)
	if err != nil {
		if domain.IsRetryableEmbedding(err) {
			logger.Warn("Skipping %s after embedding retries: %v", doc.ID, err)
			o.failed = true
			o.warnings = append(o.warnings, domain.Warning{
				Kind:       domain.WarningEmbeddingFailed,
				DocumentID: doc.ID,
				Message:    err.Error(),
			})
			return o
		}
		o.err = fmt.Errorf("embed: %w", err)
		return o
	}

	entries := make([]domain.IndexEntry, len(chunks))
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		entries[i] = domain.NewIndexEntry(&chunks[i], doc.ModifiedAt)
	}

	stored := *doc
	stored.ContentHash = hash
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	if err := s.index.ReplaceDocument(ctx, doc.ID, entries); err != nil {
		o.err = fmt.Errorf("publish to index: %w", err)
		return o
	}
	if err := s.docStore.ReplaceDocument(ctx, &stored, chunks); err != nil {
		o.err = fmt.Errorf("store: %w", err)
		return o
	}

	o.indexed = true
	o.chunks = len(chunks)
	return o
}

// unchanged reports whether the stored copy of doc already has the same
// content, title and chunk ids, and the index still holds those chunks.
func (s *IngestService) unchanged(ctx context.Context, doc *domain.Document, hash string, chunks []domain.Chunk) (bool, error) {
	prev, err := s.docStore.GetDocument(ctx, doc.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load stored document: %w", err)
	}
	if prev.ContentHash != hash || prev.Title != doc.Title || prev.Section != doc.Section || prev.URI != doc.URI {
		return false, nil
	}

	stored, err := s.docStore.GetChunks(ctx, doc.ID)
	if err != nil {
		return false, fmt.Errorf("load stored chunks: %w", err)
	}
	ids := chunkIDs(chunks)
	if !slices.Equal(chunkIDs(stored), ids) {
		return false, nil
	}
	present, err := s.index.Has(ctx, ids)
	if err != nil {
		return false, fmt.Errorf("check index: %w", err)
	}
	return present, nil
}

// checkCompatible rejects an embedder whose model or dimension differs
// from a non-empty index.
func checkCompatible(ctx context.Context, index driven.VectorIndex, embedder driven.Embedder) error {
	info, err := index.Info(ctx)
	if err != nil {
		return fmt.Errorf("index info: %w", err)
	}
	if info.ModelVersion != "" && info.ModelVersion != embedder.ModelName() {
		return fmt.Errorf("%w: index built with %q, embedder is %q",
			domain.ErrModelVersionMismatch, info.ModelVersion, embedder.ModelName())
	}
	if info.Dimension != 0 && info.Dimension != embedder.Dimensions() {
		return fmt.Errorf("%w: index has %d dimensions, embedder produces %d",
			domain.ErrDimensionMismatch, info.Dimension, embedder.Dimensions())
	}
	return nil
}

// lastByID keeps the last occurrence of every document id, preserving
// first-seen order.
func lastByID(docs []domain.Document) []domain.Document {
	pos := make(map[string]int, len(docs))
	out := make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if i, ok := pos[d.ID]; ok {
			logger.Warn("Document %s supplied more than once, keeping the last copy", d.ID)
			out[i] = d
			continue
		}
		pos[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func chunkIDs(chunks []domain.Chunk) []string {
	ids := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunks[i].ID
	}
	return ids
}
