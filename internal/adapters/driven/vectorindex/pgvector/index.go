// Package pgvector provides a VectorIndex backed by Postgres and the
// pgvector extension. Build and ReplaceDocument run in one transaction, so
// concurrent searches see either the old or the new rows.
package pgvector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
	"github.com/custodia-labs/handbook-rag/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// DefaultTable is the entries table name.
const DefaultTable = "handbook_vectors"

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Config holds configuration for the Postgres index.
type Config struct {
	// DSN is the lib/pq connection string.
	DSN string

	// Table is the entries table. A <table>_meta table stores the model tag.
	Table string

	// Dimension is the vector column size. Required.
	Dimension int

	// ModelVersion tags a freshly created index.
	ModelVersion string
}

// Index stores entries in a pgvector column and searches with the cosine
// distance operator.
type Index struct {
	db        *sql.DB
	table     string
	meta      string
	dimension int
	closed    atomic.Bool
}

// New connects, creates the extension and tables when missing and verifies
// the stored dimension.
func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", domain.ErrInvalidInput)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", domain.ErrInvalidInput)
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("%w: invalid table name %q", domain.ErrInvalidInput, cfg.Table)
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	idx := &Index{db: db, table: cfg.Table, meta: cfg.Table + "_meta", dimension: cfg.Dimension}
	if err := idx.migrate(ctx, cfg.ModelVersion); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Debug("pgvector index ready: table=%s dim=%d", idx.table, idx.dimension)
	return idx, nil
}

func (idx *Index) migrate(ctx context.Context, modelVersion string) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			model_version TEXT NOT NULL,
			dimension INTEGER NOT NULL
		)`, idx.meta),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			chunk_id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			ordinal INTEGER NOT NULL,
			length INTEGER NOT NULL,
			section TEXT NOT NULL DEFAULT '',
			modified_at TIMESTAMPTZ,
			embedding vector(%d) NOT NULL
		)`, idx.table, idx.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_document_idx ON %s (document_id)`, idx.table, idx.table),
		fmt.Sprintf(`INSERT INTO %s (id, model_version, dimension) VALUES (1, $1, $2) ON CONFLICT (id) DO NOTHING`, idx.meta),
	}
	for i, stmt := range stmts {
		var err error
		if i == len(stmts)-1 {
			_, err = idx.db.ExecContext(ctx, stmt, modelVersion, idx.dimension)
		} else {
			_, err = idx.db.ExecContext(ctx, stmt)
		}
		if err != nil {
			return fmt.Errorf("migrate pgvector index: %w", err)
		}
	}

	var stored int
	if err := idx.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT dimension FROM %s WHERE id = 1`, idx.meta)).Scan(&stored); err != nil {
		return fmt.Errorf("read index meta: %w", err)
	}
	if stored != idx.dimension {
		return fmt.Errorf("%w: stored index has %d dimensions, configured %d",
			domain.ErrDimensionMismatch, stored, idx.dimension)
	}
	return nil
}

// Build replaces the whole index in one transaction.
func (idx *Index) Build(ctx context.Context, modelVersion string, entries []domain.IndexEntry) error {
	if err := idx.check(ctx); err != nil {
		return err
	}
	for i := range entries {
		if err := idx.validate(&entries[i]); err != nil {
			return err
		}
	}

	return idx.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, idx.table)); err != nil {
			return fmt.Errorf("clear entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET model_version = $1 WHERE id = 1`, idx.meta), modelVersion); err != nil {
			return fmt.Errorf("update model version: %w", err)
		}
		return idx.insert(ctx, tx, entries)
	})
}

// Upsert inserts or replaces a single entry.
func (idx *Index) Upsert(ctx context.Context, e domain.IndexEntry) error {
	if err := idx.check(ctx); err != nil {
		return err
	}
	if err := idx.validate(&e); err != nil {
		return err
	}
	return idx.inTx(ctx, func(tx *sql.Tx) error {
		return idx.insert(ctx, tx, []domain.IndexEntry{e})
	})
}

// ReplaceDocument swaps every entry of documentID in one transaction.
func (idx *Index) ReplaceDocument(ctx context.Context, documentID string, entries []domain.IndexEntry) error {
	if err := idx.check(ctx); err != nil {
		return err
	}
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	for i := range entries {
		if entries[i].Metadata.DocumentID != documentID {
			return fmt.Errorf("%w: entry %s belongs to %q, not %q",
				domain.ErrInvalidInput, entries[i].ChunkID, entries[i].Metadata.DocumentID, documentID)
		}
		if err := idx.validate(&entries[i]); err != nil {
			return err
		}
	}

	return idx.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, idx.table), documentID); err != nil {
			return fmt.Errorf("delete document entries: %w", err)
		}
		return idx.insert(ctx, tx, entries)
	})
}

// Delete removes one entry.
func (idx *Index) Delete(ctx context.Context, chunkID string) error {
	if err := idx.check(ctx); err != nil {
		return err
	}
	if _, err := idx.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE chunk_id = $1`, idx.table), chunkID); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Search ranks entries by cosine similarity, ties by chunk id.
func (idx *Index) Search(ctx context.Context, query []float32, k int, filter *domain.Filter) ([]driven.VectorHit, error) {
	if err := idx.check(ctx); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []driven.VectorHit{}, nil
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, len(query), idx.dimension)
	}

	var docIDs, sections any
	if filter != nil && len(filter.DocumentIDs) > 0 {
		docIDs = pq.Array(filter.DocumentIDs)
	}
	if filter != nil && len(filter.Sections) > 0 {
		sections = pq.Array(filter.Sections)
	}

	q := fmt.Sprintf(`
		SELECT chunk_id, document_id, ordinal, length, section, modified_at,
		       COALESCE(1 - (embedding <=> $1), 0) AS similarity
		FROM %s
		WHERE ($2::text[] IS NULL OR document_id = ANY($2::text[]))
		  AND ($3::text[] IS NULL OR section = ANY($3::text[]))
		ORDER BY similarity DESC, chunk_id ASC
		LIMIT $4`, idx.table)

	rows, err := idx.db.QueryContext(ctx, q, pgvector.NewVector(query), docIDs, sections, k)
	if err != nil {
		return nil, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()

	hits := make([]driven.VectorHit, 0, k)
	for rows.Next() {
		var (
			hit        driven.VectorHit
			modifiedAt sql.NullTime
		)
		if err := rows.Scan(&hit.ChunkID, &hit.Metadata.DocumentID, &hit.Metadata.Ordinal,
			&hit.Metadata.Length, &hit.Metadata.Section, &modifiedAt, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		if modifiedAt.Valid {
			hit.Metadata.ModifiedAt = modifiedAt.Time
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// Has reports whether every chunk id is present.
func (idx *Index) Has(ctx context.Context, chunkIDs []string) (bool, error) {
	if err := idx.check(ctx); err != nil {
		return false, err
	}
	if len(chunkIDs) == 0 {
		return true, nil
	}

	want := make(map[string]struct{}, len(chunkIDs))
	for _, id := range chunkIDs {
		want[id] = struct{}{}
	}
	var n int
	err := idx.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE chunk_id = ANY($1)`, idx.table),
		pq.Array(chunkIDs)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count entries: %w", err)
	}
	return n == len(want), nil
}

// Info reports the model version, dimension and size.
func (idx *Index) Info(ctx context.Context) (domain.IndexInfo, error) {
	if err := idx.check(ctx); err != nil {
		return domain.IndexInfo{}, err
	}

	info := domain.IndexInfo{Dimension: idx.dimension}
	if err := idx.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT model_version FROM %s WHERE id = 1`, idx.meta)).
		Scan(&info.ModelVersion); err != nil {
		return domain.IndexInfo{}, fmt.Errorf("read index meta: %w", err)
	}
	if err := idx.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, idx.table)).Scan(&info.Size); err != nil {
		return domain.IndexInfo{}, fmt.Errorf("count entries: %w", err)
	}
	return info, nil
}

// Snapshot reads every entry ordered by chunk id.
func (idx *Index) Snapshot(ctx context.Context) (*domain.IndexSnapshot, error) {
	info, err := idx.Info(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := idx.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT chunk_id, document_id, ordinal, length, section, modified_at, embedding
		FROM %s ORDER BY chunk_id`, idx.table))
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	defer rows.Close()

	snap := &domain.IndexSnapshot{
		ModelVersion: info.ModelVersion,
		Dimension:    info.Dimension,
		Entries:      make([]domain.IndexEntry, 0, info.Size),
		SavedAt:      time.Now(),
	}
	for rows.Next() {
		var (
			e          domain.IndexEntry
			modifiedAt sql.NullTime
			vec        pgvector.Vector
		)
		if err := rows.Scan(&e.ChunkID, &e.Metadata.DocumentID, &e.Metadata.Ordinal,
			&e.Metadata.Length, &e.Metadata.Section, &modifiedAt, &vec); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if modifiedAt.Valid {
			e.Metadata.ModifiedAt = modifiedAt.Time
		}
		e.Vector = vec.Slice()
		snap.Entries = append(snap.Entries, e)
	}
	return snap, rows.Err()
}

// Close releases the connection pool.
func (idx *Index) Close() error {
	if idx.closed.Swap(true) {
		return nil
	}
	return idx.db.Close()
}

func (idx *Index) check(ctx context.Context) error {
	if idx.closed.Load() {
		return domain.ErrIndexClosed
	}
	return ctx.Err()
}

func (idx *Index) validate(e *domain.IndexEntry) error {
	if e.ChunkID == "" {
		return fmt.Errorf("%w: chunk id is required", domain.ErrInvalidInput)
	}
	if len(e.Vector) != idx.dimension {
		return fmt.Errorf("%w: chunk %s has %d dimensions, index has %d",
			domain.ErrDimensionMismatch, e.ChunkID, len(e.Vector), idx.dimension)
	}
	return nil
}

func (idx *Index) insert(ctx context.Context, tx *sql.Tx, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (chunk_id, document_id, ordinal, length, section, modified_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			ordinal = EXCLUDED.ordinal,
			length = EXCLUDED.length,
			section = EXCLUDED.section,
			modified_at = EXCLUDED.modified_at,
			embedding = EXCLUDED.embedding`, idx.table))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		var modifiedAt any
		if !e.Metadata.ModifiedAt.IsZero() {
			modifiedAt = e.Metadata.ModifiedAt
		}
		if _, err := stmt.ExecContext(ctx, e.ChunkID, e.Metadata.DocumentID, e.Metadata.Ordinal,
			e.Metadata.Length, e.Metadata.Section, modifiedAt, pgvector.NewVector(normalise(e.Vector))); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ChunkID, err)
		}
	}
	return nil
}

func (idx *Index) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Warn("pgvector rollback failed: %v", rbErr)
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func normalise(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
