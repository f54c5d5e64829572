package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/storage/codec"
	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

// maxQueryParams bounds the placeholders of a single IN query.
const maxQueryParams = 500

const (
	documentColumns = `id, title, uri, section, content, content_hash, modified_at, metadata, created_at, updated_at`
	chunkColumns    = `id, document_id, ordinal, byte_offset, content, length, heading_path, section, oversized, embedding, metadata`
)

const upsertDocument = `INSERT INTO documents (` + documentColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	title = excluded.title, uri = excluded.uri, section = excluded.section,
	content = excluded.content, content_hash = excluded.content_hash,
	modified_at = excluded.modified_at, metadata = excluded.metadata,
	updated_at = excluded.updated_at`

type documentStore struct {
	store *Store
}

var _ driven.DocumentStore = (*documentStore)(nil)

// ReplaceDocument upserts doc and swaps its whole chunk set atomically.
// created_at survives the upsert; updated_at moves.
func (s *documentStore) ReplaceDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	for i := range chunks {
		if chunks[i].DocumentID != doc.ID {
			return fmt.Errorf("%w: chunk %s belongs to %q, not %q",
				domain.ErrInvalidInput, chunks[i].ID, chunks[i].DocumentID, doc.ID)
		}
	}

	meta, err := jsonText(doc.Metadata, "{}")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	created, updated := orNow(doc.CreatedAt, now), orNow(doc.UpdatedAt, now)

	return s.store.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertDocument, doc.ID, doc.Title, doc.URI, doc.Section,
			doc.Content, doc.ContentHash, nullTime(doc.ModifiedAt), meta, created, updated); err != nil {
			return fmt.Errorf("saving document: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", doc.ID); err != nil {
			return fmt.Errorf("deleting old chunks: %w", err)
		}
		return insertChunks(ctx, tx, chunks)
	})
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (`+chunkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		c := &chunks[i]
		meta, err := jsonText(c.Metadata, "{}")
		if err != nil {
			return err
		}
		headings, err := jsonText(c.HeadingPath, "[]")
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.DocumentID, c.Ordinal, c.Offset, c.Content, c.Length,
			headings, c.Section, c.Oversized, codec.EncodeVector(c.Embedding), meta); err != nil {
			return fmt.Errorf("saving chunk %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	err := s.eachChunk(ctx, func(c *domain.Chunk) error {
		chunks = append(chunks, *c)
		return nil
	}, `SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY ordinal`, documentID)
	return chunks, err
}

func (s *documentStore) GetChunk(ctx context.Context, id string) (*domain.Chunk, error) {
	row := s.store.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id)
	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return chunk, err
}

// GetChunksByIDs returns the chunks that exist among ids, querying in
// batches of maxQueryParams. Unknown ids are simply absent from the map.
func (s *documentStore) GetChunksByIDs(ctx context.Context, ids []string) (map[string]*domain.Chunk, error) {
	found := make(map[string]*domain.Chunk, len(ids))
	collect := func(c *domain.Chunk) error {
		found[c.ID] = c
		return nil
	}

	for start := 0; start < len(ids); start += maxQueryParams {
		batch := ids[start:min(start+maxQueryParams, len(ids))]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id IN (` +
			strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",") + `)`
		if err := s.eachChunk(ctx, collect, query, args...); err != nil {
			return nil, err
		}
	}
	return found, nil
}

// DeleteDocument removes the document and its chunks, or reports
// domain.ErrNotFound.
func (s *documentStore) DeleteDocument(ctx context.Context, id string) error {
	return s.store.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", id); err != nil {
			return fmt.Errorf("deleting chunks: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("deleting document: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (s *documentStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.store.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// ListChunks streams every chunk ordered by document and ordinal. An error
// from fn stops the scan and is returned as is.
func (s *documentStore) ListChunks(ctx context.Context, fn func(chunk *domain.Chunk) error) error {
	return s.eachChunk(ctx, fn, `SELECT `+chunkColumns+` FROM chunks ORDER BY document_id, ordinal`)
}

func (s *documentStore) eachChunk(ctx context.Context, fn func(*domain.Chunk) error, query string, args ...any) error {
	rows, err := s.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return err
		}
		if err := fn(chunk); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating chunks: %w", err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		doc      domain.Document
		modified sql.NullTime
		meta     string
	)
	err := row.Scan(&doc.ID, &doc.Title, &doc.URI, &doc.Section, &doc.Content, &doc.ContentHash,
		&modified, &meta, &doc.CreatedAt, &doc.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, domain.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	doc.ModifiedAt = modified.Time
	if err := fromJSONText(meta, &doc.Metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}

// scanChunk returns sql.ErrNoRows unwrapped so callers can map it.
func scanChunk(row scanner) (*domain.Chunk, error) {
	var (
		c              domain.Chunk
		vector         []byte
		headings, meta string
	)
	err := row.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Offset, &c.Content,
		&c.Length, &headings, &c.Section, &c.Oversized, &vector, &meta)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	if c.Embedding, err = codec.DecodeVector(vector); err != nil {
		return nil, fmt.Errorf("decoding embedding of chunk %s: %w", c.ID, err)
	}
	if err := fromJSONText(headings, &c.HeadingPath); err != nil {
		return nil, err
	}
	if err := fromJSONText(meta, &c.Metadata); err != nil {
		return nil, err
	}
	return &c, nil
}

// jsonText encodes v for a TEXT column, writing empty for nil or empty
// maps and slices so the column default round-trips.
func jsonText[T any](v T, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding %T: %w", v, err)
	}
	switch string(data) {
	case "null", "{}", "[]":
		return empty, nil
	}
	return string(data), nil
}

// fromJSONText leaves v untouched for empty values so a document stored
// without metadata reads back with a nil map.
func fromJSONText(text string, v any) error {
	switch text {
	case "", "null", "{}", "[]":
		return nil
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("decoding %T: %w", v, err)
	}
	return nil
}

// nullTime stores the zero time as NULL.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func orNow(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}
