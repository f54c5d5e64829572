package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/handbook-rag/internal/adapters/driven/storage/codec"
	"github.com/custodia-labs/handbook-rag/internal/core/domain"
	"github.com/custodia-labs/handbook-rag/internal/core/ports/driven"
)

// indexStore implements driven.IndexStore.
type indexStore struct {
	store *Store
}

var _ driven.IndexStore = (*indexStore)(nil)

// SaveSnapshot replaces the stored snapshot in one transaction.
func (s *indexStore) SaveSnapshot(ctx context.Context, snapshot *domain.IndexSnapshot) error {
	if snapshot == nil {
		return fmt.Errorf("%w: snapshot is nil", domain.ErrInvalidInput)
	}

	savedAt := snapshot.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	return s.store.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM index_entries"); err != nil {
			return fmt.Errorf("clearing index entries: %w", err)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO index_meta (id, model_version, dimension, saved_at)
			VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				model_version = excluded.model_version,
				dimension = excluded.dimension,
				saved_at = excluded.saved_at
		`, snapshot.ModelVersion, snapshot.Dimension, savedAt.UTC())
		if err != nil {
			return fmt.Errorf("saving index meta: %w", err)
		}

		if len(snapshot.Entries) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO index_entries (chunk_id, document_id, ordinal, length, section, modified_at, vector)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing statement: %w", err)
		}
		defer stmt.Close()

		for i := range snapshot.Entries {
			e := &snapshot.Entries[i]
			if len(e.Vector) != snapshot.Dimension {
				return fmt.Errorf("%w: entry %s has %d dimensions, snapshot has %d",
					domain.ErrDimensionMismatch, e.ChunkID, len(e.Vector), snapshot.Dimension)
			}
			if _, err := stmt.ExecContext(ctx, e.ChunkID, e.Metadata.DocumentID, e.Metadata.Ordinal,
				e.Metadata.Length, e.Metadata.Section, nullTime(e.Metadata.ModifiedAt),
				codec.EncodeVector(e.Vector)); err != nil {
				return fmt.Errorf("saving index entry: %w", err)
			}
		}
		return nil
	})
}

// LoadSnapshot returns the stored snapshot with entries ordered by chunk id.
func (s *indexStore) LoadSnapshot(ctx context.Context) (*domain.IndexSnapshot, error) {
	var snap domain.IndexSnapshot
	err := s.store.db.QueryRowContext(ctx,
		"SELECT model_version, dimension, saved_at FROM index_meta WHERE id = 1").
		Scan(&snap.ModelVersion, &snap.Dimension, &snap.SavedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading index meta: %w", err)
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, ordinal, length, section, modified_at, vector
		FROM index_entries ORDER BY chunk_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying index entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.IndexEntry
		var modifiedAt sql.NullTime
		var blob []byte
		if err := rows.Scan(&e.ChunkID, &e.Metadata.DocumentID, &e.Metadata.Ordinal,
			&e.Metadata.Length, &e.Metadata.Section, &modifiedAt, &blob); err != nil {
			return nil, fmt.Errorf("scanning index entry: %w", err)
		}
		if modifiedAt.Valid {
			e.Metadata.ModifiedAt = modifiedAt.Time
		}
		if e.Vector, err = codec.DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("decoding index entry %s: %w", e.ChunkID, err)
		}
		snap.Entries = append(snap.Entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating index entries: %w", err)
	}
	return &snap, nil
}

// ClearSnapshot removes the stored snapshot.
func (s *indexStore) ClearSnapshot(ctx context.Context) error {
	return s.store.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM index_entries"); err != nil {
			return fmt.Errorf("clearing index entries: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM index_meta"); err != nil {
			return fmt.Errorf("clearing index meta: %w", err)
		}
		return nil
	})
}
