package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mention-lab/internal/storage"
)

// ScanCursorStore is a PostgreSQL implementation of storage.ScanCursorStore
// backed by the single-row scan_cursor table.
type ScanCursorStore struct {
	pool *Pool
}

// NewScanCursorStore creates a new PostgreSQL scan cursor store.
func NewScanCursorStore(pool *Pool) *ScanCursorStore {
	return &ScanCursorStore{pool: pool}
}

var _ storage.ScanCursorStore = (*ScanCursorStore)(nil)

// GetCursor returns the saved cursor.
func (s *ScanCursorStore) GetCursor(ctx context.Context) (*storage.ScanCursor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT created_at, post_id
		FROM scan_cursor
		WHERE id = 1
	`)

	var cursor storage.ScanCursor
	if err := row.Scan(&cursor.CreatedAt, &cursor.PostID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get scan cursor: %w", err)
	}
	return &cursor, nil
}

// SetCursor saves the cursor.
func (s *ScanCursorStore) SetCursor(ctx context.Context, cursor *storage.ScanCursor) error {
	if cursor == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_cursor (id, created_at, post_id, updated_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE
		SET created_at = EXCLUDED.created_at,
		    post_id = EXCLUDED.post_id,
		    updated_at = NOW()
	`, cursor.CreatedAt, cursor.PostID)
	if err != nil {
		return fmt.Errorf("set scan cursor: %w", err)
	}
	return nil
}
