package memory

import (
	"context"
	"sync"

	"mention-lab/internal/storage"
)

// ScanCursorStore is an in-memory implementation of storage.ScanCursorStore.
type ScanCursorStore struct {
	mu     sync.RWMutex
	cursor *storage.ScanCursor
}

// NewScanCursorStore creates a new in-memory scan cursor store.
func NewScanCursorStore() *ScanCursorStore {
	return &ScanCursorStore{}
}

// GetCursor returns the saved cursor.
func (s *ScanCursorStore) GetCursor(_ context.Context) (*storage.ScanCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cursor == nil {
		return nil, storage.ErrNotFound
	}
	c := *s.cursor
	return &c, nil
}

// SetCursor saves the cursor.
func (s *ScanCursorStore) SetCursor(_ context.Context, cursor *storage.ScanCursor) error {
	if cursor == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *cursor
	s.cursor = &c
	return nil
}

var _ storage.ScanCursorStore = (*ScanCursorStore)(nil)
