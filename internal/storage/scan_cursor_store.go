package storage

import "context"

// ScanCursor is the newest post already handed to a scheduled scan.
type ScanCursor struct {
	CreatedAt int64  // post time of the last scanned post (ms)
	PostID    string // tie-breaker among posts sharing CreatedAt
}

// ScanCursorStore persists the scheduled scan position so a restart resumes
// without rescanning the whole lookback window.
type ScanCursorStore interface {
	// GetCursor returns the saved cursor. Returns ErrNotFound if none saved yet.
	GetCursor(ctx context.Context) (*ScanCursor, error)

	// SetCursor saves the cursor.
	SetCursor(ctx context.Context, cursor *ScanCursor) error
}
