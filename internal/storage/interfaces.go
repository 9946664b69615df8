package storage

import (
	"context"

	"mention-lab/internal/domain"
)

// PostStore provides access to posts storage.
type PostStore interface {
	// Upsert inserts posts or refreshes text and author of existing ones.
	Upsert(ctx context.Context, posts []*domain.Post) error

	// GetByID retrieves a post. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, postID string) (*domain.Post, error)

	// GetByTimeRange retrieves posts created within [start, end] ms (inclusive),
	// ordered by created_at ASC, post_id ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Post, error)
}

// MentionStore provides access to mentions storage.
// All writes are keyed upserts on (post_id, trigger_key).
type MentionStore interface {
	// ExistingTokenKeys returns the stored token_key for each key that exists.
	ExistingTokenKeys(ctx context.Context, keys []domain.MentionKey) (map[domain.MentionKey]string, error)

	// Upsert inserts mentions or updates them in place. When token_key changes
	// the price fields of that row are reset to NULL.
	Upsert(ctx context.Context, mentions []*domain.Mention) error

	// GetByPost retrieves all mentions of a post ordered by trigger_key.
	GetByPost(ctx context.Context, postID string) ([]*domain.Mention, error)

	// SetPriceIfNull fills price_at_mention for the post's rows of tokenKey
	// whose price is still NULL. Reports whether any row changed.
	SetPriceIfNull(ctx context.Context, postID, tokenKey string, price float64, pool string) (bool, error)

	// SetMaxSince writes the peak pair for the post's rows of tokenKey.
	// Nil values clear the pair.
	SetMaxSince(ctx context.Context, postID, tokenKey string, maxPrice *float64, maxAt *int64) error

	// ListPricePending returns distinct (post, token) refs with at least one
	// unpriced row, oldest post first. MentionedAt is zero when the post is missing.
	ListPricePending(ctx context.Context, limit int) ([]domain.MentionRef, error)

	// ListTokenMentions returns every distinct (post, token) ref whose post exists.
	ListTokenMentions(ctx context.Context) ([]domain.MentionRef, error)
}

// UnresolvedIssueStore provides access to unresolved_issues storage.
type UnresolvedIssueStore interface {
	// Record creates the issue or increments its seen_count.
	Record(ctx context.Context, kind domain.IssueKind, normalizedValue, samplePostID string, seenAt int64) error

	// Get retrieves one issue. Returns ErrNotFound if not exists.
	Get(ctx context.Context, kind domain.IssueKind, normalizedValue string) (*domain.UnresolvedIssue, error)

	// ListTop returns issues of a kind ordered by seen_count DESC.
	ListTop(ctx context.Context, kind domain.IssueKind, limit int) ([]*domain.UnresolvedIssue, error)
}

// TokenMetadataStore provides access to token_metadata storage.
type TokenMetadataStore interface {
	// Upsert inserts metadata or refreshes name, symbol and fetched_at.
	Upsert(ctx context.Context, m *domain.TokenMetadata) error

	// GetByMint retrieves metadata by mint. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.TokenMetadata, error)

	// GetByMints retrieves metadata for the mints that exist.
	GetByMints(ctx context.Context, mints []string) (map[string]*domain.TokenMetadata, error)
}

// CandleStore caches closed candles per pool and timeframe.
// Re-inserting a candle replaces it.
type CandleStore interface {
	// InsertBulk stores candles.
	InsertBulk(ctx context.Context, candles []domain.PriceCandle) error

	// GetRange retrieves candles within [start, end] unix seconds (inclusive),
	// ordered by timestamp ASC.
	GetRange(ctx context.Context, pool string, tf domain.Timeframe, start, end int64) ([]domain.PriceCandle, error)
}
