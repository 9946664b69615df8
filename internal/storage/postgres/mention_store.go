package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"mention-lab/internal/domain"
	"mention-lab/internal/storage"
)

// MentionStore implements storage.MentionStore using PostgreSQL.
type MentionStore struct {
	pool *Pool
}

// NewMentionStore creates a new MentionStore.
func NewMentionStore(pool *Pool) *MentionStore {
	return &MentionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.MentionStore = (*MentionStore)(nil)

const mentionColumns = `
	post_id, trigger_key, token_key, token_display, confidence, source_kind, trigger_text,
	price_at_mention, price_pool, max_price_since_mention, max_price_at, created_at, updated_at
`

// ExistingTokenKeys returns the stored token_key for each key that exists.
func (s *MentionStore) ExistingTokenKeys(ctx context.Context, keys []domain.MentionKey) (map[domain.MentionKey]string, error) {
	out := make(map[domain.MentionKey]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	postIDs := make([]string, len(keys))
	triggers := make([]string, len(keys))
	for i, k := range keys {
		postIDs[i] = k.PostID
		triggers[i] = k.TriggerKey
	}

	query := `
		SELECT m.post_id, m.trigger_key, m.token_key
		FROM mentions m
		JOIN unnest($1::text[], $2::text[]) AS k(post_id, trigger_key)
			ON m.post_id = k.post_id AND m.trigger_key = k.trigger_key
	`

	rows, err := s.pool.Query(ctx, query, postIDs, triggers)
	if err != nil {
		return nil, fmt.Errorf("get existing token keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k domain.MentionKey
		var token string
		if err := rows.Scan(&k.PostID, &k.TriggerKey, &token); err != nil {
			return nil, fmt.Errorf("scan existing token key: %w", err)
		}
		out[k] = token
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing token keys: %w", err)
	}
	return out, nil
}

// Upsert inserts mentions or updates them in place in one transaction.
// A changed token_key clears the row's price fields.
func (s *MentionStore) Upsert(ctx context.Context, mentions []*domain.Mention) error {
	if len(mentions) == 0 {
		return nil
	}

	query := `
		INSERT INTO mentions (
			post_id, trigger_key, token_key, token_display, confidence, source_kind, trigger_text,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (post_id, trigger_key) DO UPDATE SET
			token_key = EXCLUDED.token_key,
			token_display = EXCLUDED.token_display,
			confidence = EXCLUDED.confidence,
			source_kind = EXCLUDED.source_kind,
			trigger_text = EXCLUDED.trigger_text,
			price_at_mention = CASE WHEN mentions.token_key = EXCLUDED.token_key THEN mentions.price_at_mention END,
			price_pool = CASE WHEN mentions.token_key = EXCLUDED.token_key THEN mentions.price_pool END,
			max_price_since_mention = CASE WHEN mentions.token_key = EXCLUDED.token_key THEN mentions.max_price_since_mention END,
			max_price_at = CASE WHEN mentions.token_key = EXCLUDED.token_key THEN mentions.max_price_at END,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UnixMilli()
	batch := &pgx.Batch{}
	for _, m := range mentions {
		if m == nil || m.PostID == "" || m.TriggerKey == "" || m.TokenKey == "" {
			return storage.ErrInvalidInput
		}
		batch.Queue(query,
			m.PostID,
			m.TriggerKey,
			m.TokenKey,
			m.TokenDisplay,
			m.Confidence,
			string(m.SourceKind),
			m.TriggerText,
			now,
		)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert mentions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByPost retrieves all mentions of a post ordered by trigger_key.
func (s *MentionStore) GetByPost(ctx context.Context, postID string) ([]*domain.Mention, error) {
	query := `SELECT ` + mentionColumns + `
		FROM mentions
		WHERE post_id = $1
		ORDER BY trigger_key ASC
	`

	rows, err := s.pool.Query(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("get mentions by post: %w", err)
	}
	defer rows.Close()

	var result []*domain.Mention
	for rows.Next() {
		m, err := scanMention(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mention: %w", err)
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mentions: %w", err)
	}
	return result, nil
}

// SetPriceIfNull fills the price of unpriced rows for (postID, tokenKey).
func (s *MentionStore) SetPriceIfNull(ctx context.Context, postID, tokenKey string, price float64, pool string) (bool, error) {
	query := `
		UPDATE mentions
		SET price_at_mention = $3, price_pool = $4, updated_at = $5
		WHERE post_id = $1 AND token_key = $2 AND price_at_mention IS NULL
	`

	tag, err := s.pool.Exec(ctx, query, postID, tokenKey, price, pool, time.Now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("set price if null: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetMaxSince writes the peak pair for (postID, tokenKey).
func (s *MentionStore) SetMaxSince(ctx context.Context, postID, tokenKey string, maxPrice *float64, maxAt *int64) error {
	query := `
		UPDATE mentions
		SET max_price_since_mention = $3, max_price_at = $4, updated_at = $5
		WHERE post_id = $1 AND token_key = $2
	`

	if _, err := s.pool.Exec(ctx, query, postID, tokenKey, maxPrice, maxAt, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("set max since: %w", err)
	}
	return nil
}

// ListPricePending returns refs with at least one unpriced row, oldest first.
// A non-positive limit returns all.
func (s *MentionStore) ListPricePending(ctx context.Context, limit int) ([]domain.MentionRef, error) {
	query := `
		SELECT m.post_id, m.token_key, COALESCE(MIN(p.created_at), 0) / 1000 AS mentioned_at
		FROM mentions m
		LEFT JOIN posts p ON p.post_id = m.post_id
		WHERE m.price_at_mention IS NULL
		GROUP BY m.post_id, m.token_key
		ORDER BY mentioned_at ASC, m.post_id ASC, m.token_key ASC
		LIMIT NULLIF($1, 0)
	`

	if limit < 0 {
		limit = 0
	}
	return s.queryRefs(ctx, "list price pending", query, limit)
}

// ListTokenMentions returns every distinct ref whose post exists.
func (s *MentionStore) ListTokenMentions(ctx context.Context) ([]domain.MentionRef, error) {
	query := `
		SELECT DISTINCT m.post_id, m.token_key, p.created_at / 1000 AS mentioned_at
		FROM mentions m
		JOIN posts p ON p.post_id = m.post_id
		ORDER BY mentioned_at ASC, m.post_id ASC, m.token_key ASC
	`

	return s.queryRefs(ctx, "list token mentions", query)
}

func (s *MentionStore) queryRefs(ctx context.Context, op, query string, args ...interface{}) ([]domain.MentionRef, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var refs []domain.MentionRef
	for rows.Next() {
		var r domain.MentionRef
		if err := rows.Scan(&r.PostID, &r.TokenKey, &r.MentionedAt); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s iterate: %w", op, err)
	}
	return refs, nil
}

// scanMention scans a single row into Mention.
func scanMention(row pgx.Row) (*domain.Mention, error) {
	var m domain.Mention
	var sourceKind string

	err := row.Scan(
		&m.PostID,
		&m.TriggerKey,
		&m.TokenKey,
		&m.TokenDisplay,
		&m.Confidence,
		&sourceKind,
		&m.TriggerText,
		&m.PriceAtMention,
		&m.PricePool,
		&m.MaxPriceSinceMention,
		&m.MaxPriceAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.SourceKind = domain.SourceKind(sourceKind)
	return &m, nil
}
