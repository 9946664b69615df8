package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mention-lab/internal/domain"
	"mention-lab/internal/storage"
)

// PostStore implements storage.PostStore using PostgreSQL.
type PostStore struct {
	pool *Pool
}

// NewPostStore creates a new PostStore.
func NewPostStore(pool *Pool) *PostStore {
	return &PostStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PostStore = (*PostStore)(nil)

// Upsert inserts posts or refreshes text and author of existing ones.
func (s *PostStore) Upsert(ctx context.Context, posts []*domain.Post) error {
	if len(posts) == 0 {
		return nil
	}

	query := `
		INSERT INTO posts (post_id, author_handle, text, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (post_id) DO UPDATE SET
			author_handle = EXCLUDED.author_handle,
			text = EXCLUDED.text,
			created_at = EXCLUDED.created_at
	`

	batch := &pgx.Batch{}
	for _, p := range posts {
		if p == nil || p.PostID == "" {
			return storage.ErrInvalidInput
		}
		batch.Queue(query, p.PostID, p.AuthorHandle, p.Text, p.CreatedAt)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert posts: %w", err)
	}
	return nil
}

// GetByID retrieves a post. Returns ErrNotFound if not exists.
func (s *PostStore) GetByID(ctx context.Context, postID string) (*domain.Post, error) {
	query := `
		SELECT post_id, author_handle, text, created_at, ingested_at
		FROM posts
		WHERE post_id = $1
	`

	p, err := scanPost(s.pool.QueryRow(ctx, query, postID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get post by id: %w", err)
	}
	return p, nil
}

// GetByTimeRange retrieves posts created within [start, end] (inclusive).
func (s *PostStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.Post, error) {
	query := `
		SELECT post_id, author_handle, text, created_at, ingested_at
		FROM posts
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at ASC, post_id ASC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get posts by time range: %w", err)
	}
	defer rows.Close()

	var result []*domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return result, nil
}

// scanPost scans a single row into Post.
func scanPost(row pgx.Row) (*domain.Post, error) {
	var p domain.Post
	if err := row.Scan(&p.PostID, &p.AuthorHandle, &p.Text, &p.CreatedAt, &p.IngestedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
