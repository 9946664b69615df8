package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mention-lab/internal/domain"
	"mention-lab/internal/storage"
)

// UnresolvedIssueStore implements storage.UnresolvedIssueStore using PostgreSQL.
type UnresolvedIssueStore struct {
	pool *Pool
}

// NewUnresolvedIssueStore creates a new UnresolvedIssueStore.
func NewUnresolvedIssueStore(pool *Pool) *UnresolvedIssueStore {
	return &UnresolvedIssueStore{pool: pool}
}

// Compile-time interface check.
var _ storage.UnresolvedIssueStore = (*UnresolvedIssueStore)(nil)

// Record creates the issue or increments its seen_count.
func (s *UnresolvedIssueStore) Record(ctx context.Context, kind domain.IssueKind, normalizedValue, samplePostID string, seenAt int64) error {
	if kind == "" || normalizedValue == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO unresolved_issues (kind, normalized_value, seen_count, sample_post_id, first_seen_at, last_seen_at)
		VALUES ($1, $2, 1, $3, $4, $4)
		ON CONFLICT (kind, normalized_value) DO UPDATE SET
			seen_count = unresolved_issues.seen_count + 1,
			sample_post_id = EXCLUDED.sample_post_id,
			last_seen_at = GREATEST(unresolved_issues.last_seen_at, EXCLUDED.last_seen_at)
	`

	if _, err := s.pool.Exec(ctx, query, string(kind), normalizedValue, samplePostID, seenAt); err != nil {
		return fmt.Errorf("record unresolved issue: %w", err)
	}
	return nil
}

// Get retrieves one issue. Returns ErrNotFound if not exists.
func (s *UnresolvedIssueStore) Get(ctx context.Context, kind domain.IssueKind, normalizedValue string) (*domain.UnresolvedIssue, error) {
	query := `
		SELECT kind, normalized_value, seen_count, sample_post_id, first_seen_at, last_seen_at
		FROM unresolved_issues
		WHERE kind = $1 AND normalized_value = $2
	`

	issue, err := scanIssue(s.pool.QueryRow(ctx, query, string(kind), normalizedValue))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get unresolved issue: %w", err)
	}
	return issue, nil
}

// ListTop returns issues of a kind ordered by seen_count DESC.
func (s *UnresolvedIssueStore) ListTop(ctx context.Context, kind domain.IssueKind, limit int) ([]*domain.UnresolvedIssue, error) {
	query := `
		SELECT kind, normalized_value, seen_count, sample_post_id, first_seen_at, last_seen_at
		FROM unresolved_issues
		WHERE kind = $1
		ORDER BY seen_count DESC, normalized_value ASC
		LIMIT NULLIF($2, 0)
	`

	if limit < 0 {
		limit = 0
	}
	rows, err := s.pool.Query(ctx, query, string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list unresolved issues: %w", err)
	}
	defer rows.Close()

	var result []*domain.UnresolvedIssue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unresolved issue: %w", err)
		}
		result = append(result, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unresolved issues: %w", err)
	}
	return result, nil
}

// scanIssue scans a single row into UnresolvedIssue.
func scanIssue(row pgx.Row) (*domain.UnresolvedIssue, error) {
	var issue domain.UnresolvedIssue
	var kind string

	err := row.Scan(
		&kind,
		&issue.NormalizedValue,
		&issue.SeenCount,
		&issue.SamplePostID,
		&issue.FirstSeenAt,
		&issue.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}

	issue.Kind = domain.IssueKind(kind)
	return &issue, nil
}
