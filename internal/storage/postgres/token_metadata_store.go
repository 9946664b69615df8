package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"mention-lab/internal/domain"
	"mention-lab/internal/storage"
)

// TokenMetadataStore implements storage.TokenMetadataStore using PostgreSQL.
type TokenMetadataStore struct {
	pool *Pool
}

// NewTokenMetadataStore creates a new TokenMetadataStore.
func NewTokenMetadataStore(pool *Pool) *TokenMetadataStore {
	return &TokenMetadataStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenMetadataStore = (*TokenMetadataStore)(nil)

// Upsert inserts metadata or refreshes name, symbol and fetched_at.
func (s *TokenMetadataStore) Upsert(ctx context.Context, m *domain.TokenMetadata) error {
	if m == nil || m.Mint == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO token_metadata (mint, name, symbol, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (mint) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			fetched_at = EXCLUDED.fetched_at
	`

	if _, err := s.pool.Exec(ctx, query, m.Mint, m.Name, m.Symbol, m.FetchedAt); err != nil {
		return fmt.Errorf("upsert token metadata: %w", err)
	}
	return nil
}

// GetByMint retrieves metadata by mint address. Returns ErrNotFound if not exists.
func (s *TokenMetadataStore) GetByMint(ctx context.Context, mint string) (*domain.TokenMetadata, error) {
	query := `
		SELECT mint, name, symbol, fetched_at, created_at
		FROM token_metadata
		WHERE mint = $1
	`

	m, err := scanTokenMetadata(s.pool.QueryRow(ctx, query, mint))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token metadata by mint: %w", err)
	}
	return m, nil
}

// GetByMints retrieves metadata for the mints that exist.
func (s *TokenMetadataStore) GetByMints(ctx context.Context, mints []string) (map[string]*domain.TokenMetadata, error) {
	out := make(map[string]*domain.TokenMetadata, len(mints))
	if len(mints) == 0 {
		return out, nil
	}

	query := `
		SELECT mint, name, symbol, fetched_at, created_at
		FROM token_metadata
		WHERE mint = ANY($1)
	`

	rows, err := s.pool.Query(ctx, query, mints)
	if err != nil {
		return nil, fmt.Errorf("get token metadata by mints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanTokenMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token metadata: %w", err)
		}
		out[m.Mint] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token metadata: %w", err)
	}
	return out, nil
}

// scanTokenMetadata scans a single row into TokenMetadata.
func scanTokenMetadata(row pgx.Row) (*domain.TokenMetadata, error) {
	var m domain.TokenMetadata

	err := row.Scan(
		&m.Mint,
		&m.Name,
		&m.Symbol,
		&m.FetchedAt,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}
