package memory

import (
	"context"
	"sync"
	"time"

	"mention-lab/internal/domain"
	"mention-lab/internal/storage"
)

// TokenMetadataStore is an in-memory implementation of storage.TokenMetadataStore.
type TokenMetadataStore struct {
	mu     sync.RWMutex
	byMint map[string]*domain.TokenMetadata
}

// NewTokenMetadataStore creates a new in-memory token metadata store.
func NewTokenMetadataStore() *TokenMetadataStore {
	return &TokenMetadataStore{
		byMint: make(map[string]*domain.TokenMetadata),
	}
}

// Upsert inserts metadata or refreshes name, symbol and fetched_at.
func (s *TokenMetadataStore) Upsert(_ context.Context, m *domain.TokenMetadata) error {
	if m == nil || m.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	metaCopy := *m
	if existing, ok := s.byMint[m.Mint]; ok {
		metaCopy.CreatedAt = existing.CreatedAt
	} else {
		metaCopy.CreatedAt = time.Now().UnixMilli()
	}
	s.byMint[m.Mint] = &metaCopy
	return nil
}

// GetByMint retrieves metadata by mint address. Returns ErrNotFound if not exists.
func (s *TokenMetadataStore) GetByMint(_ context.Context, mint string) (*domain.TokenMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.byMint[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	metaCopy := *m
	return &metaCopy, nil
}

// GetByMints retrieves metadata for the mints that exist.
func (s *TokenMetadataStore) GetByMints(_ context.Context, mints []string) (map[string]*domain.TokenMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*domain.TokenMetadata, len(mints))
	for _, mint := range mints {
		if m, ok := s.byMint[mint]; ok {
			metaCopy := *m
			out[mint] = &metaCopy
		}
	}
	return out, nil
}

var _ storage.TokenMetadataStore = (*TokenMetadataStore)(nil)
