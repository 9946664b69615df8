package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"mention-lab/internal/domain"
	"mention-lab/internal/storage"
)

// MentionStore is an in-memory implementation of storage.MentionStore.
// Post times for MentionRef come from the given PostStore.
type MentionStore struct {
	mu       sync.RWMutex
	mentions map[domain.MentionKey]*domain.Mention
	posts    storage.PostStore
}

// NewMentionStore creates a new in-memory mention store.
func NewMentionStore(posts storage.PostStore) *MentionStore {
	return &MentionStore{
		mentions: make(map[domain.MentionKey]*domain.Mention),
		posts:    posts,
	}
}

// ExistingTokenKeys returns the stored token_key for each key that exists.
func (s *MentionStore) ExistingTokenKeys(_ context.Context, keys []domain.MentionKey) (map[domain.MentionKey]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.MentionKey]string, len(keys))
	for _, k := range keys {
		if m, ok := s.mentions[k]; ok {
			out[k] = m.TokenKey
		}
	}
	return out, nil
}

// Upsert inserts mentions or updates them in place.
func (s *MentionStore) Upsert(_ context.Context, mentions []*domain.Mention) error {
	for _, m := range mentions {
		if m == nil || m.PostID == "" || m.TriggerKey == "" || m.TokenKey == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	for _, m := range mentions {
		key := domain.MentionKey{PostID: m.PostID, TriggerKey: m.TriggerKey}
		existing, ok := s.mentions[key]
		if !ok {
			row := *m
			row.PriceAtMention, row.PricePool = nil, nil
			row.MaxPriceSinceMention, row.MaxPriceAt = nil, nil
			row.CreatedAt, row.UpdatedAt = now, now
			s.mentions[key] = &row
			continue
		}

		if existing.TokenKey != m.TokenKey {
			existing.PriceAtMention, existing.PricePool = nil, nil
			existing.MaxPriceSinceMention, existing.MaxPriceAt = nil, nil
		}
		existing.TokenKey = m.TokenKey
		existing.TokenDisplay = m.TokenDisplay
		existing.Confidence = m.Confidence
		existing.SourceKind = m.SourceKind
		existing.TriggerText = m.TriggerText
		existing.UpdatedAt = now
	}
	return nil
}

// GetByPost retrieves all mentions of a post ordered by trigger_key.
func (s *MentionStore) GetByPost(_ context.Context, postID string) ([]*domain.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Mention
	for k, m := range s.mentions {
		if k.PostID == postID {
			result = append(result, copyMention(m))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].TriggerKey < result[j].TriggerKey
	})
	return result, nil
}

// SetPriceIfNull fills the price of unpriced rows for (postID, tokenKey).
func (s *MentionStore) SetPriceIfNull(_ context.Context, postID, tokenKey string, price float64, pool string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := false
	now := time.Now().UnixMilli()
	for k, m := range s.mentions {
		if k.PostID != postID || m.TokenKey != tokenKey || m.PriceAtMention != nil {
			continue
		}
		p, pl := price, pool
		m.PriceAtMention = &p
		m.PricePool = &pl
		m.UpdatedAt = now
		updated = true
	}
	return updated, nil
}

// SetMaxSince writes the peak pair for (postID, tokenKey).
func (s *MentionStore) SetMaxSince(_ context.Context, postID, tokenKey string, maxPrice *float64, maxAt *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	for k, m := range s.mentions {
		if k.PostID != postID || m.TokenKey != tokenKey {
			continue
		}
		m.MaxPriceSinceMention = copyFloat(maxPrice)
		m.MaxPriceAt = copyInt64(maxAt)
		m.UpdatedAt = now
	}
	return nil
}

// ListPricePending returns refs with at least one unpriced row.
func (s *MentionStore) ListPricePending(ctx context.Context, limit int) ([]domain.MentionRef, error) {
	refs, err := s.refs(ctx, func(m *domain.Mention) bool { return m.PriceAtMention == nil }, true)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

// ListTokenMentions returns every ref whose post exists.
func (s *MentionStore) ListTokenMentions(ctx context.Context) ([]domain.MentionRef, error) {
	return s.refs(ctx, func(*domain.Mention) bool { return true }, false)
}

func (s *MentionStore) refs(ctx context.Context, keep func(*domain.Mention) bool, includeOrphans bool) ([]domain.MentionRef, error) {
	type pair struct{ post, token string }

	s.mu.RLock()
	seen := make(map[pair]bool)
	for _, m := range s.mentions {
		if keep(m) {
			seen[pair{m.PostID, m.TokenKey}] = true
		}
	}
	s.mu.RUnlock()

	refs := make([]domain.MentionRef, 0, len(seen))
	for p := range seen {
		ref := domain.MentionRef{PostID: p.post, TokenKey: p.token}
		post, err := s.posts.GetByID(ctx, p.post)
		switch {
		case err == nil:
			ref.MentionedAt = post.CreatedAtSeconds()
		case errors.Is(err, storage.ErrNotFound):
			if !includeOrphans {
				continue
			}
		default:
			return nil, err
		}
		refs = append(refs, ref)
	}

	sort.Slice(refs, func(i, j int) bool {
		if refs[i].MentionedAt != refs[j].MentionedAt {
			return refs[i].MentionedAt < refs[j].MentionedAt
		}
		if refs[i].PostID != refs[j].PostID {
			return refs[i].PostID < refs[j].PostID
		}
		return refs[i].TokenKey < refs[j].TokenKey
	})
	return refs, nil
}

func copyMention(m *domain.Mention) *domain.Mention {
	c := *m
	c.PriceAtMention = copyFloat(m.PriceAtMention)
	c.MaxPriceSinceMention = copyFloat(m.MaxPriceSinceMention)
	c.MaxPriceAt = copyInt64(m.MaxPriceAt)
	if m.PricePool != nil {
		p := *m.PricePool
		c.PricePool = &p
	}
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

var _ storage.MentionStore = (*MentionStore)(nil)
