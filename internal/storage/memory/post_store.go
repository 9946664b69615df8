package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"mention-lab/internal/domain"
	"mention-lab/internal/storage"
)

// PostStore is an in-memory implementation of storage.PostStore.
type PostStore struct {
	mu    sync.RWMutex
	posts map[string]*domain.Post
}

// NewPostStore creates a new in-memory post store.
func NewPostStore() *PostStore {
	return &PostStore{
		posts: make(map[string]*domain.Post),
	}
}

// Upsert inserts posts or refreshes text and author of existing ones.
func (s *PostStore) Upsert(_ context.Context, posts []*domain.Post) error {
	for _, p := range posts {
		if p == nil || p.PostID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()
	for _, p := range posts {
		postCopy := *p
		if existing, ok := s.posts[p.PostID]; ok {
			postCopy.IngestedAt = existing.IngestedAt
		} else if postCopy.IngestedAt == 0 {
			postCopy.IngestedAt = now
		}
		s.posts[p.PostID] = &postCopy
	}
	return nil
}

// GetByID retrieves a post. Returns ErrNotFound if not exists.
func (s *PostStore) GetByID(_ context.Context, postID string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[postID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	postCopy := *p
	return &postCopy, nil
}

// GetByTimeRange retrieves posts created within [start, end] (inclusive).
func (s *PostStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Post
	for _, p := range s.posts {
		if p.CreatedAt >= start && p.CreatedAt <= end {
			postCopy := *p
			result = append(result, &postCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].PostID < result[j].PostID
	})
	return result, nil
}

var _ storage.PostStore = (*PostStore)(nil)
