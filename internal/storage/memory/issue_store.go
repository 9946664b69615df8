package memory

import (
	"context"
	"sort"
	"sync"

	"mention-lab/internal/domain"
	"mention-lab/internal/storage"
)

type issueKey struct {
	kind  domain.IssueKind
	value string
}

// UnresolvedIssueStore is an in-memory implementation of storage.UnresolvedIssueStore.
type UnresolvedIssueStore struct {
	mu     sync.RWMutex
	issues map[issueKey]*domain.UnresolvedIssue
}

// NewUnresolvedIssueStore creates a new in-memory issue store.
func NewUnresolvedIssueStore() *UnresolvedIssueStore {
	return &UnresolvedIssueStore{
		issues: make(map[issueKey]*domain.UnresolvedIssue),
	}
}

// Record creates the issue or increments its seen_count.
func (s *UnresolvedIssueStore) Record(_ context.Context, kind domain.IssueKind, normalizedValue, samplePostID string, seenAt int64) error {
	if kind == "" || normalizedValue == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := issueKey{kind, normalizedValue}
	if issue, ok := s.issues[key]; ok {
		issue.SeenCount++
		issue.SamplePostID = samplePostID
		if seenAt > issue.LastSeenAt {
			issue.LastSeenAt = seenAt
		}
		return nil
	}

	s.issues[key] = &domain.UnresolvedIssue{
		Kind:            kind,
		NormalizedValue: normalizedValue,
		SeenCount:       1,
		SamplePostID:    samplePostID,
		FirstSeenAt:     seenAt,
		LastSeenAt:      seenAt,
	}
	return nil
}

// Get retrieves one issue. Returns ErrNotFound if not exists.
func (s *UnresolvedIssueStore) Get(_ context.Context, kind domain.IssueKind, normalizedValue string) (*domain.UnresolvedIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	issue, ok := s.issues[issueKey{kind, normalizedValue}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *issue
	return &c, nil
}

// ListTop returns issues of a kind ordered by seen_count DESC.
func (s *UnresolvedIssueStore) ListTop(_ context.Context, kind domain.IssueKind, limit int) ([]*domain.UnresolvedIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.UnresolvedIssue
	for k, issue := range s.issues {
		if k.kind == kind {
			c := *issue
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].SeenCount != result[j].SeenCount {
			return result[i].SeenCount > result[j].SeenCount
		}
		return result[i].NormalizedValue < result[j].NormalizedValue
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.UnresolvedIssueStore = (*UnresolvedIssueStore)(nil)
