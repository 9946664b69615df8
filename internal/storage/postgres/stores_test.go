package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mention-lab/internal/domain"
	"mention-lab/internal/storage"
)

func TestPostStore_UpsertGetAndRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostStore(pool)

	require.NoError(t, store.Upsert(ctx, []*domain.Post{
		{PostID: "b", AuthorHandle: "bob", Text: "two", CreatedAt: 2000},
		{PostID: "a", AuthorHandle: "amy", Text: "one", CreatedAt: 1000},
		{PostID: "c", AuthorHandle: "cat", Text: "three", CreatedAt: 3000},
	}))

	got, err := store.GetByTimeRange(ctx, 1000, 2000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].PostID)
	assert.Equal(t, "b", got[1].PostID)
	assert.NotZero(t, got[0].IngestedAt)

	require.NoError(t, store.Upsert(ctx, []*domain.Post{{PostID: "a", AuthorHandle: "amy", Text: "edited", CreatedAt: 1000}}))
	p, err := store.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "edited", p.Text)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUnresolvedIssueStore_RecordIncrements(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewUnresolvedIssueStore(pool)

	for i, post := range []string{"p1", "p2", "p3"} {
		require.NoError(t, store.Record(ctx, domain.IssueTicker, "foo", post, int64(1000+i)))
	}
	require.NoError(t, store.Record(ctx, domain.IssueTicker, "bar", "p1", 5000))
	require.NoError(t, store.Record(ctx, domain.IssueMissingMeta, "foo", "p1", 5000))

	issue, err := store.Get(ctx, domain.IssueTicker, "foo")
	require.NoError(t, err)
	assert.Equal(t, 3, issue.SeenCount)
	assert.Equal(t, "p3", issue.SamplePostID)
	assert.Equal(t, int64(1000), issue.FirstSeenAt)
	assert.Equal(t, int64(1002), issue.LastSeenAt)

	top, err := store.ListTop(ctx, domain.IssueTicker, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "foo", top[0].NormalizedValue)

	_, err = store.Get(ctx, domain.IssuePhrase, "foo")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenMetadataStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenMetadataStore(pool)

	require.NoError(t, store.Upsert(ctx, &domain.TokenMetadata{
		Mint: testMintA, Name: ptr("Bonk"), Symbol: ptr("Bonk"), FetchedAt: 1700000000000,
	}))
	require.NoError(t, store.Upsert(ctx, &domain.TokenMetadata{
		Mint: testMintA, Name: ptr("Bonk"), Symbol: ptr("BONK"), FetchedAt: 1700000001000,
	}))

	m, err := store.GetByMint(ctx, testMintA)
	require.NoError(t, err)
	require.NotNil(t, m.Symbol)
	assert.Equal(t, "BONK", *m.Symbol)
	assert.Equal(t, int64(1700000001000), m.FetchedAt)
	assert.NotZero(t, m.CreatedAt)

	all, err := store.GetByMints(ctx, []string{testMintA, testMintB})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = store.GetByMint(ctx, testMintB)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScanCursorStore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewScanCursorStore(pool)

	_, err := store.GetCursor(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.SetCursor(ctx, &storage.ScanCursor{CreatedAt: 10, PostID: "a"}))
	require.NoError(t, store.SetCursor(ctx, &storage.ScanCursor{CreatedAt: 20, PostID: "b"}))

	c, err := store.GetCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), c.CreatedAt)
	assert.Equal(t, "b", c.PostID)
}
