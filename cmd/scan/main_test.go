package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mention-lab/internal/storage/memory"
)

func TestParseWindow(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	end, start, err := parseWindow("24h", "", now)
	require.NoError(t, err)
	assert.Equal(t, now, end)
	assert.Equal(t, now.Add(-24*time.Hour), start)

	end, start, err = parseWindow("2024-01-09T00:00:00Z", "2024-01-09T06:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 9, 6, 0, 0, 0, time.UTC), end)
	assert.Equal(t, time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), start)

	_, _, err = parseWindow("yesterday", "", now)
	assert.Error(t, err)

	_, _, err = parseWindow("2024-01-11T00:00:00Z", "", now)
	assert.Error(t, err)
}

func TestImportPosts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.jsonl")
	data := `{"post_id":"1","author":"alice","text":"$BONK","created_at":"2024-01-10T11:00:00Z"}

{"post_id":"2","text":"hello","created_at":"2024-01-10T11:30:00Z"}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	posts := memory.NewPostStore()
	n, err := importPosts(context.Background(), posts, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p, err := posts.GetByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.AuthorHandle)
	assert.Equal(t, time.Date(2024, 1, 10, 11, 0, 0, 0, time.UTC).UnixMilli(), p.CreatedAt)
}

func TestImportPosts_MissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"text":"x"}`+"\n"), 0o600))

	_, err := importPosts(context.Background(), memory.NewPostStore(), path)
	assert.ErrorContains(t, err, "line 1")
}
