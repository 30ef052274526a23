package searcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedtools/feedindex/internal/config"
	"github.com/feedtools/feedindex/internal/feed"
	"github.com/feedtools/feedindex/internal/index"
)

func openTestHandle(t *testing.T) *index.Handle {
	t.Helper()
	cfg := config.DefaultConfig()
	h := index.NewHandle(cfg)
	require.NoError(t, h.Init())
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func addDoc(t *testing.T, h *index.Handle, link, content string) {
	t.Helper()
	require.NoError(t, h.Add(context.Background(), &feed.Document{
		Link:    link,
		Feed:    "http://example.com/feed",
		Title:   "post",
		Content: content,
	}, ""))
}

func TestSearcher_FindsByContent(t *testing.T) {
	h := openTestHandle(t)
	addDoc(t, h, "http://e/1", "the quick brown fox")
	addDoc(t, h, "http://e/2", "lazy dogs sleep all day")

	s := New(h, 0)
	hits, err := s.Search(context.Background(), "fox", 10)
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "http://e/1", hits[0].Link)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestSearcher_HitsForKey(t *testing.T) {
	h := openTestHandle(t)
	addDoc(t, h, "http://e/1", "something")

	s := New(h, 0)
	ctx := context.Background()

	n, err := s.HitsForKey(ctx, "http://e/1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.HitsForKey(ctx, "http://e/unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSearcher_CacheInvalidatesOnWrite(t *testing.T) {
	// Given: a cached result
	h := openTestHandle(t)
	addDoc(t, h, "http://e/1", "shared words here")

	s := New(h, 8)
	ctx := context.Background()

	hits, err := s.Search(ctx, "shared", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	// When: a mutation bumps the generation
	addDoc(t, h, "http://e/2", "shared words again")

	// Then: the next search sees the new document, not the cache
	hits, err = s.Search(ctx, "shared", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearcher_EmptyResult(t *testing.T) {
	h := openTestHandle(t)
	s := New(h, 0)

	hits, err := s.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
