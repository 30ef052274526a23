package watcher

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feedtools/feedindex/internal/feed"
)

// fakeGateway records whole-feed deletes.
type fakeGateway struct {
	mu    sync.Mutex
	terms []feed.Term
	ch    chan feed.Term
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{ch: make(chan feed.Term, 16)}
}

func (f *fakeGateway) DeleteFeed(term feed.Term) {
	f.mu.Lock()
	f.terms = append(f.terms, term)
	f.mu.Unlock()
	f.ch <- term
}

func writeFeedList(t *testing.T, path string, urls ...string) {
	t.Helper()
	var f subscriptionFile
	for _, u := range urls {
		f.Feeds = append(f.Feeds, Subscription{URL: u})
	}
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestFeedList_RemovedFeedTriggersDelete(t *testing.T) {
	// Given: a subscription file with two feeds
	path := filepath.Join(t.TempDir(), "feeds.json")
	writeFeedList(t, path, "http://a/feed", "http://b/feed")

	gw := newFakeGateway()
	fl, err := NewFeedList(path, 50*time.Millisecond, gw)
	require.NoError(t, err)
	require.NoError(t, fl.Start())
	defer fl.Stop()

	// When: one feed disappears from the file
	writeFeedList(t, path, "http://a/feed")

	// Then: a whole-feed delete is enqueued for it
	select {
	case term := <-gw.ch:
		assert.Equal(t, feed.FeedTerm("http://b/feed"), term)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for DeleteFeed")
	}
}

func TestFeedList_AddedFeedTriggersNothing(t *testing.T) {
	// Given: a watched subscription file
	path := filepath.Join(t.TempDir(), "feeds.json")
	writeFeedList(t, path, "http://a/feed")

	gw := newFakeGateway()
	fl, err := NewFeedList(path, 50*time.Millisecond, gw)
	require.NoError(t, err)
	require.NoError(t, fl.Start())
	defer fl.Stop()

	// When: a feed is added
	writeFeedList(t, path, "http://a/feed", "http://c/feed")

	// Then: no delete fires; new items arrive via the refresh pipeline
	select {
	case term := <-gw.ch:
		t.Fatalf("unexpected DeleteFeed for %s", term)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestFeedList_RapidRewritesCoalesce(t *testing.T) {
	// Given: a watched subscription file with three feeds
	path := filepath.Join(t.TempDir(), "feeds.json")
	writeFeedList(t, path, "http://a/feed", "http://b/feed", "http://c/feed")

	gw := newFakeGateway()
	fl, err := NewFeedList(path, 150*time.Millisecond, gw)
	require.NoError(t, err)
	require.NoError(t, fl.Start())
	defer fl.Stop()

	// When: the file is rewritten rapidly, ending with one feed left
	writeFeedList(t, path, "http://a/feed", "http://b/feed")
	time.Sleep(20 * time.Millisecond)
	writeFeedList(t, path, "http://a/feed")

	// Then: the debounced reload deletes both vanished feeds
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case term := <-gw.ch:
			got[term.Value] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout, got %v", got)
		}
	}
	assert.True(t, got["http://b/feed"])
	assert.True(t, got["http://c/feed"])
}

func TestFeedList_MissingFileIsEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.json")

	gw := newFakeGateway()
	fl, err := NewFeedList(path, 50*time.Millisecond, gw)
	require.NoError(t, err)
	require.NoError(t, fl.Start())
	defer fl.Stop()

	// Creating the file later counts as additions only.
	writeFeedList(t, path, "http://a/feed")

	select {
	case term := <-gw.ch:
		t.Fatalf("unexpected DeleteFeed for %s", term)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestFeedList_StopIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.json")
	writeFeedList(t, path, "http://a/feed")

	fl, err := NewFeedList(path, 50*time.Millisecond, newFakeGateway())
	require.NoError(t, err)
	require.NoError(t, fl.Start())

	fl.Stop()
	fl.Stop()
}
