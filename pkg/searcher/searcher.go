// Package searcher is the read side of the feed index.
//
// Results are cached per write generation: any drained mutation bumps
// the handle's generation counter, which changes every cache key, so a
// stale entry is never served and eviction is left to the LRU.
package searcher

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/feedtools/feedindex/internal/feed"
	"github.com/feedtools/feedindex/internal/index"
)

// DefaultCacheSize is the default number of cached result sets.
const DefaultCacheSize = 256

// Hit is one search result.
type Hit struct {
	Link  string
	Score float64
}

// Searcher answers queries against the live index handle.
type Searcher struct {
	handle *index.Handle
	cache  *lru.Cache[string, []Hit]
}

// New creates a searcher over the handle. cacheSize <= 0 selects the
// default.
func New(handle *index.Handle, cacheSize int) *Searcher {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, []Hit](cacheSize)
	return &Searcher{handle: handle, cache: cache}
}

// Search runs a query-string query over titles and contents.
func (s *Searcher) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	key := fmt.Sprintf("%d|%d|%s", s.handle.Generation(), limit, query)
	if hits, ok := s.cache.Get(key); ok {
		return hits, nil
	}

	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{feed.FieldLink}

	result, err := s.handle.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		link, _ := h.Fields[feed.FieldLink].(string)
		if link == "" {
			link = h.ID
		}
		hits = append(hits, Hit{Link: link, Score: h.Score})
	}

	s.cache.Add(key, hits)
	return hits, nil
}

// HitsForKey returns how many documents carry the item key. Used by the
// host to tell whether an item is indexed; more than one hit means
// duplicate submissions (there is no dedup contract at this layer).
func (s *Searcher) HitsForKey(ctx context.Context, link string) (int, error) {
	return s.CountTerm(ctx, feed.ItemTerm(link))
}

// CountTerm returns how many documents match an exact term.
func (s *Searcher) CountTerm(ctx context.Context, term feed.Term) (int, error) {
	q := bleve.NewTermQuery(term.Value)
	q.SetField(term.Field)
	req := bleve.NewSearchRequest(q)
	req.Size = 0

	result, err := s.handle.Search(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("term count failed: %w", err)
	}
	return int(result.Total), nil
}
