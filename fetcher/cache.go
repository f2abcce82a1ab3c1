package fetcher

import (
	"context"

	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/cnosuke/feed-audit/types"
)

// CachingFetcher serves repeated fetches of a document from memory. Only usable results
// are cached, so a failed document is fetched again on the next request.
type CachingFetcher struct {
	next  Fetcher
	cache *lru.Cache[string, *types.FetchResult]
}

// NewCachingFetcher wraps next with an LRU cache of size entries.
func NewCachingFetcher(next Fetcher, size int) (*CachingFetcher, error) {
	cache, err := lru.New[string, *types.FetchResult](size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fetch cache")
	}
	return &CachingFetcher{next: next, cache: cache}, nil
}

// Fetch implements Fetcher.
func (c *CachingFetcher) Fetch(ctx context.Context, urlStr string) *types.FetchResult {
	if res, ok := c.cache.Get(urlStr); ok {
		zap.S().Debugw("fetch served from cache", "url", urlStr)
		return res
	}
	res := c.next.Fetch(ctx, urlStr)
	if !res.Failed() {
		c.cache.Add(urlStr, res)
	}
	return res
}

// Purge drops every cached document.
func (c *CachingFetcher) Purge() {
	c.cache.Purge()
}
