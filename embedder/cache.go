package embedder

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultCacheSize bounds the number of distinct query embeddings
	// kept in memory at once.
	DefaultCacheSize = 1000
	// queryCacheTTL is the expiry window applied on each insertion.
	// queryCache.get re-adds a hit entry to slide this window forward,
	// so repeated queries keep resetting the clock rather than expiring
	// on a fixed schedule from first insertion.
	queryCacheTTL = time.Hour
)

// queryCache memoizes EmbedQuery results so a repeated or near-repeated
// query during recall doesn't re-run inference.
type queryCache struct {
	lru *lru.LRU[string, []float32]
}

func newQueryCache(capacity int) *queryCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &queryCache{lru: lru.NewLRU[string, []float32](capacity, nil, queryCacheTTL)}
}

// get returns a cached vector and re-adds it to refresh its TTL, so a
// repeatedly queried entry doesn't expire out from under active use —
// the expirable LRU itself only tracks a fixed expiry from insertion.
func (c *queryCache) get(query string) ([]float32, bool) {
	vec, ok := c.lru.Get(query)
	if ok {
		c.lru.Add(query, vec)
	}
	return vec, ok
}

func (c *queryCache) put(query string, vec []float32) {
	c.lru.Add(query, vec)
}
