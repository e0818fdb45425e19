package tts

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cacheKey struct {
	voice string
	text  string
}

// CachedEngine serves repeated (voice, text) requests from an in-memory LRU
// cache. Only successful results are stored. Cached results are shared, so
// callers must not modify AudioResult.Data.
type CachedEngine struct {
	next  Engine
	cache *lru.Cache[cacheKey, *AudioResult]
}

// NewCachedEngine wraps next with a cache holding up to size results.
func NewCachedEngine(next Engine, size int) (*CachedEngine, error) {
	cache, err := lru.New[cacheKey, *AudioResult](size)
	if err != nil {
		return nil, err
	}
	return &CachedEngine{next: next, cache: cache}, nil
}

// Name returns the wrapped engine's name.
func (c *CachedEngine) Name() string {
	return c.next.Name()
}

// Synthesize returns a cached result or synthesizes and caches a new one.
func (c *CachedEngine) Synthesize(ctx context.Context, req SynthesizeRequest) (*AudioResult, error) {
	key := cacheKey{voice: req.Voice, text: req.Text}
	if res, ok := c.cache.Get(key); ok {
		return res, nil
	}

	res, err := c.next.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, res)
	return res, nil
}

// Len returns the number of cached results.
func (c *CachedEngine) Len() int {
	return c.cache.Len()
}
