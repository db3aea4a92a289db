package sink

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedKeys decorates a Sink with in-memory memoization of Keys. Resume
// filtering calls Keys once per batch; against remote backends the decorator
// spares repeated full-collection scans when batches are resubmitted in
// quick succession.
type CachedKeys struct {
	inner Sink
	cache *cache.Cache
}

// NewCachedKeys creates a caching decorator around inner.
// defaultTTL is the expiration time for cached key sets.
func NewCachedKeys(inner Sink, defaultTTL time.Duration) *CachedKeys {
	return &CachedKeys{
		inner: inner,
		cache: cache.New(defaultTTL, defaultTTL*2),
	}
}

// Write delegates to the inner sink and drops the collection's cached key
// set so the next Keys call sees the new record.
func (c *CachedKeys) Write(ctx context.Context, collection, key string, record map[string]any) error {
	if err := c.inner.Write(ctx, collection, key, record); err != nil {
		return err
	}
	c.cache.Delete(collection)
	return nil
}

// Keys returns the cached key set or delegates to the inner sink.
func (c *CachedKeys) Keys(ctx context.Context, collection string) ([]string, error) {
	if val, found := c.cache.Get(collection); found {
		if keys, ok := val.([]string); ok {
			return keys, nil
		}
	}

	keys, err := c.inner.Keys(ctx, collection)
	if err != nil {
		return nil, err
	}

	c.cache.Set(collection, keys, cache.DefaultExpiration)
	return keys, nil
}
