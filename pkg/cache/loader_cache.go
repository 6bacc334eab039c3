// Package cache provides a loader cache combining LRU storage with
// singleflight, so a burst of concurrent misses for one key runs a single load.
package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// LoaderCache caches values by string key and loads them on miss via a
// callback. Concurrent misses for the same key share one load.
type LoaderCache[V any] struct {
	lru   *lru.Cache[string, V]
	group singleflight.Group
}

// NewLoaderCache creates a loader cache holding at most maxEntries values.
func NewLoaderCache[V any](maxEntries int) (*LoaderCache[V], error) {
	lruCache, err := lru.New[string, V](maxEntries)
	if err != nil {
		return nil, err
	}

	return &LoaderCache[V]{lru: lruCache}, nil
}

// Get returns the value for key, loading it on miss. The second return reports
// whether the value came from cache, so callers can count hits without the
// cache knowing about metrics. Load errors are never cached.
func (c *LoaderCache[V]) Get(ctx context.Context, key string, load func(context.Context, string) (V, error)) (V, bool, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, true, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		loaded, loadErr := load(ctx, key)
		if loadErr != nil {
			return zero[V](), loadErr
		}

		c.lru.Add(key, loaded)

		return loaded, nil
	})
	if err != nil {
		return zero[V](), false, err
	}

	return val.(V), false, nil
}

func zero[V any]() (z V) { return z }

// Len returns the number of cached entries.
func (c *LoaderCache[V]) Len() int {
	return c.lru.Len()
}
