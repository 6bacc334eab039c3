package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderCache(t *testing.T) {
	ctx := context.Background()

	t.Run("miss loads and caches", func(t *testing.T) {
		c, err := NewLoaderCache[string](10)
		require.NoError(t, err)

		var loads int
		load := func(_ context.Context, key string) (string, error) {
			loads++

			return "value-for-" + key, nil
		}

		v, hit, err := c.Get(ctx, "k1", load)
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "value-for-k1", v)

		v, hit, err = c.Get(ctx, "k1", load)
		require.NoError(t, err)
		assert.True(t, hit)
		assert.Equal(t, "value-for-k1", v)
		assert.Equal(t, 1, loads)
	})

	t.Run("load errors are returned and not cached", func(t *testing.T) {
		c, err := NewLoaderCache[string](10)
		require.NoError(t, err)

		_, _, err = c.Get(ctx, "k1", func(_ context.Context, _ string) (string, error) {
			return "", errors.New("load failed")
		})
		require.Error(t, err)

		v, hit, err := c.Get(ctx, "k1", func(_ context.Context, _ string) (string, error) {
			return "recovered", nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
		assert.Equal(t, "recovered", v)
	})

	t.Run("concurrent misses share one load", func(t *testing.T) {
		c, err := NewLoaderCache[string](10)
		require.NoError(t, err)

		var loads atomic.Int64
		started := make(chan struct{})
		release := make(chan struct{})

		load := func(_ context.Context, _ string) (string, error) {
			loads.Add(1)
			close(started)
			<-release

			return "shared", nil
		}

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				v, _, gerr := c.Get(ctx, "same", load)
				assert.NoError(t, gerr)
				assert.Equal(t, "shared", v)
			}()
		}

		<-started
		close(release)
		wg.Wait()

		assert.Equal(t, int64(1), loads.Load())
	})

	t.Run("evicts beyond capacity", func(t *testing.T) {
		c, err := NewLoaderCache[int](2)
		require.NoError(t, err)

		load := func(_ context.Context, _ string) (int, error) { return 1, nil }

		_, _, _ = c.Get(ctx, "a", load)
		_, _, _ = c.Get(ctx, "b", load)
		_, _, _ = c.Get(ctx, "c", load)

		assert.Equal(t, 2, c.Len())
	})
}
