// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sessioncache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/apperrors"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCacheLifecycle(t *testing.T) {
	cache := New[string](time.Hour, nil)

	t.Run("get of unknown token is unauthorized", func(t *testing.T) {
		_, err := cache.Get("t-unknown")
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("put then get returns the value", func(t *testing.T) {
		cache.Put("t-1", "client-1", 0)
		got, err := cache.Get("t-1")
		require.NoError(t, err)
		assert.Equal(t, "client-1", got)
	})

	t.Run("put replaces, one entry per token", func(t *testing.T) {
		cache.Put("t-1", "client-2", 0)
		got, err := cache.Get("t-1")
		require.NoError(t, err)
		assert.Equal(t, "client-2", got)
		assert.Equal(t, 1, cache.Len())
	})

	t.Run("remove makes get fail again", func(t *testing.T) {
		cache.Remove("t-1")
		_, err := cache.Get("t-1")
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("remove of absent token is a no-op", func(t *testing.T) {
		cache.Remove("t-never")
	})
}

func TestCacheExpiry(t *testing.T) {
	t.Run("expired entry misses and is evicted", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		cache := New[string](time.Hour, clock)

		cache.Put("t-1", "client-1", 10*time.Minute)
		clock.Advance(10*time.Minute + time.Second)

		_, err := cache.Get("t-1")
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("entry survives until its deadline", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		cache := New[string](time.Hour, clock)

		cache.Put("t-1", "client-1", 10*time.Minute)
		clock.Advance(9 * time.Minute)

		_, err := cache.Get("t-1")
		require.NoError(t, err)
	})

	t.Run("sweep removes only expired entries", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		cache := New[string](time.Hour, clock)

		var evicted []string
		cache.OnEvict(func(token string) { evicted = append(evicted, token) })

		cache.Put("t-short", "a", time.Minute)
		cache.Put("t-long", "b", time.Hour)
		clock.Advance(2 * time.Minute)

		assert.Equal(t, 1, cache.Sweep())
		assert.Equal(t, []string{"t-short"}, evicted)

		_, err := cache.Get("t-long")
		require.NoError(t, err)
	})

	t.Run("lazy eviction spares a freshly replaced entry", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		cache := New[string](time.Hour, clock)

		evictions := 0
		cache.OnEvict(func(string) { evictions++ })

		// A Put racing the expiry check must not lose its fresh entry:
		// evict re-checks the deadline before deleting.
		cache.Put("t-1", "fresh", 10*time.Minute)
		cache.evict("t-1")

		got, err := cache.Get("t-1")
		require.NoError(t, err)
		assert.Equal(t, "fresh", got)
		assert.Zero(t, evictions)
	})

	t.Run("zero ttl uses the default", func(t *testing.T) {
		clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
		cache := New[string](30*time.Minute, clock)

		cache.Put("t-1", "a", 0)
		clock.Advance(29 * time.Minute)
		_, err := cache.Get("t-1")
		require.NoError(t, err)

		clock.Advance(2 * time.Minute)
		_, err = cache.Get("t-1")
		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})
}

func TestCacheConcurrency(t *testing.T) {
	cache := New[int](time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token := fmt.Sprintf("t-%d", i%8)
			for j := 0; j < 200; j++ {
				cache.Put(token, j, 0)
				_, _ = cache.Get(token)
				if j%50 == 0 {
					cache.Remove(token)
				}
				cache.Sweep()
			}
		}(i)
	}
	wg.Wait()
}
