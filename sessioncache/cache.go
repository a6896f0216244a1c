// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sessioncache maps bearer tokens to authenticated backend sessions.
//
// # Description
//
// The cache is the process-wide association between an access token and the
// hosted-backend client that was authenticated with it. It is populated on
// sign-in, consulted on every authenticated request, and cleared on sign-out.
//
// Unlike the prototype this service descends from, the map is guarded by a
// mutex and every entry carries a deadline: a token stays resolvable only as
// long as the underlying hosted session is valid, and a background sweep
// evicts entries whose deadline has passed. At most one entry exists per
// token; Put replaces.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple connections.
package sessioncache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianChat/apperrors"
)

// =============================================================================
// Clock
// =============================================================================

// Clock abstracts time.Now so expiry behavior is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock implementation used in production.
func SystemClock() Clock { return systemClock{} }

// =============================================================================
// Cache
// =============================================================================

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a mutex-guarded token -> session map with per-entry expiry.
//
// The value type is generic; the service stores *supabase.Manager, tests
// store whatever fake they need.
type Cache[V any] struct {
	mu         sync.RWMutex
	entries    map[string]entry[V]
	clock      Clock
	defaultTTL time.Duration

	// onEvict, when set, observes sweep and lazy evictions. Used for metrics.
	onEvict func(token string)
}

// New creates a Cache. defaultTTL bounds entries whose Put does not supply
// an explicit lifetime; clock may be nil, in which case the system clock is
// used.
func New[V any](defaultTTL time.Duration, clock Clock) *Cache[V] {
	if clock == nil {
		clock = SystemClock()
	}
	return &Cache[V]{
		entries:    make(map[string]entry[V]),
		clock:      clock,
		defaultTTL: defaultTTL,
	}
}

// OnEvict registers a callback invoked with the token of every expired entry
// removed by Sweep or by a lazy Get eviction. Must be called before the
// cache is shared.
func (c *Cache[V]) OnEvict(fn func(token string)) {
	c.onEvict = fn
}

// Put associates token with value for ttl. A non-positive ttl falls back to
// the cache default. Any existing entry for the token is replaced, so the
// invariant of at most one entry per token holds by construction.
func (c *Cache[V]) Put(token string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = entry[V]{value: value, expiresAt: c.clock.Now().Add(ttl)}
}

// Get resolves token to its session.
//
// # Outputs
//
//   - V: The cached value when the token is present and unexpired.
//   - error: apperrors.ErrUnauthorized-wrapped when the token is unknown or
//     its entry has expired. An expired entry is evicted on the spot.
func (c *Cache[V]) Get(token string) (V, error) {
	var zero V

	c.mu.RLock()
	e, ok := c.entries[token]
	c.mu.RUnlock()

	if !ok {
		return zero, apperrors.Unauthorized("invalid or expired token")
	}
	if !c.clock.Now().Before(e.expiresAt) {
		c.evict(token)
		return zero, apperrors.Unauthorized("invalid or expired token")
	}
	return e.value, nil
}

// Remove deletes the entry for token. Removing an absent token is a no-op.
func (c *Cache[V]) Remove(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
}

// Len reports the number of live entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes every expired entry and reports how many were evicted.
func (c *Cache[V]) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	var expired []string
	for token, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, token)
			expired = append(expired, token)
		}
	}
	c.mu.Unlock()

	for _, token := range expired {
		if c.onEvict != nil {
			c.onEvict(token)
		}
	}
	return len(expired)
}

// Run sweeps at the given interval until ctx is canceled. Intended to run
// in its own goroutine, started once at startup.
func (c *Cache[V]) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				slog.Info("Evicted expired session cache entries", "count", n)
			}
		}
	}
}

// evict removes the entry for token if it is still expired. The expiry is
// re-checked under the write lock: a Put may have replaced the entry with a
// fresh one between the caller's read and this call.
func (c *Cache[V]) evict(token string) {
	now := c.clock.Now()

	c.mu.Lock()
	e, present := c.entries[token]
	expired := present && !now.Before(e.expiresAt)
	if expired {
		delete(c.entries, token)
	}
	c.mu.Unlock()

	if expired && c.onEvict != nil {
		c.onEvict(token)
	}
}
