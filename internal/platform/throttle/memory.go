// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package throttle

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter is a fixed window limiter backed by go-cache.
//
// The window of a key starts at its first hit and the entry expires with it.
type MemoryLimiter struct {
	cache  *gocache.Cache
	max    int64
	window time.Duration
}

// NewMemoryLimiter allows max hits per key per window.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		cache:  gocache.New(window, time.Minute),
		max:    int64(max),
		window: window,
	}
}

// Allow counts one hit for key.
func (limiter *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		// Add fails when the key already has a live window.
		if err := limiter.cache.Add(key, int64(1), limiter.window); err == nil {
			return newResult(1, limiter.max, limiter.window, limiter.window), nil
		}

		hits, err := limiter.cache.IncrementInt64(key, 1)
		if err != nil {
			// Expired between Add and Increment: open a new window.
			continue
		}

		var ttl time.Duration
		if _, expiresAt, found := limiter.cache.GetWithExpiration(key); found && !expiresAt.IsZero() {
			ttl = time.Until(expiresAt)
		}

		return newResult(hits, limiter.max, ttl, limiter.window), nil
	}
}
