// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package throttle implements fixed-window counters keyed by arbitrary strings.

Two backends share the [Limiter] contract:

  - [RedisLimiter]: INCR + EXPIRE on a per-window key, shared by every replica.
  - [MemoryLimiter]: an in-process go-cache counter for single-node and test setups.
*/
package throttle

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Result describes the state of a key after one hit.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

// Limiter counts one hit for key and reports whether it is still within budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func newResult(hits, max int64, ttl, window time.Duration) Result {
	remaining := max - hits
	if remaining < 0 {
		remaining = 0
	}

	result := Result{
		Allowed:     hits <= max,
		Remaining:   remaining,
		CurrentHits: hits,
	}
	if !result.Allowed {
		result.RetryAfter = ttl
		if result.RetryAfter <= 0 {
			result.RetryAfter = window
		}
	}
	return result
}

// # Redis Backend

// RedisLimiter is a fixed window limiter (INCR + EXPIRE).
type RedisLimiter struct {
	client *goredis.Client
	prefix string
	max    int64
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows max hits per key per window.
func NewRedisLimiter(client *goredis.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		max:    int64(max),
		window: window,
		now:    time.Now,
	}
}

// Allow counts one hit in the current window.
func (limiter *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	windowStart := limiter.now().UTC().Truncate(limiter.window)
	redisKey := fmt.Sprintf("%s%s:%d", limiter.prefix, strings.ReplaceAll(key, " ", "_"), windowStart.Unix())

	pipe := limiter.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("throttle_redis_incr_failed: %w", err)
	}

	remainingTTL := ttl.Val()

	// First hit in the window owns the expiry.
	if incr.Val() == 1 {
		if err := limiter.client.Expire(ctx, redisKey, limiter.window).Err(); err != nil {
			return Result{}, fmt.Errorf("throttle_redis_expire_failed: %w", err)
		}
		remainingTTL = limiter.window
	}

	return newResult(incr.Val(), limiter.max, remainingTTL, limiter.window), nil
}
