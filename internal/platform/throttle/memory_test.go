// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package throttle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/identity/internal/platform/throttle"
)

/*
TestMemoryLimiter_FixedWindow verifies the budget per key and the independence of keys.
*/
func TestMemoryLimiter_FixedWindow(t *testing.T) {
	limiter := throttle.NewMemoryLimiter(2, time.Minute)
	ctx := context.Background()

	first, err := limiter.Allow(ctx, "forgot:ada@example.com")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, int64(1), first.Remaining)

	second, err := limiter.Allow(ctx, "forgot:ada@example.com")
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.Equal(t, int64(0), second.Remaining)

	third, err := limiter.Allow(ctx, "forgot:ada@example.com")
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.Equal(t, int64(3), third.CurrentHits)
	assert.Greater(t, third.RetryAfter, time.Duration(0))

	other, err := limiter.Allow(ctx, "forgot:grace@example.com")
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

/*
TestMemoryLimiter_WindowExpires verifies that a new window opens after expiry.
*/
func TestMemoryLimiter_WindowExpires(t *testing.T) {
	limiter := throttle.NewMemoryLimiter(1, 20*time.Millisecond)
	ctx := context.Background()

	result, err := limiter.Allow(ctx, "resend:ada@example.com")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	result, err = limiter.Allow(ctx, "resend:ada@example.com")
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	time.Sleep(40 * time.Millisecond)

	result, err = limiter.Allow(ctx, "resend:ada@example.com")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

/*
TestMemoryLimiter_CancelledContext verifies that a cancelled context is reported.
*/
func TestMemoryLimiter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := throttle.NewMemoryLimiter(1, time.Minute).Allow(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
