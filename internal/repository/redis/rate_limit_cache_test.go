package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowRateLimit(t *testing.T) {
	_, rc := setupRedis(t)
	clk := newMockClock()
	cache := NewRateLimitCache(rc, clk)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		allowed, count, err := cache.SlidingWindowRateLimit(ctx, "k", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, i, count)
	}

	allowed, count, err := cache.SlidingWindowRateLimit(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 3, count)

	clk.Add(time.Minute + time.Millisecond)

	allowed, count, err = cache.SlidingWindowRateLimit(ctx, "k", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 1, count)
}

func TestAllowIP_SeparatesAddresses(t *testing.T) {
	_, rc := setupRedis(t)
	cache := NewRateLimitCache(rc, newMockClock())
	ctx := context.Background()

	allowed, err := cache.AllowIP(ctx, "10.0.0.1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = cache.AllowIP(ctx, "10.0.0.1", 1, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = cache.AllowIP(ctx, "10.0.0.2", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}
