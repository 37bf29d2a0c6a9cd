package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"registration-service/internal/client"
	"registration-service/internal/util"
)

const (
	rateLimitPrefix   = "rate_limit:"
	ipRateLimitPrefix = "ip_rate_limit:"
)

// slidingWindowScript trims entries older than the window, then admits the
// request only while the set holds fewer than limit members.
const slidingWindowScript = `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])
	local member = ARGV[5]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local current_count = redis.call('ZCARD', key)

	if current_count < limit then
		redis.call('ZADD', key, now, member)
		redis.call('EXPIRE', key, ttl)
		return {1, current_count + 1}
	end
	return {0, current_count}
`

type RateLimitCache struct {
	client *client.RedisClient
	clock  clock.Clock
}

func NewRateLimitCache(client *client.RedisClient, clk clock.Clock) *RateLimitCache {
	if clk == nil {
		clk = clock.New()
	}
	return &RateLimitCache{client: client, clock: clk}
}

// SlidingWindowRateLimit admits at most limit calls per key within window.
func (c *RateLimitCache) SlidingWindowRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := c.clock.Now().UnixMilli()
	windowStart := now - window.Milliseconds()
	ttl := int64(window.Seconds())
	if ttl < 1 {
		ttl = 1
	}

	result, err := c.client.Eval(ctx, slidingWindowScript, []string{rateLimitPrefix + key},
		now, windowStart, limit, ttl, fmt.Sprintf("%d-%s", now, uuid.NewString()))
	if err != nil {
		util.Error("Failed to execute sliding window rate limit",
			zap.String("key", key),
			zap.Int("limit", limit),
			zap.Duration("window", window),
			zap.Error(err))
		return false, 0, fmt.Errorf("failed to execute sliding window rate limit: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) != 2 {
		return false, 0, fmt.Errorf("unexpected result format from sliding window script")
	}
	allowedFlag, ok1 := resultSlice[0].(int64)
	currentCount, ok2 := resultSlice[1].(int64)
	if !ok1 || !ok2 {
		return false, 0, fmt.Errorf("unexpected result types from sliding window script")
	}

	util.Debug("Sliding window rate limit check",
		zap.String("key", key),
		zap.Bool("allowed", allowedFlag == 1),
		zap.Int64("current_count", currentCount),
		zap.Int("limit", limit))

	return allowedFlag == 1, int(currentCount), nil
}

// AllowIP applies the sliding window to a client address.
func (c *RateLimitCache) AllowIP(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	allowed, _, err := c.SlidingWindowRateLimit(ctx, ipRateLimitPrefix+ip, limit, window)
	return allowed, err
}
