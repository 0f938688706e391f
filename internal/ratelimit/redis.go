package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "agentrouter:ratelimit:"

// RedisLimiter allows limit requests per client in any sliding window.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(redisURL string, limit int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisLimiterWithClient(client, defaultRedisPrefix, limit, window), nil
}

func NewRedisLimiterWithClient(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, clientID string) (Result, error) {
	key := r.prefix + clientID
	now := r.now()
	windowStart := now.Add(-r.window)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, r.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", clientID, err)
	}

	count := int(countCmd.Val())
	remaining := max(r.limit-count, 0)

	return Result{
		Allowed:   count <= r.limit,
		Remaining: remaining,
		ResetAt:   now.Add(r.window),
	}, nil
}

func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
