package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLimiter_Window(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping redis test")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	rl := NewRedisLimiterWithClient(client, "test:"+uuid.NewString()+":", 2, time.Minute)
	ctx := context.Background()

	res, err := rl.Allow(ctx, "c")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	res, err = rl.Allow(ctx, "c")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = rl.Allow(ctx, "c")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	res, err = rl.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
