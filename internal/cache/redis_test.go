package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTestStore(t *testing.T, maxSize int, ttl time.Duration) *RedisStore {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set, skipping Redis cache tests")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)

	prefix := "agentrouter:test:" + uuid.NewString() + ":"
	s := NewRedisStoreWithClient(client, prefix, Config{MaxSize: maxSize, TTL: ttl}, nil)
	t.Cleanup(func() {
		s.Clear(context.Background())
		s.Close()
	})
	return s
}

func TestRedisStore_SetAndGet(t *testing.T) {
	s := newRedisTestStore(t, 10, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "Hello world", domain.TaskGeneral, result("B")))

	got, ok := s.Get(ctx, "hello world!", domain.TaskGeneral)
	require.True(t, ok)
	assert.Equal(t, "B", got.SelectedModel)

	_, ok = s.Get(ctx, "hello world", domain.TaskSummary)
	assert.False(t, ok)
}

func TestRedisStore_Eviction(t *testing.T) {
	s := newRedisTestStore(t, 2, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "one", domain.TaskGeneral, result("1")))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.Set(ctx, "two", domain.TaskGeneral, result("2")))
	s.Get(ctx, "one", domain.TaskGeneral)

	require.NoError(t, s.Set(ctx, "three", domain.TaskGeneral, result("3")))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Size)

	_, ok := s.Get(ctx, "two", domain.TaskGeneral)
	assert.False(t, ok)
}

func TestRedisStore_ExpiresByTimestamp(t *testing.T) {
	s := newRedisTestStore(t, 10, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "hello", domain.TaskGeneral, result("1")))

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, ok := s.Get(ctx, "hello", domain.TaskGeneral)
	assert.False(t, ok)
}

func TestRedisStore_InvalidateAndStats(t *testing.T) {
	s := newRedisTestStore(t, 10, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", domain.TaskSummary, result("1")))
	require.NoError(t, s.Set(ctx, "b", domain.TaskSummary, result("2")))
	require.NoError(t, s.Set(ctx, "c", domain.TaskTranslation, result("3")))
	s.Get(ctx, "c", domain.TaskTranslation)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Size)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 1e-9)
	require.NotEmpty(t, stats.TopTasks)
	assert.Equal(t, domain.TaskSummary, stats.TopTasks[0].TaskType)

	n, err := s.InvalidateByTaskType(ctx, domain.TaskSummary)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.Clear(ctx))
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Size)
}

func TestRedisStore_HitAfterRemovalLeavesNoKey(t *testing.T) {
	s := newRedisTestStore(t, 10, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "hello", domain.TaskGeneral, result("1")))
	key, _ := keyFor("hello", domain.TaskGeneral)
	assert.True(t, s.recordHit(ctx, key))

	// entry removed between the read and the hit increment
	_, err := s.InvalidateByTaskType(ctx, domain.TaskGeneral)
	require.NoError(t, err)

	assert.False(t, s.recordHit(ctx, key))
	exists, err := s.client.Exists(ctx, s.entryKey(key)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
