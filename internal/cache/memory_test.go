package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func result(name string) *domain.RouteResult {
	return &domain.RouteResult{
		SelectedModel: name,
		ModelID:       name,
		Provider:      "test",
		Cost:          0.003,
		EstimatedTime: 125,
		TaskType:      domain.TaskGeneral,
	}
}

func newTestStore(maxSize int, ttl time.Duration) (*MemoryStore, *fakeClock) {
	clock := newFakeClock()
	s := NewMemoryStore(Config{MaxSize: maxSize, TTL: ttl}, WithClock(clock.Now))
	return s, clock
}

func TestMemoryStore_SetAndGet(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "Hello world", domain.TaskGeneral, result("B")))

	got, ok := s.Get(ctx, "hello   WORLD!", domain.TaskGeneral)
	require.True(t, ok)
	assert.Equal(t, "B", got.SelectedModel)
}

func TestMemoryStore_Miss(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)
	ctx := context.Background()

	_, ok := s.Get(ctx, "nonexistent", domain.TaskGeneral)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "hello", domain.TaskGeneral, result("B")))
	_, ok = s.Get(ctx, "hello", domain.TaskSummary)
	assert.False(t, ok, "task type is part of the key")
}

func TestMemoryStore_HitsIncrementOnRead(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "hello", domain.TaskGeneral, result("B")))
	key, _ := keyFor("hello", domain.TaskGeneral)

	e, ok := s.Entry(key)
	require.True(t, ok)
	assert.Equal(t, int64(0), e.Hits)

	for i := 0; i < 3; i++ {
		_, ok := s.Get(ctx, "hello", domain.TaskGeneral)
		require.True(t, ok)
	}

	e, _ = s.Entry(key)
	assert.Equal(t, int64(3), e.Hits)
}

func TestMemoryStore_ReturnsCopy(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "hello", domain.TaskGeneral, result("B")))

	got, _ := s.Get(ctx, "hello", domain.TaskGeneral)
	got.SelectedModel = "mutated"

	again, _ := s.Get(ctx, "hello", domain.TaskGeneral)
	assert.Equal(t, "B", again.SelectedModel)
}

func TestMemoryStore_AbsoluteTTL(t *testing.T) {
	s, clock := newTestStore(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "hello", domain.TaskGeneral, result("B")))

	clock.Advance(40 * time.Second)
	_, ok := s.Get(ctx, "hello", domain.TaskGeneral)
	require.True(t, ok)

	// the read above must not extend the lifetime
	clock.Advance(21 * time.Second)
	_, ok = s.Get(ctx, "hello", domain.TaskGeneral)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len(), "expired entry removed on read")
}

func TestMemoryStore_ExactlyTTLStillValid(t *testing.T) {
	s, clock := newTestStore(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "hello", domain.TaskGeneral, result("B")))
	clock.Advance(time.Minute)

	_, ok := s.Get(ctx, "hello", domain.TaskGeneral)
	assert.True(t, ok)
}

func TestMemoryStore_EvictsLowestHits(t *testing.T) {
	s, clock := newTestStore(3, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "one", domain.TaskGeneral, result("1")))
	clock.Advance(time.Second)
	require.NoError(t, s.Set(ctx, "two", domain.TaskGeneral, result("2")))
	clock.Advance(time.Second)
	require.NoError(t, s.Set(ctx, "three", domain.TaskGeneral, result("3")))

	s.Get(ctx, "one", domain.TaskGeneral)
	s.Get(ctx, "three", domain.TaskGeneral)

	clock.Advance(time.Second)
	require.NoError(t, s.Set(ctx, "four", domain.TaskGeneral, result("4")))

	assert.Equal(t, 3, s.Len())
	_, ok := s.Get(ctx, "two", domain.TaskGeneral)
	assert.False(t, ok, "entry with fewest hits evicted")
	_, ok = s.Get(ctx, "four", domain.TaskGeneral)
	assert.True(t, ok)
}

func TestMemoryStore_EvictionTieBreaksOnOldest(t *testing.T) {
	s, clock := newTestStore(2, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "older", domain.TaskGeneral, result("1")))
	clock.Advance(time.Second)
	require.NoError(t, s.Set(ctx, "newer", domain.TaskGeneral, result("2")))
	clock.Advance(time.Second)
	require.NoError(t, s.Set(ctx, "third", domain.TaskGeneral, result("3")))

	olderKey, _ := keyFor("older", domain.TaskGeneral)
	newerKey, _ := keyFor("newer", domain.TaskGeneral)

	_, ok := s.Entry(olderKey)
	assert.False(t, ok)
	_, ok = s.Entry(newerKey)
	assert.True(t, ok)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_OverwriteDoesNotEvict(t *testing.T) {
	s, _ := newTestStore(2, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", domain.TaskGeneral, result("1")))
	require.NoError(t, s.Set(ctx, "b", domain.TaskGeneral, result("2")))
	s.Get(ctx, "a", domain.TaskGeneral)

	require.NoError(t, s.Set(ctx, "a", domain.TaskGeneral, result("updated")))

	assert.Equal(t, 2, s.Len())
	got, ok := s.Get(ctx, "a", domain.TaskGeneral)
	require.True(t, ok)
	assert.Equal(t, "updated", got.SelectedModel)
	_, ok = s.Get(ctx, "b", domain.TaskGeneral)
	assert.True(t, ok)

	key, _ := keyFor("a", domain.TaskGeneral)
	e, _ := s.Entry(key)
	assert.Equal(t, int64(1), e.Hits, "rewrite resets hits")
}

func TestMemoryStore_Cleanup(t *testing.T) {
	s, clock := newTestStore(10, time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "old", domain.TaskGeneral, result("1")))
	clock.Advance(45 * time.Second)
	require.NoError(t, s.Set(ctx, "fresh", domain.TaskGeneral, result("2")))
	clock.Advance(30 * time.Second)

	assert.Equal(t, 1, s.Cleanup())
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_StartStop(t *testing.T) {
	clock := newFakeClock()
	s := NewMemoryStore(Config{MaxSize: 10, TTL: time.Minute, CleanupInterval: 5 * time.Millisecond}, WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "hello", domain.TaskGeneral, result("1")))
	clock.Advance(2 * time.Minute)

	s.Start(ctx)
	defer s.Stop()

	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_StopWithoutStart(t *testing.T) {
	s, _ := newTestStore(10, time.Minute)
	s.Stop()
	s.Stop()
}

func TestMemoryStore_InvalidateByTaskType(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", domain.TaskSummary, result("1")))
	require.NoError(t, s.Set(ctx, "b", domain.TaskSummary, result("2")))
	require.NoError(t, s.Set(ctx, "c", domain.TaskTranslation, result("3")))

	n, err := s.InvalidateByTaskType(ctx, domain.TaskSummary)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Len())

	n, err = s.InvalidateByTaskType(ctx, domain.TaskAnalysis)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryStore_Clear(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", domain.TaskSummary, result("1")))
	require.NoError(t, s.Clear(ctx))

	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_Stats(t *testing.T) {
	s, _ := newTestStore(100, time.Hour)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, 100, stats.MaxSize)
	assert.Equal(t, 0.0, stats.HitRate)
	assert.Empty(t, stats.TopTasks)

	require.NoError(t, s.Set(ctx, "a", domain.TaskSummary, result("1")))
	require.NoError(t, s.Set(ctx, "b", domain.TaskSummary, result("2")))
	require.NoError(t, s.Set(ctx, "c", domain.TaskTranslation, result("3")))
	require.NoError(t, s.Set(ctx, "d", domain.TaskAnalysis, result("4")))

	for i := 0; i < 4; i++ {
		s.Get(ctx, "a", domain.TaskSummary)
	}
	s.Get(ctx, "c", domain.TaskTranslation)
	s.Get(ctx, "missing", domain.TaskTranslation)

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Size)
	assert.InDelta(t, 5.0/4.0, stats.HitRate, 1e-9, "hits per resident entry")
	require.Len(t, stats.TopTasks, 3)
	assert.Equal(t, TaskCount{TaskType: domain.TaskSummary, Count: 2}, stats.TopTasks[0])
	assert.Equal(t, TaskCount{TaskType: domain.TaskAnalysis, Count: 1}, stats.TopTasks[1])
	assert.Equal(t, TaskCount{TaskType: domain.TaskTranslation, Count: 1}, stats.TopTasks[2])
}

func TestMemoryStore_StatsTopTasksLimited(t *testing.T) {
	s, _ := newTestStore(100, time.Hour)
	ctx := context.Background()

	for i, tt := range []domain.TaskType{"t1", "t2", "t3", "t4", "t5", "t6", "t7"} {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("input %d", i), tt, result("x")))
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Len(t, stats.TopTasks, 5)
}

func TestMemoryStore_PreWarm(t *testing.T) {
	s, _ := newTestStore(10, time.Hour)
	ctx := context.Background()

	err := s.PreWarm(ctx, []WarmEntry{
		{Input: "Summarize the report", TaskType: domain.TaskSummary, Result: *result("A")},
		{Input: "Translate to Spanish", TaskType: domain.TaskTranslation, Result: *result("B")},
	})
	require.NoError(t, err)

	got, ok := s.Get(ctx, "summarize the report", domain.TaskSummary)
	require.True(t, ok)
	assert.Equal(t, "A", got.SelectedModel)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_Defaults(t *testing.T) {
	s := NewMemoryStore(Config{})
	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxSize, stats.MaxSize)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	s, _ := newTestStore(50, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			input := fmt.Sprintf("input %d", i%80)
			s.Set(ctx, input, domain.TaskGeneral, result("x"))
			s.Get(ctx, input, domain.TaskGeneral)
			s.Cleanup()
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 50)
}
