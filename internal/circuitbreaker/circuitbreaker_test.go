package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testBreaker(cfg Config) (*Breaker, *clock) {
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	m := NewManager(cfg, WithClock(c.Now))
	return m.Get("openai"), c
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := New("openai", DefaultConfig())
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow(context.Background()))
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := testBreaker(Config{FailureThreshold: 3, SuccessThreshold: 2, Timeout: time.Second})
	ctx := context.Background()

	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 2, b.Failures())

	b.RecordFailure(ctx)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(ctx), domain.ErrCircuitBreakerOpen)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := testBreaker(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Second})
	ctx := context.Background()

	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	b.RecordSuccess(ctx)
	b.RecordFailure(ctx)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, c := testBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second})
	ctx := context.Background()

	b.RecordFailure(ctx)
	require.Equal(t, StateOpen, b.State())

	c.Advance(2 * time.Second)
	require.NoError(t, b.Allow(ctx))
	assert.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess(ctx)
	assert.Equal(t, StateHalfOpen, b.State())
	b.RecordSuccess(ctx)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, c := testBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second})
	ctx := context.Background()

	b.RecordFailure(ctx)
	c.Advance(2 * time.Second)
	require.NoError(t, b.Allow(ctx))

	b.RecordFailure(ctx)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(ctx), domain.ErrCircuitBreakerOpen)
}

func TestBreaker_Do(t *testing.T) {
	b, _ := testBreaker(Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()
	boom := errors.New("boom")

	calls := 0
	fail := func(context.Context) error { calls++; return boom }

	assert.ErrorIs(t, b.Do(ctx, fail), boom)
	assert.ErrorIs(t, b.Do(ctx, fail), boom)
	assert.ErrorIs(t, b.Do(ctx, fail), domain.ErrCircuitBreakerOpen)
	assert.Equal(t, 2, calls)
}

func TestManager_ReusesBreakersAndReportsStates(t *testing.T) {
	var transitions []string
	m := NewManager(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute},
		WithStateListener(func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		}),
	)
	ctx := context.Background()

	assert.Same(t, m.Get("openai"), m.Get("openai"))

	m.Get("anthropic").RecordFailure(ctx)
	m.Get("openai").RecordSuccess(ctx)

	assert.Equal(t, map[string]string{"openai": "closed", "anthropic": "open"}, m.States())
	assert.Equal(t, []string{"anthropic:closed->open"}, transitions)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
