// Package ratelimit throttles routing requests per client.
// The in-memory backend is a token bucket per client; the Redis backend is a
// sliding window shared by every instance.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Allow(ctx context.Context, clientID string) (Result, error)
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per client.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	now     func() time.Time
}

type MemoryOption func(*MemoryLimiter)

func WithClock(now func() time.Time) MemoryOption {
	return func(l *MemoryLimiter) {
		l.now = now
	}
}

func NewMemoryLimiter(rps float64, burst int, opts ...MemoryOption) *MemoryLimiter {
	if burst < 1 {
		burst = 1
	}
	l := &MemoryLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *MemoryLimiter) Allow(ctx context.Context, clientID string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[clientID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[clientID] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	res := Result{
		Allowed:   allowed,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		ResetAt:   now,
	}
	if tokens < 1 && l.rps > 0 {
		wait := time.Duration((1 - tokens) / float64(l.rps) * float64(time.Second))
		res.ResetAt = now.Add(wait)
	}

	return res, nil
}

// Prune drops buckets idle for longer than maxIdle and returns how many were removed.
func (l *MemoryLimiter) Prune(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) > maxIdle {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}

func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
