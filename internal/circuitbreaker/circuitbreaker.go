// Package circuitbreaker stops calls to a provider that keeps failing.
//
// States:
//   - Closed: calls pass through and failures are counted
//   - Open: calls fail immediately until the cool-down elapses
//   - Half-Open: calls pass through; enough successes close the circuit, one failure reopens it
package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // successes needed to close from half-open
	Timeout          time.Duration // open duration before a trial call
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// StateListener is notified after every transition.
type StateListener func(name string, from, to State)

type Breaker struct {
	name     string
	config   Config
	now      func() time.Time
	listener StateListener

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
}

func New(name string, cfg Config) *Breaker {
	return &Breaker{
		name:   name,
		config: cfg,
		now:    time.Now,
		state:  StateClosed,
	}
}

// Allow returns domain.ErrCircuitBreakerOpen while the circuit is open.
func (b *Breaker) Allow(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.lastFailure) > b.config.Timeout {
		b.transitionLocked(StateHalfOpen)
		return nil
	}
	return domain.ErrCircuitBreakerOpen
}

func (b *Breaker) RecordSuccess(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	}
}

func (b *Breaker) RecordFailure(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
	}
}

// Do runs fn when the circuit allows it and records the outcome.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.Allow(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		b.RecordFailure(ctx)
		return err
	}
	b.RecordSuccess(ctx)
	return nil
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	b.state = to
	b.failures = 0
	b.successes = 0
	if b.listener != nil && from != to {
		b.listener(b.name, from, to)
	}
}

// Manager hands out one breaker per provider.
type Manager struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	config   Config
	now      func() time.Time
	listener StateListener
}

type ManagerOption func(*Manager)

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

func WithStateListener(l StateListener) ManagerOption {
	return func(m *Manager) {
		m.listener = l
	}
}

func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		breakers: make(map[string]*Breaker),
		config:   cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Get(providerID string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[providerID]; ok {
		return b
	}

	b := New(providerID, m.config)
	b.now = m.now
	b.listener = m.listener
	m.breakers[providerID] = b
	return b
}

func (m *Manager) States() map[string]string {
	m.mu.Lock()
	breakers := make(map[string]*Breaker, len(m.breakers))
	for id, b := range m.breakers {
		breakers[id] = b
	}
	m.mu.Unlock()

	states := make(map[string]string, len(breakers))
	for id, b := range breakers {
		states[id] = b.State().String()
	}
	return states
}
