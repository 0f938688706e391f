package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"go.uber.org/zap"
)

// MemoryStore keeps entries in a map guarded by a single mutex. Lookups, writes,
// eviction and the cleanup sweep all mutate the same map, so every operation takes
// the exclusive lock.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry

	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type MemoryOption func(*MemoryStore)

func WithLogger(logger *zap.Logger) MemoryOption {
	return func(s *MemoryStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now, mainly for TTL tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewMemoryStore(cfg Config, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*Entry),
		cfg:     cfg.withDefaults(),
		logger:  zap.NewNop(),
		now:     time.Now,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the periodic expiry sweep until ctx is cancelled or Stop is called.
func (s *MemoryStore) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

// Stop halts the sweep started by Start and waits for it to exit.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if s.started.Load() {
		<-s.done
	}
}

func (s *MemoryStore) Get(ctx context.Context, input string, taskType domain.TaskType) (*domain.RouteResult, bool) {
	key, _ := keyFor(input, taskType)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}

	if s.expired(e, s.now()) {
		delete(s.entries, key)
		s.logger.Debug("cache entry expired", zap.String("key", key))
		return nil, false
	}

	e.Hits++
	result := e.Result
	return &result, true
}

func (s *MemoryStore) Set(ctx context.Context, input string, taskType domain.TaskType, result *domain.RouteResult) error {
	if result == nil {
		return nil
	}
	key, hash := keyFor(input, taskType)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.setLocked(key, hash, taskType, *result)
	return nil
}

func (s *MemoryStore) setLocked(key, hash string, taskType domain.TaskType, result domain.RouteResult) {
	if _, exists := s.entries[key]; !exists && len(s.entries) >= s.cfg.MaxSize {
		s.evictLocked()
	}

	s.entries[key] = &Entry{
		Key:       key,
		Result:    result,
		Timestamp: s.now(),
		TaskType:  taskType,
		InputHash: hash,
	}
	s.logger.Debug("cache entry stored", zap.String("key", key))
}

// evictLocked removes the entry with the fewest hits, oldest first on ties.
func (s *MemoryStore) evictLocked() {
	var victim *Entry
	for _, e := range s.entries {
		if victim == nil || evictionCandidate(e.Hits, e.Timestamp, victim.Hits, victim.Timestamp) {
			victim = e
		}
	}
	if victim == nil {
		return
	}

	delete(s.entries, victim.Key)
	s.logger.Debug("cache entry evicted",
		zap.String("key", victim.Key),
		zap.Int64("hits", victim.Hits),
	)
}

// Cleanup removes every expired entry and returns how many were dropped.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if s.expired(e, now) {
			delete(s.entries, key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("cache cleanup", zap.Int("removed", removed))
	}
	return removed
}

func (s *MemoryStore) InvalidateByTaskType(ctx context.Context, taskType domain.TaskType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if e.TaskType == taskType {
			delete(s.entries, key)
			removed++
		}
	}

	s.logger.Debug("cache invalidated",
		zap.String("task_type", string(taskType)),
		zap.Int("removed", removed),
	)
	return removed, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var totalHits int64
	byTask := make(map[domain.TaskType]int)
	for _, e := range s.entries {
		totalHits += e.Hits
		byTask[e.TaskType]++
	}

	return buildStats(s.cfg.MaxSize, totalHits, byTask, len(s.entries)), nil
}

func (s *MemoryStore) PreWarm(ctx context.Context, entries []WarmEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range entries {
		key, hash := keyFor(w.Input, w.TaskType)
		s.setLocked(key, hash, w.TaskType, w.Result)
	}
	return nil
}

// Entry returns a copy of the resident entry for key.
func (s *MemoryStore) Entry(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) expired(e *Entry, now time.Time) bool {
	return now.Sub(e.Timestamp) > s.cfg.TTL
}
