// Package cache memoizes routing decisions keyed by a normalized fingerprint of the
// task input. It supports both in-memory (single instance) and Redis (distributed)
// backends with the same capacity and TTL rules.
package cache

import (
	"context"
	"sort"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
)

const (
	DefaultMaxSize         = 1000
	DefaultTTL             = 60 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute

	topTasksLimit = 5
)

// Store defines the interface for routing cache backends.
type Store interface {
	Get(ctx context.Context, input string, taskType domain.TaskType) (*domain.RouteResult, bool)
	Set(ctx context.Context, input string, taskType domain.TaskType, result *domain.RouteResult) error
	InvalidateByTaskType(ctx context.Context, taskType domain.TaskType) (int, error)
	Clear(ctx context.Context) error
	Stats(ctx context.Context) (Stats, error)
	PreWarm(ctx context.Context, entries []WarmEntry) error
}

type Config struct {
	MaxSize         int
	TTL             time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxSize:         DefaultMaxSize,
		TTL:             DefaultTTL,
		CleanupInterval: DefaultCleanupInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	return c
}

// Entry is a resident cache record. Timestamp is set at write time only, so the TTL
// is absolute from creation.
type Entry struct {
	Key       string             `json:"key"`
	Result    domain.RouteResult `json:"result"`
	Timestamp time.Time          `json:"timestamp"`
	Hits      int64              `json:"hits"`
	TaskType  domain.TaskType    `json:"task_type"`
	InputHash string             `json:"input_hash"`
}

type WarmEntry struct {
	Input    string             `json:"input"`
	TaskType domain.TaskType    `json:"task_type"`
	Result   domain.RouteResult `json:"result"`
}

type TaskCount struct {
	TaskType domain.TaskType `json:"task_type"`
	Count    int             `json:"count"`
}

// Stats reports resident entries. HitRate is total hits divided by resident entries,
// not hits over lookups.
type Stats struct {
	Size     int         `json:"size"`
	MaxSize  int         `json:"max_size"`
	HitRate  float64     `json:"hit_rate"`
	TopTasks []TaskCount `json:"top_tasks"`
}

func buildStats(maxSize int, totalHits int64, byTask map[domain.TaskType]int, size int) Stats {
	s := Stats{
		Size:     size,
		MaxSize:  maxSize,
		TopTasks: make([]TaskCount, 0, len(byTask)),
	}
	if size > 0 {
		s.HitRate = float64(totalHits) / float64(size)
	}

	for t, n := range byTask {
		s.TopTasks = append(s.TopTasks, TaskCount{TaskType: t, Count: n})
	}
	sort.Slice(s.TopTasks, func(i, j int) bool {
		if s.TopTasks[i].Count != s.TopTasks[j].Count {
			return s.TopTasks[i].Count > s.TopTasks[j].Count
		}
		return s.TopTasks[i].TaskType < s.TopTasks[j].TaskType
	})
	if len(s.TopTasks) > topTasksLimit {
		s.TopTasks = s.TopTasks[:topTasksLimit]
	}

	return s
}

// evictionCandidate reports whether a should be evicted before b: fewer hits first,
// then the older write.
func evictionCandidate(aHits int64, aTS time.Time, bHits int64, bTS time.Time) bool {
	if aHits != bHits {
		return aHits < bHits
	}
	return aTS.Before(bTS)
}
