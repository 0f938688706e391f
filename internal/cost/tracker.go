package cost

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
)

type Tracker interface {
	Record(ctx context.Context, record domain.UsageRecord) error
	Since(ctx context.Context, since time.Time) ([]domain.UsageRecord, error)
	TotalCost(ctx context.Context, userID string, since time.Time) (float64, error)
}

// DefaultMaxRecords bounds the in-memory tracker.
const DefaultMaxRecords = 10000

// InMemoryTracker keeps the most recent usage records, dropping the oldest once
// maxRecords is reached.
type InMemoryTracker struct {
	mu         sync.RWMutex
	records    []domain.UsageRecord
	maxRecords int
}

type TrackerOption func(*InMemoryTracker)

func WithMaxRecords(n int) TrackerOption {
	return func(t *InMemoryTracker) {
		if n > 0 {
			t.maxRecords = n
		}
	}
}

func NewInMemoryTracker(opts ...TrackerOption) *InMemoryTracker {
	t := &InMemoryTracker{
		records:    make([]domain.UsageRecord, 0),
		maxRecords: DefaultMaxRecords,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *InMemoryTracker) Record(ctx context.Context, record domain.UsageRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, record)
	if over := len(t.records) - t.maxRecords; over > 0 {
		// re-slicing lets append move the window to a fresh array once capacity runs out
		t.records = t.records[over:]
	}
	return nil
}

func (t *InMemoryTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

func (t *InMemoryTracker) Since(ctx context.Context, since time.Time) ([]domain.UsageRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []domain.UsageRecord
	for _, r := range t.records {
		if !r.CreatedAt.Before(since) {
			result = append(result, r)
		}
	}
	return result, nil
}

// TotalCost sums cost for userID since the given time. An empty userID sums every record.
func (t *InMemoryTracker) TotalCost(ctx context.Context, userID string, since time.Time) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total float64
	for _, r := range t.records {
		if (userID == "" || r.UserID == userID) && !r.CreatedAt.Before(since) {
			total += r.Cost
		}
	}
	return total, nil
}

func (t *InMemoryTracker) GetAllRecords() []domain.UsageRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]domain.UsageRecord, len(t.records))
	copy(result, t.records)
	return result
}

type ModelSummary struct {
	Model        string  `json:"model"`
	Requests     int     `json:"requests"`
	TotalCost    float64 `json:"total_cost"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

type Summary struct {
	TotalCost         float64        `json:"total_cost"`
	TotalRequests     int            `json:"total_requests"`
	AvgCostPerRequest float64        `json:"avg_cost_per_request"`
	Models            []ModelSummary `json:"models"`
}

// Summarize groups records by model, most requested first.
func Summarize(records []domain.UsageRecord) Summary {
	byModel := make(map[string]*ModelSummary)
	latency := make(map[string]int64)

	var s Summary
	for _, r := range records {
		ms, ok := byModel[r.ModelUsed]
		if !ok {
			ms = &ModelSummary{Model: r.ModelUsed}
			byModel[r.ModelUsed] = ms
		}
		ms.Requests++
		ms.TotalCost += r.Cost
		latency[r.ModelUsed] += r.LatencyMs

		s.TotalCost += r.Cost
		s.TotalRequests++
	}

	s.Models = make([]ModelSummary, 0, len(byModel))
	for name, ms := range byModel {
		ms.AvgLatencyMs = float64(latency[name]) / float64(ms.Requests)
		s.Models = append(s.Models, *ms)
	}
	sort.Slice(s.Models, func(i, j int) bool {
		if s.Models[i].Requests != s.Models[j].Requests {
			return s.Models[i].Requests > s.Models[j].Requests
		}
		return s.Models[i].Model < s.Models[j].Model
	})

	if s.TotalRequests > 0 {
		s.AvgCostPerRequest = s.TotalCost / float64(s.TotalRequests)
	}

	return s
}
