// Package usage records what every routed task cost. Recording is best-effort:
// a failing sink is logged and never fails the routing response.
package usage

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/cost"
	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/google/uuid"
)

// Sink persists usage records.
type Sink interface {
	Record(ctx context.Context, record domain.UsageRecord) error
}

type SinkFunc func(ctx context.Context, record domain.UsageRecord) error

func (f SinkFunc) Record(ctx context.Context, record domain.UsageRecord) error {
	return f(ctx, record)
}

// NewRecord builds the usage record for a routed task. userID falls back to
// task.Context["user_id"]; capabilities come from task.Context["capabilities"].
func NewRecord(task *domain.Task, result *domain.RouteResult, userID string, now time.Time) domain.UsageRecord {
	if userID == "" {
		userID = contextString(task.Context, "user_id")
	}

	return domain.UsageRecord{
		ID:            uuid.NewString(),
		UserID:        userID,
		TaskID:        task.ID,
		ModelUsed:     result.SelectedModel,
		Provider:      result.Provider,
		Cost:          result.Cost,
		LatencyMs:     int64(math.Round(result.EstimatedTime)),
		TokensUsed:    cost.EstimateTokens(task.Input),
		PromptPreview: cost.PromptPreview(task.Input),
		Capabilities:  contextStrings(task.Context, "capabilities"),
		Cached:        result.Cached,
		CreatedAt:     now,
	}
}

func contextString(ctx map[string]any, key string) string {
	if s, ok := ctx[key].(string); ok {
		return s
	}
	return ""
}

func contextStrings(ctx map[string]any, key string) []string {
	switch v := ctx[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// Multi fans a record out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, record domain.UsageRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
