// Package router is the single entry point for routing a task to a model. It ties
// together classification, cached decisions, model selection and estimation.
package router

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/cache"
	"github.com/felipepmaragno/agentrouter/internal/catalog"
	"github.com/felipepmaragno/agentrouter/internal/classifier"
	"github.com/felipepmaragno/agentrouter/internal/cost"
	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/felipepmaragno/agentrouter/internal/metrics"
	"github.com/felipepmaragno/agentrouter/internal/selector"
	"github.com/felipepmaragno/agentrouter/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProviderLister is satisfied by the provider manager.
type ProviderLister interface {
	Providers() []string
}

type Config struct {
	Catalog   *catalog.Catalog
	Cache     cache.Store
	Providers ProviderLister
	Logger    *zap.Logger
	Clock     func() time.Time
	IDGen     func() string
}

type Router struct {
	catalog   *catalog.Catalog
	cache     cache.Store
	providers ProviderLister
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

func New(cfg Config) (*Router, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("%w: router requires a model catalog", domain.ErrConfiguration)
	}

	r := &Router{
		catalog:   cfg.Catalog,
		cache:     cfg.Cache,
		providers: cfg.Providers,
		logger:    cfg.Logger,
		now:       cfg.Clock,
		newID:     cfg.IDGen,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.cache == nil {
		r.cache = cache.NewMemoryStore(cache.DefaultConfig(), cache.WithLogger(r.logger))
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = newTaskID
	}
	return r, nil
}

// newTaskID returns a time-ordered UUID so IDs sort by creation.
func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// RouteTask picks a model for task. The task is completed in place with its ID,
// creation time and resolved task type.
func (r *Router) RouteTask(ctx context.Context, task *domain.Task) (*domain.RouteResult, error) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "router.RouteTask")
	defer span.End()

	if task == nil || task.Input == "" {
		metrics.RecordRouteError("invalid_input")
		telemetry.AddErrorAttribute(span, domain.ErrInvalidInput)
		return nil, fmt.Errorf("%w: task input is required", domain.ErrInvalidInput)
	}

	if task.ID == "" {
		task.ID = r.newID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = r.now()
	}
	task.TaskType = r.resolveTaskType(task)

	telemetry.AddTaskAttributes(span, task.ID, string(task.TaskType), len(task.Input))

	if cached, ok := r.cache.Get(ctx, task.Input, task.TaskType); ok {
		if satisfiesPreferences(cached, task.Preferences) {
			telemetry.AddCacheAttribute(span, true)
			metrics.RecordCacheHit(string(task.TaskType))
			metrics.RecordRoute(string(task.TaskType), cached.SelectedModel, metrics.SourceCache, time.Since(start).Seconds())

			r.logger.Debug("routing cache hit",
				zap.String("task_id", task.ID),
				zap.String("task_type", string(task.TaskType)),
				zap.String("model", cached.SelectedModel),
			)
			cached.Cached = true
			return cached, nil
		}
		r.logger.Debug("cached decision conflicts with task preferences, reselecting",
			zap.String("task_id", task.ID),
			zap.String("model", cached.SelectedModel),
		)
	}

	telemetry.AddCacheAttribute(span, false)
	metrics.RecordCacheMiss(string(task.TaskType))

	model, err := selector.Select(r.catalog.Models(), task, task.TaskType)
	if err != nil {
		metrics.RecordRouteError("no_eligible_model")
		telemetry.AddErrorAttribute(span, err)
		r.logger.Warn("no eligible model",
			zap.String("task_id", task.ID),
			zap.String("task_type", string(task.TaskType)),
		)
		return nil, err
	}

	result := &domain.RouteResult{
		SelectedModel: model.Name,
		ModelID:       model.ID,
		Provider:      model.Provider,
		Cost:          cost.Calculate(model, task.Input),
		EstimatedTime: cost.EstimateTime(model),
		TaskType:      task.TaskType,
	}

	// Entries are keyed by input and task type only, so a decision narrowed by
	// preferences must not replace the unconstrained one.
	if !hasPreferences(task.Preferences) {
		if err := r.cache.Set(ctx, task.Input, task.TaskType, result); err != nil {
			r.logger.Warn("failed to cache routing decision",
				zap.String("task_id", task.ID),
				zap.Error(err),
			)
		}
	}

	telemetry.AddSelectionAttributes(span, result.Provider, result.SelectedModel, result.EstimatedTime)
	telemetry.AddCostAttribute(span, result.Cost)
	metrics.RecordEstimatedCost(result.Provider, result.SelectedModel, result.Cost)
	metrics.RecordRoute(string(task.TaskType), result.SelectedModel, metrics.SourceSelected, time.Since(start).Seconds())

	r.logger.Info("task routed",
		zap.String("task_id", task.ID),
		zap.String("task_type", string(task.TaskType)),
		zap.String("model", result.SelectedModel),
		zap.String("provider", result.Provider),
		zap.Float64("cost", result.Cost),
		zap.Float64("estimated_time_ms", result.EstimatedTime),
	)

	return result, nil
}

// resolveTaskType honors a known task type hint and classifies the input otherwise.
func (r *Router) resolveTaskType(task *domain.Task) domain.TaskType {
	if task.TaskType.Valid() {
		return task.TaskType
	}
	return classifier.Classify(task.Input)
}

func hasPreferences(prefs *domain.ModelPreferences) bool {
	return prefs != nil && (len(prefs.PreferredModels) > 0 || len(prefs.AvoidModels) > 0)
}

func satisfiesPreferences(result *domain.RouteResult, prefs *domain.ModelPreferences) bool {
	if prefs == nil {
		return true
	}
	if len(prefs.PreferredModels) > 0 && !slices.Contains(prefs.PreferredModels, result.SelectedModel) {
		return false
	}
	return !slices.Contains(prefs.AvoidModels, result.SelectedModel)
}

// Explain ranks every eligible model for task without reading or writing the cache.
func (r *Router) Explain(task *domain.Task) ([]selector.Candidate, domain.TaskType, error) {
	if task == nil || task.Input == "" {
		return nil, "", fmt.Errorf("%w: task input is required", domain.ErrInvalidInput)
	}

	taskType := r.resolveTaskType(task)
	ranked := selector.Rank(r.catalog.Models(), task, taskType)
	if len(ranked) == 0 {
		return nil, taskType, fmt.Errorf("%w for task type %q", domain.ErrNoEligibleModel, taskType)
	}
	return ranked, taskType, nil
}

func (r *Router) ClearCache(ctx context.Context) error {
	if err := r.cache.Clear(ctx); err != nil {
		return err
	}
	r.logger.Info("routing cache cleared")
	return nil
}

func (r *Router) CacheStats(ctx context.Context) (cache.Stats, error) {
	return r.cache.Stats(ctx)
}

func (r *Router) InvalidateCacheByTaskType(ctx context.Context, taskType domain.TaskType) (int, error) {
	n, err := r.cache.InvalidateByTaskType(ctx, taskType)
	if err != nil {
		return 0, err
	}
	metrics.RecordCacheInvalidation(string(taskType), n)
	r.logger.Info("routing cache invalidated",
		zap.String("task_type", string(taskType)),
		zap.Int("removed", n),
	)
	return n, nil
}

// PreWarm seeds the cache by routing each input. Inputs without an eligible model
// are skipped.
func (r *Router) PreWarm(ctx context.Context, inputs []string) (int, error) {
	entries := make([]cache.WarmEntry, 0, len(inputs))
	for _, input := range inputs {
		task := &domain.Task{Input: input}
		candidates, taskType, err := r.Explain(task)
		if err != nil {
			if errors.Is(err, domain.ErrNoEligibleModel) || errors.Is(err, domain.ErrInvalidInput) {
				continue
			}
			return 0, err
		}
		m := candidates[0].Model
		entries = append(entries, cache.WarmEntry{
			Input:    input,
			TaskType: taskType,
			Result: domain.RouteResult{
				SelectedModel: m.Name,
				ModelID:       m.ID,
				Provider:      m.Provider,
				Cost:          cost.Calculate(m, input),
				EstimatedTime: cost.EstimateTime(m),
				TaskType:      taskType,
			},
		})
	}

	if err := r.cache.PreWarm(ctx, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

func (r *Router) AvailableModels() []domain.Model {
	return r.catalog.Available()
}

func (r *Router) AvailableProviders() []string {
	if r.providers == nil {
		return []string{}
	}
	return r.providers.Providers()
}
