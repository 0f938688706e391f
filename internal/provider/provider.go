// Package provider executes prompts against the model vendors behind a routing
// decision. Each vendor adapter publishes static model metadata and reports the
// real token usage and cost of a completion.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/circuitbreaker"
	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/felipepmaragno/agentrouter/internal/metrics"
	"github.com/felipepmaragno/agentrouter/internal/telemetry"
	"go.uber.org/zap"
)

const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
)

type Provider interface {
	ID() string
	Models() []domain.Model
	Complete(ctx context.Context, modelID, prompt string, opts CompletionOptions) (*domain.Completion, error)
	HealthCheck(ctx context.Context) error
}

type CompletionOptions struct {
	MaxTokens   int
	Temperature *float64
	System      string
}

// WithDefaults fills unset options with the vendor-neutral defaults.
func (o CompletionOptions) WithDefaults() CompletionOptions {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Temperature == nil {
		t := DefaultTemperature
		o.Temperature = &t
	}
	return o
}

// ModelSpec is the published metadata of one vendor model. Prices are per 1000 tokens.
type ModelSpec struct {
	ID        string
	Name      string
	CostPer1K float64
	MaxTokens int
	Speed     int
	Quality   int
	Tasks     []domain.TaskType
}

func (s ModelSpec) Model(providerID string) domain.Model {
	return domain.Model{
		ID:             s.ID,
		Name:           s.Name,
		Provider:       providerID,
		CostPerToken:   s.CostPer1K / 1000,
		MaxTokens:      s.MaxTokens,
		SpeedRating:    s.Speed,
		QualityRating:  s.Quality,
		Availability:   true,
		SupportedTasks: append([]domain.TaskType(nil), s.Tasks...),
	}
}

func (s ModelSpec) Cost(tokens int) float64 {
	return float64(tokens) / 1000 * s.CostPer1K
}

// FindSpec returns the spec with the given id.
func FindSpec(specs []ModelSpec, id string) (ModelSpec, bool) {
	for _, s := range specs {
		if s.ID == id {
			return s, true
		}
	}
	return ModelSpec{}, false
}

func Models(providerID string, specs []ModelSpec) []domain.Model {
	out := make([]domain.Model, len(specs))
	for i, s := range specs {
		out[i] = s.Model(providerID)
	}
	return out
}

// Manager resolves a model to the provider that serves it and guards each provider
// with its own circuit breaker.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
	models    []domain.Model
	owner     map[string]string

	breakers *circuitbreaker.Manager
	logger   *zap.Logger
}

func NewManager(breakers *circuitbreaker.Manager, logger *zap.Logger) *Manager {
	if breakers == nil {
		breakers = circuitbreaker.NewManager(circuitbreaker.DefaultConfig())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		providers: make(map[string]Provider),
		owner:     make(map[string]string),
		breakers:  breakers,
		logger:    logger,
	}
}

// Register adds p and its models. A model id already owned by another provider
// keeps its first owner.
func (m *Manager) Register(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers[p.ID()] = p
	for _, model := range p.Models() {
		if _, taken := m.owner[model.ID]; taken {
			continue
		}
		m.owner[model.ID] = p.ID()
		m.models = append(m.models, model)
	}

	m.logger.Info("provider registered",
		zap.String("provider", p.ID()),
		zap.Int("models", len(p.Models())),
	)
}

func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.providers))
	for id := range m.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Models lists every registered model in registration order.
func (m *Manager) Models() []domain.Model {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Model, len(m.models))
	copy(out, m.models)
	return out
}

func (m *Manager) Provider(id string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[id]
	return p, ok
}

func (m *Manager) Complete(ctx context.Context, modelID, prompt string, opts CompletionOptions) (*domain.Completion, error) {
	m.mu.RLock()
	providerID, ok := m.owner[modelID]
	var p Provider
	if ok {
		p, ok = m.providers[providerID]
	}
	m.mu.RUnlock()

	if providerID == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotFound, modelID)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, providerID)
	}

	ctx, span := telemetry.StartSpan(ctx, "provider.Complete")
	defer span.End()
	telemetry.AddSelectionAttributes(span, providerID, modelID, 0)

	breaker := m.breakers.Get(providerID)
	if err := breaker.Allow(ctx); err != nil {
		metrics.RecordProviderError(providerID, "circuit_open")
		telemetry.AddErrorAttribute(span, err)
		return nil, fmt.Errorf("%s: %w", providerID, err)
	}

	start := time.Now()
	completion, err := p.Complete(ctx, modelID, prompt, opts.WithDefaults())
	elapsed := time.Since(start)

	if err != nil {
		breaker.RecordFailure(ctx)
		metrics.RecordProviderRequest(providerID, modelID, "error", elapsed.Seconds())
		metrics.RecordProviderError(providerID, errorType(err))
		telemetry.AddErrorAttribute(span, err)
		m.logger.Warn("provider completion failed",
			zap.String("provider", providerID),
			zap.String("model", modelID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrProviderError, providerID, err)
	}

	breaker.RecordSuccess(ctx)
	metrics.RecordProviderRequest(providerID, modelID, "success", elapsed.Seconds())
	telemetry.AddCompletionAttributes(span, completion.TokensUsed, completion.Cost, completion.LatencyMs)
	return completion, nil
}

// HealthCheck probes every provider and returns the failures keyed by provider id.
func (m *Manager) HealthCheck(ctx context.Context) map[string]error {
	m.mu.RLock()
	providers := make([]Provider, 0, len(m.providers))
	for _, p := range m.providers {
		providers = append(providers, p)
	}
	m.mu.RUnlock()

	failures := make(map[string]error)
	for _, p := range providers {
		if err := p.HealthCheck(ctx); err != nil {
			failures[p.ID()] = err
		}
	}
	return failures
}

func (m *Manager) BreakerStates() map[string]string {
	return m.breakers.States()
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "upstream"
	}
}
