// Package api exposes the router over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/cost"
	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/felipepmaragno/agentrouter/internal/logger"
	"github.com/felipepmaragno/agentrouter/internal/provider"
	"github.com/felipepmaragno/agentrouter/internal/ratelimit"
	"github.com/felipepmaragno/agentrouter/internal/router"
	"github.com/felipepmaragno/agentrouter/internal/usage"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// ProviderManager executes routed models. *provider.Manager satisfies it.
type ProviderManager interface {
	Complete(ctx context.Context, modelID, prompt string, opts provider.CompletionOptions) (*domain.Completion, error)
	HealthCheck(ctx context.Context) map[string]error
	BreakerStates() map[string]string
}

type UsageRecorder interface {
	Record(ctx context.Context, rec domain.UsageRecord)
}

type UsageReader interface {
	Since(ctx context.Context, since time.Time) ([]domain.UsageRecord, error)
}

type HandlerConfig struct {
	Router       *router.Router
	Providers    ProviderManager
	Usage        UsageRecorder
	UsageReader  UsageReader
	RateLimiter  ratelimit.Limiter
	Checkers     []HealthChecker
	CheckTimeout time.Duration
	Logger       *zap.Logger
	Version      string
	Clock        func() time.Time
}

type Handler struct {
	router       *router.Router
	providers    ProviderManager
	usage        UsageRecorder
	usageReader  UsageReader
	rateLimiter  ratelimit.Limiter
	checkers     []HealthChecker
	checkTimeout time.Duration
	logger       *zap.Logger
	version      string
	now          func() time.Time
	engine       *gin.Engine
}

func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		router:       cfg.Router,
		providers:    cfg.Providers,
		usage:        cfg.Usage,
		usageReader:  cfg.UsageReader,
		rateLimiter:  cfg.RateLimiter,
		checkers:     cfg.Checkers,
		checkTimeout: cfg.CheckTimeout,
		logger:       logger.OrNop(cfg.Logger),
		version:      cfg.Version,
		now:          cfg.Clock,
	}
	if h.checkTimeout <= 0 {
		h.checkTimeout = 5 * time.Second
	}
	if h.now == nil {
		h.now = time.Now
	}

	engine := gin.New()
	engine.Use(ginzap.RecoveryWithZap(h.logger, true))
	engine.Use(otelgin.Middleware("agentrouter"))
	engine.Use(requestLogger(h.logger))
	engine.Use(httpMetrics())

	v1 := engine.Group("/v1")
	if h.rateLimiter != nil {
		v1.Use(rateLimit(h.rateLimiter, h.logger))
	}
	v1.POST("/route", h.handleRoute)
	v1.POST("/explain", h.handleExplain)
	v1.GET("/stats", h.handleStats)
	v1.POST("/cache/clear", h.handleClearCache)
	v1.GET("/models", h.handleListModels)
	v1.GET("/providers", h.handleListProviders)
	v1.GET("/metrics", h.handleUsageMetrics)

	engine.GET("/health", h.handleHealth)
	engine.GET("/health/live", h.handleHealthLive)
	engine.GET("/health/ready", h.handleHealthReady)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h.engine = engine
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

// Engine exposes the gin engine so extra route groups can be mounted.
func (h *Handler) Engine() *gin.Engine {
	return h.engine
}

type routeRequest struct {
	ID               string                   `json:"id"`
	Input            string                   `json:"input"`
	TaskType         domain.TaskType          `json:"task_type"`
	ModelPreferences *domain.ModelPreferences `json:"model_preferences"`
	Context          map[string]any           `json:"context"`
	Execute          bool                     `json:"execute"`
	MaxTokens        int                      `json:"max_tokens"`
}

type routeResponse struct {
	TaskID        string          `json:"task_id"`
	SelectedModel string          `json:"selected_model"`
	ModelID       string          `json:"model_id"`
	Provider      string          `json:"provider"`
	Cost          float64         `json:"cost"`
	EstimatedTime float64         `json:"estimated_time"`
	TaskType      domain.TaskType `json:"task_type"`
	Response      string          `json:"response"`
	IsRealAI      bool            `json:"is_real_ai"`
	Success       bool            `json:"success"`
}

func (h *Handler) handleRoute(c *gin.Context) {
	ctx := c.Request.Context()

	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Input == "" {
		writeError(c, http.StatusBadRequest, "Input is required")
		return
	}

	task := &domain.Task{
		ID:          req.ID,
		Input:       req.Input,
		TaskType:    req.TaskType,
		Preferences: req.ModelPreferences,
		Context:     req.Context,
	}

	result, err := h.router.RouteTask(ctx, task)
	if err != nil {
		h.writeRouteError(c, task, err)
		return
	}

	if h.usage != nil {
		h.usage.Record(ctx, usage.NewRecord(task, result, c.GetHeader("X-User-ID"), h.now()))
	}

	resp := routeResponse{
		TaskID:        task.ID,
		SelectedModel: result.SelectedModel,
		ModelID:       result.ModelID,
		Provider:      result.Provider,
		Cost:          result.Cost,
		EstimatedTime: result.EstimatedTime,
		TaskType:      result.TaskType,
		Success:       true,
	}

	if req.Execute {
		if completion := h.execute(ctx, task, result, req.MaxTokens); completion != nil {
			resp.Response = completion.Content
			resp.IsRealAI = true
		}
	}
	if !resp.IsRealAI {
		resp.Response = simulatedResponse(result)
	}

	c.JSON(http.StatusOK, resp)
}

// execute runs the selected model. Failures are logged and yield nil so the
// caller falls back to the simulated response.
func (h *Handler) execute(ctx context.Context, task *domain.Task, result *domain.RouteResult, maxTokens int) *domain.Completion {
	if h.providers == nil {
		return nil
	}

	completion, err := h.providers.Complete(ctx, result.ModelID, task.Input, provider.CompletionOptions{MaxTokens: maxTokens})
	if err != nil {
		h.logger.Warn("model execution failed, using simulated response",
			zap.String("task_id", task.ID),
			zap.String("model_id", result.ModelID),
			zap.Error(err),
		)
		return nil
	}
	return completion
}

func simulatedResponse(result *domain.RouteResult) string {
	return fmt.Sprintf("Response generated using %s.\nEstimated cost: $%.3f\nEstimated time: %sms",
		result.SelectedModel,
		result.Cost,
		strconv.FormatFloat(result.EstimatedTime, 'f', -1, 64),
	)
}

func (h *Handler) writeRouteError(c *gin.Context, task *domain.Task, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(c, http.StatusBadRequest, "Input is required")
	case errors.Is(err, domain.ErrNoEligibleModel):
		writeError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("routing failed", zap.String("task_id", task.ID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *Handler) handleExplain(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	task := &domain.Task{Input: req.Input, TaskType: req.TaskType, Preferences: req.ModelPreferences}
	candidates, taskType, err := h.router.Explain(task)
	if err != nil {
		h.writeRouteError(c, task, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task_type":  taskType,
		"candidates": candidates,
		"success":    true,
	})
}

type modelInfo struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Provider       string            `json:"provider"`
	CostPerToken   float64           `json:"cost_per_token"`
	QualityRating  int               `json:"quality_rating"`
	SpeedRating    int               `json:"speed_rating"`
	SupportedTasks []domain.TaskType `json:"supported_tasks"`
}

func (h *Handler) modelInfos() []modelInfo {
	models := h.router.AvailableModels()
	out := make([]modelInfo, len(models))
	for i, m := range models {
		out[i] = modelInfo{
			ID:             m.ID,
			Name:           m.Name,
			Provider:       m.Provider,
			CostPerToken:   m.CostPerToken,
			QualityRating:  m.QualityRating,
			SpeedRating:    m.SpeedRating,
			SupportedTasks: m.SupportedTasks,
		}
	}
	return out
}

func (h *Handler) handleStats(c *gin.Context) {
	stats, err := h.router.CacheStats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read cache stats", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to fetch performance statistics")
		return
	}

	models := h.modelInfos()
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"cache_stats": stats,
		"model_stats": gin.H{
			"available_models": models,
			"provider_stats": gin.H{
				"available_providers": h.router.AvailableProviders(),
				"total_models":        len(models),
			},
		},
	})
}

type clearCacheRequest struct {
	TaskType domain.TaskType `json:"task_type"`
}

func (h *Handler) handleClearCache(c *gin.Context) {
	ctx := c.Request.Context()

	var req clearCacheRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if req.TaskType != "" {
		n, err := h.router.InvalidateCacheByTaskType(ctx, req.TaskType)
		if err != nil {
			h.logger.Error("failed to invalidate cache", zap.String("task_type", string(req.TaskType)), zap.Error(err))
			writeError(c, http.StatusInternalServerError, "Failed to clear cache")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":             true,
			"message":             fmt.Sprintf("Cache cleared for task type: %s", req.TaskType),
			"invalidated_entries": n,
		})
		return
	}

	if err := h.router.ClearCache(ctx); err != nil {
		h.logger.Error("failed to clear cache", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to clear cache")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "All cache cleared",
	})
}

func (h *Handler) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   h.modelInfos(),
	})
}

func (h *Handler) handleListProviders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"providers": h.router.AvailableProviders(),
	})
}

// handleUsageMetrics summarizes recorded usage. The optional since query
// parameter is a duration such as 24h; without it every record is included.
func (h *Handler) handleUsageMetrics(c *gin.Context) {
	if h.usageReader == nil {
		c.JSON(http.StatusOK, gin.H{"summary": cost.Summarize(nil), "success": true})
		return
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(c, http.StatusBadRequest, "since must be a positive duration")
			return
		}
		since = h.now().Add(-d)
	}

	records, err := h.usageReader.Since(c.Request.Context(), since)
	if err != nil {
		h.logger.Error("failed to read usage", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "Failed to fetch metrics")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary": cost.Summarize(records),
		"success": true,
	})
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   message,
		"success": false,
	})
}
