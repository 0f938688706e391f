package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/domain"
	"github.com/felipepmaragno/agentrouter/internal/logger"
	"github.com/felipepmaragno/agentrouter/internal/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type CostReader interface {
	TotalCost(ctx context.Context, userID string, since time.Time) (float64, error)
}

type AdminConfig struct {
	Router    *router.Router
	Providers ProviderManager
	Costs     CostReader
	Token     string
	Logger    *zap.Logger
	Clock     func() time.Time
}

// AdminHandler serves operator endpoints: cache warm-up and invalidation,
// breaker states and per-user spend.
type AdminHandler struct {
	router    *router.Router
	providers ProviderManager
	costs     CostReader
	token     string
	logger    *zap.Logger
	now       func() time.Time
}

func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	h := &AdminHandler{
		router:    cfg.Router,
		providers: cfg.Providers,
		costs:     cfg.Costs,
		token:     cfg.Token,
		logger:    logger.OrNop(cfg.Logger),
		now:       cfg.Clock,
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Register mounts the admin routes under /admin on engine.
func (h *AdminHandler) Register(engine *gin.Engine) {
	g := engine.Group("/admin")
	if h.token != "" {
		g.Use(h.requireToken)
	}
	g.POST("/cache/prewarm", h.prewarm)
	g.DELETE("/cache/task-types/:task_type", h.invalidateTaskType)
	g.GET("/breakers", h.breakers)
	g.GET("/usage/cost", h.usageCost)
}

func (h *AdminHandler) requireToken(c *gin.Context) {
	if subtle.ConstantTimeCompare([]byte(c.GetHeader("X-Admin-Token")), []byte(h.token)) != 1 {
		writeError(c, http.StatusUnauthorized, "invalid admin token")
		return
	}
	c.Next()
}

type PrewarmRequest struct {
	Inputs []string `json:"inputs"`
}

func (h *AdminHandler) prewarm(c *gin.Context) {
	var req PrewarmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Inputs) == 0 {
		writeError(c, http.StatusBadRequest, "inputs is required")
		return
	}

	n, err := h.router.PreWarm(c.Request.Context(), req.Inputs)
	if err != nil {
		h.logger.Error("failed to prewarm cache", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "failed to prewarm cache")
		return
	}

	h.logger.Info("cache prewarmed", zap.Int("requested", len(req.Inputs)), zap.Int("warmed", n))

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"warmed":  n,
	})
}

func (h *AdminHandler) invalidateTaskType(c *gin.Context) {
	taskType := domain.TaskType(c.Param("task_type"))
	if !taskType.Valid() {
		writeError(c, http.StatusBadRequest, "unknown task type")
		return
	}

	n, err := h.router.InvalidateCacheByTaskType(c.Request.Context(), taskType)
	if err != nil {
		h.logger.Error("failed to invalidate cache", zap.Error(err))
		writeError(c, http.StatusInternalServerError, "failed to invalidate cache")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"task_type":           taskType,
		"invalidated_entries": n,
	})
}

func (h *AdminHandler) breakers(c *gin.Context) {
	states := map[string]string{}
	if h.providers != nil {
		states = h.providers.BreakerStates()
	}
	c.JSON(http.StatusOK, gin.H{"circuit_breakers": states})
}

// usageCost sums spend for the user_id query parameter (every user when empty)
// over the since window, 24h by default.
func (h *AdminHandler) usageCost(c *gin.Context) {
	if h.costs == nil {
		writeError(c, http.StatusNotImplemented, "usage storage not configured")
		return
	}

	window := 24 * time.Hour
	if raw := c.Query("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(c, http.StatusBadRequest, "since must be a positive duration")
			return
		}
		window = d
	}

	userID := c.Query("user_id")
	total, err := h.costs.TotalCost(c.Request.Context(), userID, h.now().Add(-window))
	if err != nil {
		h.logger.Error("failed to read usage cost", zap.String("user_id", userID), zap.Error(err))
		writeError(c, http.StatusInternalServerError, "failed to read usage cost")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":    userID,
		"since":      window.String(),
		"total_cost": total,
	})
}
