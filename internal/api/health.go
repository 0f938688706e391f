package api

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// HealthChecker is a dependency probed by the readiness endpoint.
type HealthChecker interface {
	Check(ctx context.Context) error
	Name() string
}

type HealthStatus struct {
	Status  string                 `json:"status"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
	Version string                 `json:"version,omitempty"`
}

type CheckResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

type RedisHealthChecker struct {
	client *redis.Client
}

func NewRedisHealthChecker(redisURL string) (*RedisHealthChecker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisHealthChecker{client: redis.NewClient(opts)}, nil
}

func NewRedisHealthCheckerWithClient(client *redis.Client) *RedisHealthChecker {
	return &RedisHealthChecker{client: client}
}

func (c *RedisHealthChecker) Name() string {
	return "redis"
}

func (c *RedisHealthChecker) Check(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisHealthChecker) Close() error {
	return c.client.Close()
}

// DBHealthChecker pings a usage database (postgres or sqlite).
type DBHealthChecker struct {
	name string
	db   *sql.DB
}

func NewDBHealthChecker(name string, db *sql.DB) *DBHealthChecker {
	return &DBHealthChecker{name: name, db: db}
}

func (c *DBHealthChecker) Name() string {
	return c.name
}

func (c *DBHealthChecker) Check(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// CheckFunc adapts a function into a HealthChecker.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.CheckName }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// runHealthChecks executes all checks concurrently.
func runHealthChecks(ctx context.Context, checkers []HealthChecker) map[string]CheckResult {
	results := make(map[string]CheckResult)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, checker := range checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)

			result := CheckResult{
				Status:   "ok",
				Duration: time.Since(start).String(),
			}
			if err != nil {
				result.Status = "error"
				result.Error = err.Error()
			}

			mu.Lock()
			results[c.Name()] = result
			mu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}

// handleHealth reports provider reachability and breaker states. A failing
// provider degrades the status but never fails the probe.
func (h *Handler) handleHealth(c *gin.Context) {
	providers := make(map[string]string)
	breakers := map[string]string{}
	status := "healthy"

	if h.providers != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.checkTimeout)
		defer cancel()

		failures := h.providers.HealthCheck(ctx)
		for _, id := range h.router.AvailableProviders() {
			if err, failed := failures[id]; failed && err != nil {
				providers[id] = "unhealthy"
				status = "degraded"
			} else {
				providers[id] = "ok"
			}
		}
		breakers = h.providers.BreakerStates()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           status,
		"version":          h.version,
		"providers":        providers,
		"circuit_breakers": breakers,
	})
}

func (h *Handler) handleHealthLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) handleHealthReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.checkTimeout)
	defer cancel()

	results := runHealthChecks(ctx, h.checkers)

	status := HealthStatus{
		Status:  "ready",
		Checks:  results,
		Version: h.version,
	}

	httpStatus := http.StatusOK
	for _, result := range results {
		if result.Status != "ok" {
			status.Status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, status)
}
