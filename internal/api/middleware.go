package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/metrics"
	"github.com/felipepmaragno/agentrouter/internal/ratelimit"
	"github.com/felipepmaragno/agentrouter/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-ID"
	headerClientID  = "X-Client-ID"
)

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", requestID),
			zap.Duration("latency", time.Since(start)),
		}
		if traceID := telemetry.GetTraceID(c.Request.Context()); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Warn("request", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}

func httpMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.IncrementActiveConnections()
		defer metrics.DecrementActiveConnections()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()))
	}
}

// clientID identifies the caller for rate limiting: the X-Client-ID header
// when present, the client IP otherwise.
func clientID(c *gin.Context) string {
	if id := c.GetHeader(headerClientID); id != "" {
		return id
	}
	return c.ClientIP()
}

func rateLimit(limiter ratelimit.Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := clientID(c)

		res, err := limiter.Allow(c.Request.Context(), id)
		if err != nil {
			logger.Error("rate limiter error", zap.String("client_id", id), zap.Error(err))
			writeError(c, http.StatusInternalServerError, "Internal server error")
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", res.ResetAt.UTC().Format(time.RFC3339))

		if !res.Allowed {
			metrics.RecordRateLimitHit(id)
			logger.Warn("rate limit exceeded",
				zap.String("client_id", id),
				zap.String("path", c.Request.URL.Path),
			)
			writeError(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		c.Next()
	}
}
