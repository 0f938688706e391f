package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felipepmaragno/agentrouter/internal/api"
	"github.com/felipepmaragno/agentrouter/internal/config"
	"github.com/felipepmaragno/agentrouter/internal/metrics"
	"github.com/felipepmaragno/agentrouter/internal/ratelimit"
	"github.com/felipepmaragno/agentrouter/internal/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const limiterPruneInterval = 10 * time.Minute

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the routing HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(parent context.Context, cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	podName := cfg.PodName
	if podName == "" {
		podName, _ = os.Hostname()
	}
	metrics.InitInstanceMetrics(podName, version)

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "agentrouter",
		Version:     version,
		Environment: cfg.Env,
		Instance:    podName,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.initUsage(ctx); err != nil {
		return err
	}

	checkers := []api.HealthChecker{}
	if a.db != nil {
		checkers = append(checkers, api.NewDBHealthChecker(a.dbName, a.db))
	}
	if cfg.RedisURL != "" {
		rc, err := api.NewRedisHealthChecker(cfg.RedisURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, rc.Close)
		checkers = append(checkers, rc)
	}

	limiter, err := newLimiter(ctx, cfg, log)
	if err != nil {
		return err
	}
	if c, ok := limiter.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}

	handler := api.NewHandler(api.HandlerConfig{
		Router:      a.router,
		Providers:   a.providers,
		Usage:       a.recorder,
		UsageReader: a.usageReader(),
		RateLimiter: limiter,
		Checkers:    checkers,
		Logger:      log,
		Version:     version,
	})
	api.NewAdminHandler(api.AdminConfig{
		Router:    a.router,
		Providers: a.providers,
		Costs:     a.costReader(),
		Token:     cfg.AdminToken,
		Logger:    log,
	}).Register(handler.Engine())

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

// newLimiter returns nil when rate limiting is disabled. With redis configured
// the window is shared across instances and sized to one second of traffic
// plus the burst.
func newLimiter(ctx context.Context, cfg *config.Config, log *zap.Logger) (ratelimit.Limiter, error) {
	if !cfg.RateLimitEnabled() {
		log.Info("rate limiting disabled")
		return nil, nil
	}

	if cfg.RedisURL != "" {
		limit := int(cfg.RateLimitRPS) + cfg.RateLimitBurst
		rl, err := ratelimit.NewRedisLimiter(cfg.RedisURL, limit, time.Second)
		if err != nil {
			return nil, err
		}
		log.Info("using redis rate limiter", zap.Int("limit_per_second", limit))
		return rl, nil
	}

	rl := ratelimit.NewMemoryLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go func() {
		ticker := time.NewTicker(limiterPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := rl.Prune(limiterPruneInterval); n > 0 {
					log.Debug("pruned idle rate limit buckets", zap.Int("removed", n))
				}
			}
		}
	}()
	log.Info("using in-memory rate limiter",
		zap.Float64("rps", cfg.RateLimitRPS),
		zap.Int("burst", cfg.RateLimitBurst),
	)
	return rl, nil
}
