package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/felipepmaragno/agentrouter/internal/api"
	"github.com/felipepmaragno/agentrouter/internal/cache"
	"github.com/felipepmaragno/agentrouter/internal/catalog"
	"github.com/felipepmaragno/agentrouter/internal/circuitbreaker"
	"github.com/felipepmaragno/agentrouter/internal/config"
	"github.com/felipepmaragno/agentrouter/internal/cost"
	"github.com/felipepmaragno/agentrouter/internal/logger"
	"github.com/felipepmaragno/agentrouter/internal/metrics"
	"github.com/felipepmaragno/agentrouter/internal/provider"
	"github.com/felipepmaragno/agentrouter/internal/provider/anthropic"
	"github.com/felipepmaragno/agentrouter/internal/provider/bedrock"
	"github.com/felipepmaragno/agentrouter/internal/provider/openai"
	"github.com/felipepmaragno/agentrouter/internal/queue"
	"github.com/felipepmaragno/agentrouter/internal/router"
	"github.com/felipepmaragno/agentrouter/internal/secrets"
	"github.com/felipepmaragno/agentrouter/internal/usage"
	"go.uber.org/zap"
)

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	providers *provider.Manager
	catalog   *catalog.Catalog
	store     cache.Store
	router    *router.Router

	tracker  *cost.InMemoryTracker
	db       *sql.DB
	dbName   string
	repo     usageRepository
	sinks    usage.Multi
	recorder *usage.Recorder

	closers []func() error
}

// usageRepository is implemented by the postgres and sqlite repositories.
type usageRepository interface {
	usage.Sink
	api.UsageReader
	api.CostReader
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: log, tracker: cost.NewInMemoryTracker()}

	if err := a.initProviders(ctx); err != nil {
		return nil, err
	}
	if err := a.initCatalog(); err != nil {
		return nil, err
	}
	if err := a.initCache(); err != nil {
		a.Close()
		return nil, err
	}

	r, err := router.New(router.Config{
		Catalog:   a.catalog,
		Cache:     a.store,
		Providers: a.providers,
		Logger:    log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.router = r

	return a, nil
}

func (a *app) initProviders(ctx context.Context) error {
	breakers := circuitbreaker.NewManager(circuitbreaker.DefaultConfig(),
		circuitbreaker.WithStateListener(func(name string, from, to circuitbreaker.State) {
			metrics.SetCircuitBreakerState(name, int(to))
			a.logger.Warn("circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}),
	)
	a.providers = provider.NewManager(breakers, a.logger)

	keys := secrets.ProviderKeys{OpenAI: a.cfg.OpenAIAPIKey, Anthropic: a.cfg.AnthropicAPIKey}
	if a.cfg.SecretsPrefix != "" {
		sm, err := secrets.NewAWSSecretsManager(ctx, a.cfg.AWSRegion)
		if err != nil {
			return err
		}
		stored, err := secrets.LoadProviderKeys(ctx, sm, a.cfg.SecretsPrefix)
		if err != nil {
			return fmt.Errorf("load provider keys: %w", err)
		}
		keys = keys.Merge(stored)
	}

	if keys.OpenAI != "" {
		a.providers.Register(openai.New(keys.OpenAI, a.cfg.OpenAIBaseURL, nil))
	}
	if keys.Anthropic != "" {
		a.providers.Register(anthropic.New(keys.Anthropic, a.cfg.AnthropicBaseURL, nil))
	}
	if a.cfg.BedrockEnabled {
		p, err := bedrock.New(ctx, a.cfg.AWSRegion)
		if err != nil {
			return err
		}
		a.providers.Register(p)
	}
	return nil
}

func (a *app) initCatalog() error {
	var err error
	switch a.cfg.CatalogSource {
	case config.CatalogFile:
		a.catalog, err = catalog.LoadFile(a.cfg.CatalogFile)
	case config.CatalogProviders:
		models := a.providers.Models()
		if len(models) == 0 {
			return errors.New("catalog source providers requires at least one configured provider")
		}
		a.catalog, err = catalog.New(models)
	default:
		a.catalog, err = catalog.New(catalog.Default())
	}
	if err != nil {
		return err
	}

	a.logger.Info("model catalog loaded",
		zap.String("source", a.cfg.CatalogSource),
		zap.Int("models", a.catalog.Len()),
	)
	return nil
}

func (a *app) initCache() error {
	cacheCfg := cache.Config{
		MaxSize:         a.cfg.CacheMaxSize,
		TTL:             a.cfg.CacheTTL,
		CleanupInterval: a.cfg.CacheCleanupInterval,
	}

	if a.cfg.CacheBackend == config.CacheRedis {
		store, err := cache.NewRedisStore(a.cfg.RedisURL, cacheCfg, a.logger)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)
		a.logger.Info("using redis routing cache")
		return nil
	}

	store := cache.NewMemoryStore(cacheCfg, cache.WithLogger(a.logger))
	store.Start(context.Background())
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Stop()
		return nil
	})
	a.logger.Info("using in-memory routing cache")
	return nil
}

// initUsage wires the usage sinks: the configured database, or the bounded
// in-memory tracker when there is none, plus the queue.
func (a *app) initUsage(ctx context.Context) error {
	if err := a.openUsageDB(ctx); err != nil {
		return err
	}
	a.sinks = usage.Multi{a.localSink()}

	if a.cfg.UsageQueueURL != "" {
		q, err := queue.NewSQSQueue(ctx, a.cfg.AWSRegion, a.cfg.UsageQueueURL, a.logger)
		if err != nil {
			return err
		}
		a.sinks = append(a.sinks, q)
		a.logger.Info("publishing usage to sqs", zap.String("queue_url", a.cfg.UsageQueueURL))
	}

	a.recorder = usage.NewRecorder(a.sinks, a.logger, usage.RecorderConfig{
		Timeout:    a.cfg.UsageTimeout,
		BufferSize: a.cfg.UsageBufferSize,
	})
	if a.cfg.UsageAsync {
		a.recorder.Start()
	}
	return nil
}

func (a *app) openUsageDB(ctx context.Context) error {
	switch {
	case a.cfg.DatabaseURL != "":
		db, err := usage.OpenPostgres(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		a.db, a.dbName = db, "postgres"
		a.repo = usage.NewPostgresRepository(db)
	case a.cfg.SQLitePath != "":
		db, err := usage.OpenSQLite(ctx, a.cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.db, a.dbName = db, "sqlite"
		a.repo = usage.NewSQLiteRepository(db)
	default:
		return nil
	}

	a.closers = append(a.closers, a.db.Close)
	a.logger.Info("usage database ready", zap.String("driver", a.dbName))
	return nil
}

// localStore is the store this instance writes usage to and reads it back from.
// The database wins so every instance reports the same totals.
func (a *app) localStore() usageRepository {
	if a.repo != nil {
		return a.repo
	}
	return a.tracker
}

func (a *app) localSink() usage.Sink { return a.localStore() }

func (a *app) usageReader() api.UsageReader { return a.localStore() }

func (a *app) costReader() api.CostReader { return a.localStore() }

// Close stops the recorder first so queued usage is flushed before storage closes.
func (a *app) Close() {
	if a.recorder != nil {
		a.recorder.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
