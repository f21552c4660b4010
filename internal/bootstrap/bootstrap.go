// Package bootstrap wires the infrastructure shared by the api and worker
// binaries: logger, storage, Redis, and the event bus.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/bloodlink/donor-hub/config"
	"github.com/bloodlink/donor-hub/internal/domain/request"
	"github.com/bloodlink/donor-hub/internal/domain/shared"
	"github.com/bloodlink/donor-hub/internal/infrastructure/messaging"
	"github.com/bloodlink/donor-hub/internal/infrastructure/persistence/memory"
	"github.com/bloodlink/donor-hub/internal/infrastructure/persistence/postgres"
	"github.com/bloodlink/donor-hub/internal/infrastructure/persistence/redis"
	"github.com/bloodlink/donor-hub/internal/interface/http/handlers"
	"github.com/bloodlink/donor-hub/pkg/logger"
)

// EventBus is a bus that owns resources.
type EventBus interface {
	shared.EventBus
	Close() error
}

// Runtime holds the wired infrastructure of one process.
type Runtime struct {
	Config *config.Config
	Log    *logger.Logger
	Store  request.Store
	Bus    EventBus
	Health *handlers.CompositeHealthChecker

	closers []func()
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug && level > logger.LevelDebug {
		level = logger.LevelDebug
	}
	return logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     level,
		Format:    cfg.Observability.LogFormat,
		AddCaller: true,
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("version", cfg.App.Version),
		logger.String("env", string(cfg.App.Environment)),
	)
}

// Open connects storage, Redis and the event bus. On error everything
// opened so far is closed again.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (rt *Runtime, err error) {
	rt = &Runtime{
		Config: cfg,
		Log:    log,
		Health: handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	for _, w := range cfg.Warnings() {
		log.Warn("config warning", logger.String("warning", w))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	switch cfg.Engine.Storage {
	case config.StorageMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		rt.Store = memory.NewStore()
	default:
		if err = rt.openPostgres(ctx); err != nil {
			return nil, err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	if cfg.RedisEnabled() {
		cache = rt.openRedis(ctx)
	}

	if cache != nil && cfg.Features.IsEnabled(config.FeatureDonorCache) {
		rt.Store = redis.NewDonorCache(rt.Store, cache, cfg.Redis.DonorCacheTTL, log)
		log.Info("donor cache enabled", logger.Duration("ttl", cfg.Redis.DonorCacheTTL))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	if err = rt.openBus(cache); err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) openPostgres(ctx context.Context) error {
	cfg := rt.Config.Database

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.URL
	pgCfg.MaxConns = int32(cfg.MaxConns)
	pgCfg.MinConns = int32(cfg.MinConns)
	pgCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	pgCfg.ConnectAttempts = cfg.ConnectAttempts

	rt.Log.Info("connecting to database...")
	conn, err := postgres.NewConnection(ctx, pgCfg, rt.Log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	rt.closers = append(rt.closers, func() {
		rt.Log.Info("closing database connection...")
		conn.Close()
	})

	if cfg.AutoMigrate {
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		rt.Log.Info("database schema is up to date")
	}

	rt.Store = postgres.NewStore(conn, rt.Log)
	rt.Health.AddCheck("postgres", handlers.PingCheck(conn.Ping))
	return nil
}

// openRedis returns nil when Redis is unreachable; the process then runs
// without cache and with an in-process bus.
func (rt *Runtime) openRedis(ctx context.Context) *redis.Cache {
	cfg := rt.Config.Redis

	rcfg := redis.DefaultConfig()
	rcfg.Host = cfg.Host
	rcfg.Port = cfg.Port
	rcfg.Password = cfg.Password
	rcfg.DB = cfg.DB
	rcfg.PoolSize = cfg.PoolSize
	rcfg.MinIdleConns = cfg.MinIdleConns
	rcfg.DialTimeout = cfg.DialTimeout
	rcfg.ReadTimeout = cfg.ReadTimeout
	rcfg.WriteTimeout = cfg.WriteTimeout

	rt.Log.Info("connecting to Redis...", logger.String("addr", rcfg.Addr()))
	cache, err := redis.NewCache(ctx, rcfg)
	if err != nil {
		rt.Log.Warn("failed to connect to Redis, continuing without it", logger.Err(err))
		return nil
	}
	rt.closers = append(rt.closers, func() {
		rt.Log.Info("closing Redis connection...")
		_ = cache.Close()
	})
	rt.Health.AddCheck("redis", handlers.PingCheck(cache.Ping))
	return cache
}

func (rt *Runtime) openBus(cache *redis.Cache) error {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.AsyncMode = true
	local.Logger = rt.Log

	if cache != nil && rt.Config.Features.IsEnabled(config.FeatureEventBusRedis) {
		bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
			Client:         messaging.NewGoRedisClient(cache.Client(), false),
			ChannelName:    rt.Config.Redis.EventChannel,
			LocalBusConfig: local,
			Logger:         rt.Log,
		})
		if err != nil {
			return fmt.Errorf("failed to start redis event bus: %w", err)
		}
		rt.Bus = bus
		rt.Log.Info("redis event bus started", logger.String("channel", rt.Config.Redis.EventChannel))
	} else {
		rt.Bus = messaging.NewInMemoryEventBus(local)
	}

	// The bus must close before the Redis client it borrows.
	bus := rt.Bus
	rt.closers = append(rt.closers, func() {
		rt.Log.Info("closing event bus...")
		_ = bus.Close()
	})
	return nil
}

// Close releases everything in reverse order of opening.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// SubscribeAudit logs every domain event at info level.
func SubscribeAudit(bus shared.EventSubscriber, log *logger.Logger) error {
	audit := log.With(logger.Component("audit"))
	return bus.SubscribeAll(func(e shared.Event) error {
		audit.Info("domain event",
			logger.String("event_type", string(e.EventType())),
			logger.String("aggregate_id", e.AggregateID()),
			logger.Time("occurred_at", e.OccurredAt()),
			logger.Any("payload", e.Payload()),
		)
		return nil
	})
}
