// Package main - точка входа REST API донорского хаба.
//
// API обслуживает поиск доноров и жизненный цикл запросов на донацию.
// Фоновые задачи (уведомления о восстановлении) живут в cmd/worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bloodlink/donor-hub/config"
	"github.com/bloodlink/donor-hub/internal/application/command"
	"github.com/bloodlink/donor-hub/internal/application/query"
	"github.com/bloodlink/donor-hub/internal/bootstrap"
	httpapi "github.com/bloodlink/donor-hub/internal/interface/http"
	"github.com/bloodlink/donor-hub/internal/interface/http/handlers"
	"github.com/bloodlink/donor-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg).With(logger.Component("api"))
	defer func() { _ = log.Sync() }()

	log.Info("starting donor hub API",
		logger.String("storage", string(cfg.Engine.Storage)),
		logger.Any("features", cfg.Features.EnabledFeatures()),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ИНФРАСТРУКТУРА
	// ─────────────────────────────────────────────────────────────────────────
	rt, err := bootstrap.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := bootstrap.SubscribeAudit(rt.Bus, log); err != nil {
		return fmt.Errorf("failed to subscribe audit log: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПРИЛОЖЕНИЕ (CQRS)
	// ─────────────────────────────────────────────────────────────────────────
	lifecycle := command.NewLifecycle(rt.Store,
		command.WithPublisher(rt.Bus),
		command.WithLogger(log),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpCfg.APIKeyHeader = cfg.HTTP.APIKeyHeader
	httpCfg.Version = cfg.App.Version

	server := httpapi.NewServer(httpCfg, httpapi.Dependencies{
		Lifecycle:     lifecycle,
		SearchDonors:  query.NewSearchDonorsHandler(rt.Store, nil, log),
		GetRequest:    query.NewGetRequestHandler(rt.Store),
		Logger:        log,
		HealthChecker: rt.Health,
		APIKeyAuth:    handlers.NewAPIKeyAuth(cfg.HTTP.APIKeyHeader, cfg.HTTP.APIKeyHashes),
	})

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.Info("shutdown completed successfully")
	return nil
}
