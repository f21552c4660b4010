// Package main - точка входа для фоновых процессов (Worker) донорского хаба.
//
// Worker отвечает за периодические задачи:
//   - поиск доноров, у которых закончился период восстановления
//   - публикацию donor.eligibility_restored в шину событий
//
// При FEATURE_EVENT_BUS_REDIS события уходят в Redis, и их получают все
// экземпляры API и потребители уведомлений.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bloodlink/donor-hub/config"
	"github.com/bloodlink/donor-hub/internal/application/query"
	"github.com/bloodlink/donor-hub/internal/bootstrap"
	"github.com/bloodlink/donor-hub/internal/infrastructure/scheduler"
	"github.com/bloodlink/donor-hub/internal/infrastructure/scheduler/jobs"
	"github.com/bloodlink/donor-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := bootstrap.NewLogger(cfg).With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	log.Info("starting donor hub worker",
		logger.String("timezone", cfg.App.Timezone),
		logger.String("storage", string(cfg.Engine.Storage)),
	)

	if !cfg.Scheduler.Enabled || !cfg.Features.IsEnabled(config.FeatureEligibilityNotifier) {
		log.Warn("eligibility notifier disabled, nothing to do")
		return nil
	}

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
	// 3. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	schedule, err := scheduler.ParseSchedule(cfg.Scheduler.EligibilitySchedule)
	if err != nil {
		return fmt.Errorf("invalid SCHEDULER_ELIGIBILITY_SCHEDULE: %w", err)
	}

	sched := scheduler.New(scheduler.Config{
		Logger:       log,
		Timezone:     cfg.App.Location,
		TickInterval: cfg.Scheduler.TickInterval,
	})

	job := jobs.NewEligibilityRestoredJob(
		query.NewRestoredDonorsHandler(rt.Store),
		rt.Bus,
		nil,
		cfg.Scheduler.EligibilityWindow,
		log,
	)
	if err := sched.Register(job, schedule); err != nil {
		return fmt.Errorf("failed to register job: %w", err)
	}
	sched.OnJobComplete(func(r scheduler.JobResult) {
		if !r.Success {
			return
		}
		stats := job.LastStats()
		log.Debug("eligibility window processed",
			logger.Int("found", stats.Found),
			logger.Int("failed", stats.Failed),
		)
	})

	// Первый прогон сразу при старте: окно = EligibilityWindow.
	if _, err := sched.RunNow(ctx, job.Name()); err != nil {
		log.Error("initial eligibility run failed", logger.Err(err))
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("donor hub worker is running", logger.String("schedule", schedule.String()))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("received shutdown signal", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		return fmt.Errorf("scheduler stop: %w", err)
	}
	log.Info("shutdown completed successfully")
	return nil
}
