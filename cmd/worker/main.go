// Command worker runs the periodic jobs of the EduPredict risk monitor:
//
//   - reloading the student cohort and broadcasting the new snapshot
//   - counting pending interventions that are past their due date
//
// Several workers may run side by side. With Redis available each job run
// is guarded by a distributed lock so only one of them does the work.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/edupredict/risk-monitor/internal/application/command"
	"github.com/edupredict/risk-monitor/internal/bootstrap"
	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/internal/infrastructure/persistence/redis"
	"github.com/edupredict/risk-monitor/internal/infrastructure/scheduler"
	"github.com/edupredict/risk-monitor/internal/infrastructure/scheduler/jobs"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. INFRASTRUCTURE
	// ─────────────────────────────────────────────────────────────────────────
	infra, err := bootstrap.Setup(ctx, "worker")
	if err != nil {
		return err
	}
	defer infra.Close(context.Background())

	cfg := infra.Config
	log := infra.Log

	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, nothing to do")
		return nil
	}
	if infra.DB == nil {
		log.Warn("worker running without a database, interventions are process-local")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. DOMAIN
	// ─────────────────────────────────────────────────────────────────────────
	source := infra.Students
	if infra.Cache != nil {
		source = redis.NewCachedSource(source, infra.Cache, log)
	}

	policies, err := risk.NewPolicyStore(bootstrap.Thresholds(cfg.Risk), infra.Policies, infra.Bus)
	if err != nil {
		return fmt.Errorf("invalid risk policy: %w", err)
	}
	if _, err := policies.Load(ctx); err != nil {
		return fmt.Errorf("failed to load risk policy: %w", err)
	}

	registry := student.NewRegistry(source, policies)
	ledger := intervention.NewLedger(infra.Interventions, registry, infra.Bus)
	refresh := command.NewRefreshRegistryHandler(registry, infra.Bus, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.SchedulerConfig{
		Logger:     log,
		JobTimeout: cfg.Scheduler.JobTimeout,
		RunOnStart: true,
	}

	var counter jobs.OverdueCountWriter
	if infra.Cache != nil {
		schedCfg.Locker = infra.Cache
		schedCfg.LockHeld = func(err error) bool { return errors.Is(err, redis.ErrLockHeld) }
		counter = redis.NewOverdueCounter(infra.Cache)
	}

	sched := scheduler.NewScheduler(schedCfg)

	if err := sched.Register(
		jobs.NewRefreshRegistryJob(refresh, log),
		scheduler.Every(cfg.Scheduler.RegistryRefreshInterval),
	); err != nil {
		return fmt.Errorf("failed to register refresh job: %w", err)
	}
	if err := sched.Register(
		jobs.NewOverdueInterventionsJob(ledger, counter, log),
		scheduler.EveryAligned(cfg.Scheduler.OverdueScanInterval),
	); err != nil {
		return fmt.Errorf("failed to register overdue job: %w", err)
	}

	for _, job := range sched.ListJobs() {
		log.Info("job registered",
			logger.String("job", job.Name),
			logger.String("schedule", job.Schedule),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. RUN
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	<-ctx.Done()
	log.Info("received shutdown signal")

	if err := sched.Stop(); err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
		return err
	}

	m := sched.Metrics().Snapshot()
	log.Info("shutdown completed",
		logger.Int64("executions", m.TotalExecutions),
		logger.Int64("failures", m.TotalFailures),
		logger.Duration("avg_duration", m.AverageDuration),
	)
	return nil
}
