// Command server runs the EduPredict risk monitor API.
//
// It loads the student cohort into an in-process registry, classifies every
// student under the current risk policy and serves the staff dashboard API.
// Registry refreshes and policy updates made by other instances arrive over
// the Redis event bus.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edupredict/risk-monitor/config"
	"github.com/edupredict/risk-monitor/internal/application/command"
	"github.com/edupredict/risk-monitor/internal/application/eventhandler"
	"github.com/edupredict/risk-monitor/internal/application/query"
	"github.com/edupredict/risk-monitor/internal/application/report"
	"github.com/edupredict/risk-monitor/internal/bootstrap"
	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/internal/infrastructure/external/reporting"
	"github.com/edupredict/risk-monitor/internal/infrastructure/messaging"
	"github.com/edupredict/risk-monitor/internal/infrastructure/persistence/redis"
	"github.com/edupredict/risk-monitor/internal/infrastructure/storage"
	httpapi "github.com/edupredict/risk-monitor/internal/interface/http"
	"github.com/edupredict/risk-monitor/internal/interface/http/handlers"
	"github.com/edupredict/risk-monitor/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. INFRASTRUCTURE
	// ─────────────────────────────────────────────────────────────────────────
	infra, err := bootstrap.Setup(ctx, "api")
	if err != nil {
		return err
	}
	defer infra.Close(context.Background())

	cfg := infra.Config
	log := infra.Log

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
	log.Info("risk policy loaded", logger.Int64("version", policies.Policy().Version))

	registry := student.NewRegistry(source, policies)
	ledger := intervention.NewLedger(infra.Interventions, registry, infra.Bus)

	var documents intervention.DocumentStore
	if cfg.Features.IsEnabled(config.FeatureDocumentUploads) {
		disk, err := storage.NewDiskStore(cfg.Storage.UploadDir, cfg.Storage.MaxUploadSize)
		if err != nil {
			return fmt.Errorf("failed to prepare upload dir: %w", err)
		}
		documents = disk
	}

	var overdue query.OverdueCounter
	if infra.Cache != nil {
		overdue = redis.NewOverdueCounter(infra.Cache)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REPORTING BACKEND
	// ─────────────────────────────────────────────────────────────────────────
	clientCfg := reporting.DefaultClientConfig(cfg.Reports.BaseURL)
	clientCfg.APIKey = cfg.Reports.APIKey
	clientCfg.Timeout = cfg.Reports.RequestTimeout
	clientCfg.RateLimiter.RequestsPerMinute = cfg.Reports.RateLimit
	clientCfg.RateLimiter.Burst = cfg.Reports.RateLimitBurst
	clientCfg.BreakerThreshold = cfg.Reports.CircuitBreakerThreshold
	clientCfg.BreakerTimeout = cfg.Reports.CircuitBreakerTimeout
	clientCfg.Logger = log
	reportClient, err := reporting.NewClient(clientCfg)
	if err != nil {
		return fmt.Errorf("failed to create reporting client: %w", err)
	}
	reports := report.NewCoordinator(reportClient, report.Config{Timeout: cfg.Reports.RequestTimeout}, infra.Bus, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION
	// ─────────────────────────────────────────────────────────────────────────
	drill := query.NewDrillDownHandler(registry, log)
	refresh := command.NewRefreshRegistryHandler(registry, infra.Bus, log)

	if stats, err := refresh.Handle(ctx, command.RefreshRegistryCommand{Trigger: "startup"}); err != nil {
		log.Error("initial registry load failed, serving not-ready until the next refresh", logger.Err(err))
	} else {
		log.Info("registry loaded",
			logger.Int("accepted", stats.Accepted),
			logger.Int("rejected", len(stats.Rejected)),
			logger.SnapshotVersion(stats.Version),
		)
	}

	activity := eventhandler.NewActivityFeed(eventhandler.DefaultFeedCapacity, log)
	if err := infra.Bus.SubscribeAll(activity.Handle); err != nil {
		return fmt.Errorf("failed to subscribe activity feed: %w", err)
	}
	dashboard := query.NewDashboardSummaryHandler(registry, ledger, overdue, cfg.Features.IsEnabled(config.FeatureDashboardInsights), log)
	for _, et := range []shared.EventType{shared.EventInterventionAssigned, shared.EventInterventionCompleted} {
		if err := infra.Bus.Subscribe(et, dashboard.InterventionChanged); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", et, err)
		}
	}
	if err := subscribeRemote(infra.Bus, refresh, policies, registry, cfg.Scheduler.JobTimeout, log); err != nil {
		return err
	}

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if infra.DB != nil {
		health.AddCheck("postgres", handlers.PingCheck(infra.DB))
	}
	if infra.Cache != nil {
		health.AddReadinessCheck("redis", handlers.PingCheck(infra.Cache))
	}
	health.AddReadinessCheck("registry", func(context.Context) error {
		if !registry.Loaded() {
			return errors.New("registry not loaded")
		}
		return nil
	})

	server := httpapi.NewServer(httpapi.ConfigFrom(cfg), httpapi.Dependencies{
		ListStudents:       query.NewListStudentsHandler(registry, drill),
		GetStudent:         query.NewGetStudentHandler(registry),
		DrillDown:          drill,
		ListInterventions:  query.NewListInterventionsHandler(registry, ledger),
		Dashboard:          dashboard,
		AdminStats:         query.NewAdminStatsHandler(registry, ledger),
		AssignIntervention: command.NewAssignInterventionHandler(ledger, documents, log),
		UpdateStatus:       command.NewUpdateInterventionStatusHandler(ledger, log),
		UpdateThresholds:   command.NewUpdateThresholdsHandler(policies, registry, log),
		RefreshRegistry:    refresh,
		Policies:           policies,
		Reports:            reports,
		Documents:          documents,
		Activity:           activity,
		Health:             health,
		Features:           cfg.Features,
		Logger:             log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. RUN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", logger.Duration("timeout", cfg.App.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		if err := reports.Close(shutdownCtx); err != nil {
			log.Warn("report requests did not settle", logger.Err(err))
		}
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// subscribeRemote applies refreshes and policy updates published by other
// instances. Local events are ignored since this process already applied
// them.
func subscribeRemote(
	bus shared.EventSubscriber,
	refresh *command.RefreshRegistryHandler,
	policies *risk.PolicyStore,
	registry *student.Registry,
	timeout time.Duration,
	log *logger.Logger,
) error {
	err := bus.Subscribe(shared.EventRegistryRefreshed, func(e shared.Event) error {
		if !messaging.IsRemote(e) {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		_, err := refresh.Handle(ctx, command.RefreshRegistryCommand{Trigger: "broadcast"})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to registry refreshes: %w", err)
	}

	err = bus.Subscribe(shared.EventRiskPolicyUpdated, func(e shared.Event) error {
		if !messaging.IsRemote(e) {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		changed, err := policies.Load(ctx)
		if err != nil {
			return err
		}
		if changed {
			stats := registry.Reclassify()
			log.Info("risk policy reloaded",
				logger.Int64("version", policies.Policy().Version),
				logger.SnapshotVersion(stats.Version),
			)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to policy updates: %w", err)
	}
	return nil
}
