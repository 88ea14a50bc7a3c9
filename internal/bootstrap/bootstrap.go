// Package bootstrap builds the infrastructure shared by the API server and
// the worker: configuration, logging, tracing, persistence, cache and the
// event bus.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edupredict/risk-monitor/config"
	"github.com/edupredict/risk-monitor/internal/domain/intervention"
	"github.com/edupredict/risk-monitor/internal/domain/risk"
	"github.com/edupredict/risk-monitor/internal/domain/shared"
	"github.com/edupredict/risk-monitor/internal/domain/student"
	"github.com/edupredict/risk-monitor/internal/infrastructure/messaging"
	"github.com/edupredict/risk-monitor/internal/infrastructure/persistence/memory"
	"github.com/edupredict/risk-monitor/internal/infrastructure/persistence/postgres"
	"github.com/edupredict/risk-monitor/internal/infrastructure/persistence/redis"
	"github.com/edupredict/risk-monitor/internal/observability"
	"github.com/edupredict/risk-monitor/pkg/logger"
	"github.com/edupredict/risk-monitor/pkg/retry"
	"github.com/edupredict/risk-monitor/pkg/timeutil"
)

// Bus is the event bus handed to the application layer.
type Bus interface {
	shared.EventBus
	Close() error
}

// Infra holds the wired infrastructure. DB and Cache are nil when the
// corresponding backend is not configured.
type Infra struct {
	Config *config.Config
	Log    *logger.Logger

	DB    *postgres.Connection
	Cache *redis.Cache
	Bus   Bus

	// Students is the raw cohort source, before snapshot caching.
	Students      student.Source
	Interventions intervention.Store
	Policies      risk.PolicyRepository

	shutdownTracing func(context.Context) error
}

// Setup loads configuration and connects every backend. component names
// the binary in logs and traces.
func Setup(ctx context.Context, component string) (*Infra, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	log = log.With(logger.Component(component))

	if err := timeutil.SetLocation(cfg.App.Timezone); err != nil {
		return nil, err
	}

	log.Info("starting",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", timeutil.Location().String()),
	)

	infra := &Infra{Config: cfg, Log: log}
	infra.shutdownTracing = observability.InitTracing(ctx, log, component, cfg.App, cfg.Observability)

	if err := infra.setupPersistence(ctx); err != nil {
		infra.Close(context.Background())
		return nil, err
	}
	infra.setupCache(ctx)
	if err := infra.setupBus(component); err != nil {
		infra.Close(context.Background())
		return nil, err
	}

	return infra, nil
}

func (i *Infra) setupPersistence(ctx context.Context) error {
	cfg := i.Config
	if cfg.Database.URL == "" {
		i.Log.Warn("DATABASE_URL not set, using in-memory persistence")
		if cfg.Storage.StudentsFile != "" {
			i.Students = memory.NewFileSource(cfg.Storage.StudentsFile)
		} else {
			i.Students = memory.DemoStudents()
		}
		i.Interventions = memory.NewInterventionStore()
		return nil
	}

	i.Log.Info("connecting to database...")
	conn, err := postgres.Connect(ctx, cfg.Database, i.Log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	i.DB = conn
	health := conn.Health(ctx)
	i.Log.Info("database connection established",
		logger.Latency(health.PingLatency),
		logger.Int("max_conns", int(health.MaxConns)),
	)

	if cfg.Database.RunMigrations {
		if err := postgres.NewMigrator(conn, cfg.Database.SeedDemoData, i.Log).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		i.Log.Info("database schema is up to date")
	}

	i.Students = postgres.NewStudentRepository(conn)
	i.Interventions = postgres.NewInterventionRepository(conn)
	i.Policies = postgres.NewPolicyRepository(conn)
	return nil
}

// setupCache connects to Redis. A failure only disables caching.
func (i *Infra) setupCache(ctx context.Context) {
	if i.Config.Redis.Disabled {
		i.Log.Info("redis disabled")
		return
	}

	retrier := retry.CacheRetrier(func(attempt int, err error, delay time.Duration) {
		i.Log.Warn("redis not ready, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	})

	var cache *redis.Cache
	err := retrier.Do(ctx, func(context.Context) error {
		c, err := redis.NewCache(redis.ConfigFrom(i.Config.Redis))
		if err != nil {
			return err
		}
		cache = c
		return nil
	})
	if err != nil {
		i.Log.Warn("failed to connect to Redis, caching disabled", logger.Err(err))
		return
	}
	i.Cache = cache
	i.Log.Info("redis connection established")
}

func (i *Infra) setupBus(component string) error {
	local := messaging.DefaultInMemoryEventBusConfig()
	local.Logger = i.Log

	if i.Cache == nil {
		i.Bus = messaging.NewInMemoryEventBus(local)
		return nil
	}

	bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:         messaging.NewGoRedisClient(i.Cache.Client()),
		ChannelName:    "edupredict:events",
		InstanceID:     component + "-" + uuid.NewString()[:8],
		LocalBusConfig: local,
		Logger:         i.Log,
	})
	if err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	i.Bus = bus
	return nil
}

// Close releases everything Setup opened, in reverse order.
func (i *Infra) Close(ctx context.Context) {
	if i.Bus != nil {
		if err := i.Bus.Close(); err != nil {
			i.Log.Warn("failed to close event bus", logger.Err(err))
		}
	}
	if i.Cache != nil {
		if err := i.Cache.Close(); err != nil {
			i.Log.Warn("failed to close redis", logger.Err(err))
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
	if i.shutdownTracing != nil {
		if err := i.shutdownTracing(ctx); err != nil && !errors.Is(err, context.Canceled) {
			i.Log.Warn("failed to flush traces", logger.Err(err))
		}
	}
	i.Log.Sync()
}

// NewLogger builds the process logger from the observability settings.
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}
	return logger.New(logger.Options{
		Level:      level,
		Production: !strings.EqualFold(cfg.Observability.LogFormat, "console"),
		AddCaller:  true,
	})
}

// Thresholds converts the bootstrap risk settings.
func Thresholds(rc config.RiskConfig) risk.Thresholds {
	return risk.Thresholds{
		LowAttendance: rc.LowAttendance,
		LowSGPA:       rc.LowSGPA,
		HighRiskScore: rc.HighRiskScore,
		MediumBand:    rc.MediumBand,
		SGPAScale:     rc.SGPAScale,
		ScoreScale:    rc.ScoreScale,
	}
}
