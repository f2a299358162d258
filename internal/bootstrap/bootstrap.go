// Package bootstrap assembles the obligation engine from configuration. Both
// binaries use it: complyctl for one-shot commands, the worker for the
// long-running scheduler and consumer.
package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	app "github.com/turtacn/ComplyTrack/internal/application/obligation"
	"github.com/turtacn/ComplyTrack/internal/config"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/database/postgres"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/database/postgres/repositories"
	redisinfra "github.com/turtacn/ComplyTrack/internal/infrastructure/database/redis"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ComplyTrack/pkg/errors"
)

// Engine holds every initialized component. Close releases them in reverse
// order of construction.
type Engine struct {
	Config *config.Config
	Logger logging.Logger

	Pool  *pgxpool.Pool
	Repo  *repositories.ObligationRepository
	Orgs  *repositories.OrganizationRepository
	Redis *redisinfra.Client

	// Producer is nil when Kafka is disabled.
	Producer  *kafka.Producer
	Publisher app.EventPublisher

	// Collector is nil when metrics are disabled.
	Collector     prometheus.MetricsCollector
	EngineMetrics *prometheus.EngineMetrics

	Service app.Service
	Jobs    *app.Jobs

	closers []func()
}

// New connects to PostgreSQL, Redis and, when enabled, Kafka, then wires the
// service and the job runner.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *Engine, err error) {
	if cfg == nil {
		return nil, errors.InvalidParam("config is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	e := &Engine{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	loc, err := cfg.Engine.Location()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "invalid engine timezone")
	}

	e.Pool, err = postgres.NewConnectionPool(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	e.addCloser(func() { postgres.Close(e.Pool) })
	e.Repo = repositories.NewObligationRepository(e.Pool, logger.Named("repository"))
	e.Orgs = repositories.NewOrganizationRepository(e.Pool, logger.Named("repository"))

	e.Redis, err = redisinfra.NewClient(cfg.Redis, logger)
	if err != nil {
		return nil, err
	}
	e.addCloser(func() { _ = e.Redis.Close() })
	cache := redisinfra.NewTemplateCache(e.Redis,
		redisinfra.WithTTL(cfg.Redis.TemplateCacheTTL),
		redisinfra.WithCacheLogger(logger.Named("cache")),
	)
	locker := redisinfra.NewLocker(e.Redis, redisinfra.WithWatchdog(true), redisinfra.WithLockLogger(logger.Named("lock")))

	e.Publisher = app.NewNopPublisher()
	if cfg.Kafka.Enabled {
		e.Producer, err = kafka.NewProducer(cfg.Kafka, logger)
		if err != nil {
			return nil, err
		}
		e.addCloser(func() { _ = e.Producer.Close() })
		e.Publisher = e.Producer
	}

	var metrics app.Metrics = app.NewNopMetrics()
	if cfg.Metrics.Enabled {
		e.Collector, err = prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return nil, err
		}
		e.EngineMetrics = prometheus.NewEngineMetrics(e.Collector)
		metrics = e.EngineMetrics
	}

	e.Service = app.NewService(e.Repo, e.Orgs, ServiceConfig(cfg.Engine, loc),
		app.WithLogger(logger.Named("obligation")),
		app.WithTemplateCache(cache),
		app.WithPublisher(e.Publisher),
		app.WithMetrics(metrics),
	)
	e.Jobs = app.NewJobs(e.Service, e.Repo, JobConfig(cfg), app.WithJobLogger(logger.Named("jobs")),
		app.WithJobPublisher(e.Publisher),
		app.WithJobMetrics(metrics),
		app.WithLocker(locker),
	)
	return e, nil
}

// ServiceConfig maps the engine section onto the service tunables.
func ServiceConfig(c config.EngineConfig, loc *time.Location) app.Config {
	return app.Config{
		Location:            loc,
		DefaultReminderDays: c.DefaultReminderDays,
		UrgentDays:          c.UrgentDays,
		SoonDays:            c.SoonDays,
		ReconcileOnRead:     c.ReconcileOnRead,
		DefaultPageSize:     c.DefaultPageSize,
		MaxPageSize:         c.MaxPageSize,
	}
}

// JobConfig maps the scheduler and redis sections onto the job tunables.
func JobConfig(cfg *config.Config) app.JobConfig {
	return app.JobConfig{
		Concurrency:       cfg.Scheduler.Concurrency,
		RatePerSecond:     cfg.Scheduler.ReminderPublishRate,
		Burst:             cfg.Scheduler.ReminderPublishBurst,
		LockTTL:           cfg.Redis.LockTTL,
		MarkOnDispatch:    cfg.Scheduler.MarkOnDispatch,
		RegenerationBatch: cfg.Scheduler.RegenerationBatchSize,
	}
}

// MigrationURL is the golang-migrate database URL.
func MigrationURL(cfg *config.Config) string {
	return cfg.Database.DSN()
}

// ReportPoolStats publishes connection pool gauges.
func (e *Engine) ReportPoolStats() {
	if e.EngineMetrics == nil || e.Pool == nil {
		return
	}
	st := e.Pool.Stat()
	e.EngineMetrics.SetPoolConns(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
}

func (e *Engine) addCloser(fn func()) {
	e.closers = append(e.closers, fn)
}

// Close releases every component. Safe to call more than once.
func (e *Engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

//Personal.AI order the ending
