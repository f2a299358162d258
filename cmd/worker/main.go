// The worker runs the engine's periodic jobs, consumes reminder delivery
// acknowledgements and serves health checks and metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/turtacn/ComplyTrack/internal/bootstrap"
	"github.com/turtacn/ComplyTrack/internal/config"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/database/postgres"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/internal/infrastructure/scheduler"
	httpserver "github.com/turtacn/ComplyTrack/internal/interfaces/http"
	"github.com/turtacn/ComplyTrack/internal/interfaces/http/handlers"
	"github.com/turtacn/ComplyTrack/internal/interfaces/http/middleware"
)

// Build-time variables injected via ldflags.
var version = "dev"

const poolStatsInterval = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: environment only)")
	migrate := flag.Bool("migrate", false, "apply pending schema migrations before starting")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	defer func() { _ = logging.Sync(logger) }()

	if err := run(cfg, *configPath, *migrate, logger); err != nil {
		logger.Error("worker failed", logging.Err(err))
		_ = logging.Sync(logger)
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, migrate bool, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting worker",
		logging.String("version", version),
		logging.Bool("kafka", cfg.Kafka.Enabled),
		logging.Bool("metrics", cfg.Metrics.Enabled),
	)

	if configPath != "" {
		watchLogLevel(configPath, logger)
	}

	if migrate {
		if err := postgres.RunMigrations(bootstrap.MigrationURL(cfg)); err != nil {
			return err
		}
		logger.Info("schema migrated")
	}

	engine, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	loc, err := cfg.Engine.Location()
	if err != nil {
		return err
	}
	schedOpts := []scheduler.Option{scheduler.WithLocation(loc)}
	if engine.EngineMetrics != nil {
		schedOpts = append(schedOpts, scheduler.WithObserver(engine.EngineMetrics))
	}
	sched, err := scheduler.New(engine.Jobs, cfg.Scheduler, logger, schedOpts...)
	if err != nil {
		return err
	}

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer, err = startConsumer(ctx, cfg.Kafka, engine, logger)
		if err != nil {
			return err
		}
		defer func() { _ = consumer.Close() }()
	}

	srv := httpserver.NewServer(cfg.Server, newRouter(cfg, engine, logger), logger)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	sched.Start()
	go reportPoolStats(ctx, engine)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("ops server stopped", logging.Err(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler did not stop cleanly", logging.Err(err))
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("ops server did not stop cleanly", logging.Err(err))
	}
	logger.Info("worker stopped")
	return nil
}

// startConsumer provisions the topics and subscribes the delivery handler.
func startConsumer(ctx context.Context, cfg config.KafkaConfig, engine *bootstrap.Engine, logger logging.Logger) (*kafka.Consumer, error) {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger.Named("kafka"))
	if err != nil {
		return nil, err
	}
	err = tm.EnsureTopics(ctx, kafka.DefaultTopics(cfg.TopicPrefix))
	_ = tm.Close()
	if err != nil {
		return nil, err
	}

	var dlq kafka.DeadLetterWriter
	if cfg.EnableDLQ && engine.Producer != nil {
		dlq = engine.Producer
	}
	topic := cfg.TopicPrefix + kafka.TopicReminderDelivered
	consumer, err := kafka.NewConsumer(cfg, []string{topic}, dlq, logger.Named("kafka"))
	if err != nil {
		return nil, err
	}
	consumer.Subscribe(topic, kafka.ReminderDeliveredHandler(engine.Jobs))
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Close()
		return nil, err
	}
	return consumer, nil
}

func newRouter(cfg *config.Config, engine *bootstrap.Engine, logger logging.Logger) http.Handler {
	checkers := []handlers.HealthChecker{
		handlers.NewChecker("postgres", func(ctx context.Context) error {
			return postgres.HealthCheck(ctx, engine.Pool)
		}),
		handlers.NewChecker("redis", engine.Redis.Ping),
	}
	if cfg.Kafka.Enabled {
		brokers := cfg.Kafka.Brokers
		checkers = append(checkers, handlers.NewChecker("kafka", func(ctx context.Context) error {
			return kafka.Ping(ctx, brokers)
		}))
	}
	health := handlers.NewHealthHandler(version, checkers...)

	rc := httpserver.RouterConfig{
		Mode:        cfg.Server.Mode,
		Health:      health,
		MetricsPath: cfg.Metrics.Path,
		Logger:      logger.Named("http"),
		Logging:     middleware.DefaultLoggingConfig(),
	}
	if engine.EngineMetrics != nil {
		health.WithObserver(engine.EngineMetrics)
		rc.Recorder = engine.EngineMetrics
	}
	if engine.Collector != nil {
		rc.MetricsHandler = engine.Collector.Handler()
	}
	return httpserver.NewRouter(rc)
}

// watchLogLevel applies log level changes from the config file without a
// restart. Other settings need one.
func watchLogLevel(path string, logger logging.Logger) {
	lv, ok := logger.(logging.Leveler)
	if !ok {
		return
	}
	err := config.Watch(path, func(c *config.Config) {
		if c.Log.Level == lv.Level() {
			return
		}
		lv.SetLevel(c.Log.Level)
		logger.Info("log level changed", logging.String("level", c.Log.Level))
	}, func(err error) {
		logger.Warn("ignoring invalid config revision", logging.Err(err))
	})
	if err != nil {
		logger.Warn("config watch disabled", logging.Err(err))
	}
}

func reportPoolStats(ctx context.Context, engine *bootstrap.Engine) {
	t := time.NewTicker(poolStatsInterval)
	defer t.Stop()
	for {
		engine.ReportPoolStats()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

//Personal.AI order the ending
