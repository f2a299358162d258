// Package config defines all configuration structures for ComplyTrack.
// No I/O or parsing logic lives here, only plain data types and validation.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds the ops HTTP server tunables (health, readiness, metrics).
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	DBName            string        `mapstructure:"db_name"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int           `mapstructure:"max_conns"`
	MinConns          int           `mapstructure:"min_conns"`
	ConnMaxLifetime   time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime   time.Duration `mapstructure:"conn_max_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	StatementTimeout  time.Duration `mapstructure:"statement_timeout"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr             string        `mapstructure:"addr"`
	Password         string        `mapstructure:"password"`
	DB               int           `mapstructure:"db"`
	PoolSize         int           `mapstructure:"pool_size"`
	MinIdleConns     int           `mapstructure:"min_idle_conns"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	KeyPrefix        string        `mapstructure:"key_prefix"`
	TemplateCacheTTL time.Duration `mapstructure:"template_cache_ttl"`
	LockTTL          time.Duration `mapstructure:"lock_ttl"`
}

// KafkaConfig holds Apache Kafka producer/consumer parameters.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	ClientID     string        `mapstructure:"client_id"`
	GroupID      string        `mapstructure:"group_id"`
	TopicPrefix  string        `mapstructure:"topic_prefix"`
	RequiredAcks string        `mapstructure:"required_acks"` // "none" | "one" | "all"
	Compression  string        `mapstructure:"compression"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	EnableDLQ    bool          `mapstructure:"enable_dlq"`
}

// EngineConfig holds the obligation engine's behavioural settings.
type EngineConfig struct {
	// Timezone is the IANA zone used to decide what "today" is.
	Timezone            string        `mapstructure:"timezone"`
	DefaultReminderDays []int         `mapstructure:"default_reminder_days"`
	UrgentDays          int           `mapstructure:"urgent_days"`
	SoonDays            int           `mapstructure:"soon_days"`
	ReconcileOnRead     bool          `mapstructure:"reconcile_on_read"`
	DefaultPageSize     int           `mapstructure:"default_page_size"`
	MaxPageSize         int           `mapstructure:"max_page_size"`
	OperationTimeout    time.Duration `mapstructure:"operation_timeout"`
}

// Location loads the configured reporting time zone.
func (e EngineConfig) Location() (*time.Location, error) {
	if e.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(e.Timezone)
}

// SchedulerConfig holds the worker's periodic job settings.
type SchedulerConfig struct {
	ReconcileCron         string        `mapstructure:"reconcile_cron"`
	ReminderCron          string        `mapstructure:"reminder_cron"`
	RegenerationCron      string        `mapstructure:"regeneration_cron"`
	Concurrency           int           `mapstructure:"concurrency"`
	RegenerationBatchSize int           `mapstructure:"regeneration_batch_size"`
	ReminderPublishRate   float64       `mapstructure:"reminder_publish_rate"`
	ReminderPublishBurst  int           `mapstructure:"reminder_publish_burst"`
	JobTimeout            time.Duration `mapstructure:"job_timeout"`
	// MarkOnDispatch marks reminders triggered once published instead of
	// waiting for a delivery acknowledgement.
	MarkOnDispatch bool `mapstructure:"mark_on_dispatch"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"` // "json" | "console"
	OutputPaths []string `mapstructure:"output_paths"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("config: database.min_conns %d must be within [0, max_conns]", c.Database.MinConns)
	}

	// Redis
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}
	if c.Redis.TemplateCacheTTL <= 0 {
		return fmt.Errorf("config: redis.template_cache_ttl must be positive")
	}

	// Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("config: kafka.group_id is required")
		}
	}

	// Engine
	if _, err := c.Engine.Location(); err != nil {
		return fmt.Errorf("config: engine.timezone %q is invalid: %w", c.Engine.Timezone, err)
	}
	for _, d := range c.Engine.DefaultReminderDays {
		if d < 0 {
			return fmt.Errorf("config: engine.default_reminder_days must not contain negative values, got %d", d)
		}
	}
	if c.Engine.UrgentDays < 0 || c.Engine.SoonDays < c.Engine.UrgentDays {
		return fmt.Errorf("config: engine.urgent_days (%d) must be >= 0 and <= soon_days (%d)", c.Engine.UrgentDays, c.Engine.SoonDays)
	}
	if c.Engine.DefaultPageSize < 1 || c.Engine.DefaultPageSize > c.Engine.MaxPageSize {
		return fmt.Errorf("config: engine.default_page_size %d must be within [1, max_page_size]", c.Engine.DefaultPageSize)
	}

	// Scheduler
	for name, spec := range map[string]string{
		"reconcile_cron":    c.Scheduler.ReconcileCron,
		"reminder_cron":     c.Scheduler.ReminderCron,
		"regeneration_cron": c.Scheduler.RegenerationCron,
	} {
		if _, err := cronParser.Parse(spec); err != nil {
			return fmt.Errorf("config: scheduler.%s %q is invalid: %w", name, spec, err)
		}
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("config: scheduler.concurrency must be >= 1, got %d", c.Scheduler.Concurrency)
	}
	if c.Scheduler.ReminderPublishRate <= 0 {
		return fmt.Errorf("config: scheduler.reminder_publish_rate must be positive")
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("config: metrics.namespace is required when metrics are enabled")
	}

	return nil
}

// DSN returns the pgx connection string for the database section.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

//Personal.AI order the ending
