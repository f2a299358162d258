package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultServerPort            = 8090
	DefaultServerMode            = "release"
	DefaultServerReadTimeout     = 10 * time.Second
	DefaultServerWriteTimeout    = 10 * time.Second
	DefaultServerShutdownTimeout = 15 * time.Second

	DefaultDBHost              = "localhost"
	DefaultDBPort              = 5432
	DefaultDBUser              = "comply"
	DefaultDBName              = "complytrack"
	DefaultDBSSLMode           = "disable"
	DefaultDBMaxConns          = 25
	DefaultDBMinConns          = 2
	DefaultDBConnMaxLifetime   = 30 * time.Minute
	DefaultDBConnMaxIdleTime   = 5 * time.Minute
	DefaultDBHealthCheckPeriod = time.Minute
	DefaultDBStatementTimeout  = 30 * time.Second

	DefaultRedisAddr             = "localhost:6379"
	DefaultRedisPoolSize         = 20
	DefaultRedisKeyPrefix        = "comply:"
	DefaultRedisDialTimeout      = 5 * time.Second
	DefaultRedisReadTimeout      = 3 * time.Second
	DefaultRedisWriteTimeout     = 3 * time.Second
	DefaultRedisTemplateCacheTTL = 5 * time.Minute
	DefaultRedisLockTTL          = 2 * time.Minute

	DefaultKafkaBroker       = "localhost:9092"
	DefaultKafkaClientID     = "complytrack"
	DefaultKafkaGroupID      = "complytrack-worker"
	DefaultKafkaTopicPrefix  = "comply."
	DefaultKafkaRequiredAcks = "all"
	DefaultKafkaCompression  = "snappy"
	DefaultKafkaBatchSize    = 100
	DefaultKafkaBatchTimeout = 50 * time.Millisecond
	DefaultKafkaMaxRetries   = 3
	DefaultKafkaRetryBackoff = 500 * time.Millisecond

	DefaultEngineTimezone         = "UTC"
	DefaultEngineUrgentDays       = 7
	DefaultEngineSoonDays         = 30
	DefaultEngineDefaultPageSize  = 20
	DefaultEngineMaxPageSize      = 100
	DefaultEngineOperationTimeout = 30 * time.Second

	DefaultReconcileCron         = "*/15 * * * *"
	DefaultReminderCron          = "0 * * * *"
	DefaultRegenerationCron      = "*/10 * * * *"
	DefaultSchedulerConcurrency  = 4
	DefaultRegenerationBatchSize = 200
	DefaultReminderPublishRate   = 50
	DefaultReminderPublishBurst  = 10
	DefaultJobTimeout            = 10 * time.Minute

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsNamespace = "complytrack"
	DefaultMetricsPath      = "/metrics"
)

// DefaultReminderDays is the reminder lead-time list used when a template
// carries none.
var DefaultReminderDays = []int{30, 14, 7, 1}

// ApplyDefaults fills every zero-value field in cfg with its default.
// Fields that have already been set are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.User == "" {
		cfg.Database.User = DefaultDBUser
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = DefaultDBSSLMode
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.MinConns == 0 {
		cfg.Database.MinConns = DefaultDBMinConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = DefaultDBConnMaxLifetime
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = DefaultDBConnMaxIdleTime
	}
	if cfg.Database.HealthCheckPeriod == 0 {
		cfg.Database.HealthCheckPeriod = DefaultDBHealthCheckPeriod
	}
	if cfg.Database.StatementTimeout == 0 {
		cfg.Database.StatementTimeout = DefaultDBStatementTimeout
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = DefaultRedisReadTimeout
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = DefaultRedisWriteTimeout
	}
	if cfg.Redis.TemplateCacheTTL == 0 {
		cfg.Redis.TemplateCacheTTL = DefaultRedisTemplateCacheTTL
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = DefaultRedisLockTTL
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.ClientID == "" {
		cfg.Kafka.ClientID = DefaultKafkaClientID
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.TopicPrefix == "" {
		cfg.Kafka.TopicPrefix = DefaultKafkaTopicPrefix
	}
	if cfg.Kafka.RequiredAcks == "" {
		cfg.Kafka.RequiredAcks = DefaultKafkaRequiredAcks
	}
	if cfg.Kafka.Compression == "" {
		cfg.Kafka.Compression = DefaultKafkaCompression
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = DefaultKafkaBatchSize
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = DefaultKafkaBatchTimeout
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = DefaultKafkaMaxRetries
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = DefaultKafkaRetryBackoff
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	if cfg.Engine.Timezone == "" {
		cfg.Engine.Timezone = DefaultEngineTimezone
	}
	if cfg.Engine.DefaultReminderDays == nil {
		cfg.Engine.DefaultReminderDays = append([]int(nil), DefaultReminderDays...)
	}
	if cfg.Engine.UrgentDays == 0 {
		cfg.Engine.UrgentDays = DefaultEngineUrgentDays
	}
	if cfg.Engine.SoonDays == 0 {
		cfg.Engine.SoonDays = DefaultEngineSoonDays
	}
	if cfg.Engine.DefaultPageSize == 0 {
		cfg.Engine.DefaultPageSize = DefaultEngineDefaultPageSize
	}
	if cfg.Engine.MaxPageSize == 0 {
		cfg.Engine.MaxPageSize = DefaultEngineMaxPageSize
	}
	if cfg.Engine.OperationTimeout == 0 {
		cfg.Engine.OperationTimeout = DefaultEngineOperationTimeout
	}

	// ── Scheduler ─────────────────────────────────────────────────────────────
	if cfg.Scheduler.ReconcileCron == "" {
		cfg.Scheduler.ReconcileCron = DefaultReconcileCron
	}
	if cfg.Scheduler.ReminderCron == "" {
		cfg.Scheduler.ReminderCron = DefaultReminderCron
	}
	if cfg.Scheduler.RegenerationCron == "" {
		cfg.Scheduler.RegenerationCron = DefaultRegenerationCron
	}
	if cfg.Scheduler.Concurrency == 0 {
		cfg.Scheduler.Concurrency = DefaultSchedulerConcurrency
	}
	if cfg.Scheduler.RegenerationBatchSize == 0 {
		cfg.Scheduler.RegenerationBatchSize = DefaultRegenerationBatchSize
	}
	if cfg.Scheduler.ReminderPublishRate == 0 {
		cfg.Scheduler.ReminderPublishRate = DefaultReminderPublishRate
	}
	if cfg.Scheduler.ReminderPublishBurst == 0 {
		cfg.Scheduler.ReminderPublishBurst = DefaultReminderPublishBurst
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = DefaultJobTimeout
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if len(cfg.Log.OutputPaths) == 0 {
		cfg.Log.OutputPaths = []string{"stdout"}
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}

//Personal.AI order the ending
