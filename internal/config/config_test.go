package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/ComplyTrack/internal/config"
)

// validConfig returns a Config that passes Validate().
func validConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Database.Password = "secret"
	return cfg
}

func TestConfig_Validate_ValidConfig(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Validate_Failures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*config.Config)
		wantMsg string
	}{
		{"server port", func(c *config.Config) { c.Server.Port = 70000 }, "server.port"},
		{"server mode", func(c *config.Config) { c.Server.Mode = "prod" }, "server.mode"},
		{"database host", func(c *config.Config) { c.Database.Host = "" }, "database.host"},
		{"database port", func(c *config.Config) { c.Database.Port = -1 }, "database.port"},
		{"database user", func(c *config.Config) { c.Database.User = "" }, "database.user"},
		{"database name", func(c *config.Config) { c.Database.DBName = "" }, "database.db_name"},
		{"max conns", func(c *config.Config) { c.Database.MaxConns = 0 }, "database.max_conns"},
		{"min conns", func(c *config.Config) { c.Database.MinConns = 100 }, "database.min_conns"},
		{"redis addr", func(c *config.Config) { c.Redis.Addr = "" }, "redis.addr"},
		{"cache ttl", func(c *config.Config) { c.Redis.TemplateCacheTTL = 0 }, "template_cache_ttl"},
		{"kafka brokers", func(c *config.Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }, "kafka.brokers"},
		{"kafka group", func(c *config.Config) { c.Kafka.Enabled = true; c.Kafka.GroupID = "" }, "kafka.group_id"},
		{"timezone", func(c *config.Config) { c.Engine.Timezone = "Mars/Olympus" }, "engine.timezone"},
		{"reminder days", func(c *config.Config) { c.Engine.DefaultReminderDays = []int{7, -1} }, "default_reminder_days"},
		{"urgency window", func(c *config.Config) { c.Engine.UrgentDays = 40 }, "urgent_days"},
		{"page size", func(c *config.Config) { c.Engine.DefaultPageSize = 1000 }, "default_page_size"},
		{"cron", func(c *config.Config) { c.Scheduler.ReconcileCron = "every so often" }, "reconcile_cron"},
		{"concurrency", func(c *config.Config) { c.Scheduler.Concurrency = 0 }, "scheduler.concurrency"},
		{"publish rate", func(c *config.Config) { c.Scheduler.ReminderPublishRate = -1 }, "reminder_publish_rate"},
		{"log level", func(c *config.Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
		{"metrics namespace", func(c *config.Config) { c.Metrics.Enabled = true; c.Metrics.Namespace = "" }, "metrics.namespace"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestConfig_Validate_KafkaDisabledSkipsBrokers(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Kafka.Enabled = false
	cfg.Kafka.Brokers = nil
	assert.NoError(t, cfg.Validate())
}

func TestEngineConfig_Location(t *testing.T) {
	t.Parallel()

	loc, err := config.EngineConfig{}.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	_, err = config.EngineConfig{Timezone: "Nowhere/Invalid"}.Location()
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()

	dsn := config.DatabaseConfig{
		Host: "db", Port: 5432, User: "comply", Password: "p@ss/word", DBName: "complytrack", SSLMode: "disable",
	}.DSN()
	assert.Equal(t, "postgres://comply:p%40ss%2Fword@db:5432/complytrack?sslmode=disable", dsn)
}

//Personal.AI order the ending
