package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  port: 8091
  mode: debug
database:
  host: "db.internal"
  port: 5433
  user: "comply"
  password: "secret"
  db_name: "complytrack"
  max_conns: 10
redis:
  addr: "redis.internal:6379"
  template_cache_ttl: 2m
kafka:
  enabled: true
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  group_id: "worker"
engine:
  timezone: "UTC"
  default_reminder_days: [60, 7]
  reconcile_on_read: true
scheduler:
  reconcile_cron: "*/5 * * * *"
  concurrency: 8
log:
  level: debug
  format: console
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, 8091, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 2*time.Minute, cfg.Redis.TemplateCacheTTL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []int{60, 7}, cfg.Engine.DefaultReminderDays)
	assert.True(t, cfg.Engine.ReconcileOnRead)
	assert.Equal(t, 8, cfg.Scheduler.Concurrency)
	assert.Equal(t, "*/5 * * * *", cfg.Scheduler.ReconcileCron)
	// defaulted
	assert.Equal(t, DefaultReminderCron, cfg.Scheduler.ReminderCron)
	assert.Equal(t, DefaultEngineUrgentDays, cfg.Engine.UrgentDays)
}

func TestLoad_FromFile_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_FromFile_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_FromFile_ValidationFailure(t *testing.T) {
	_, err := Load(writeConfig(t, "log:\n  level: chatty\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestLoad_EnvOverride_NestedKey(t *testing.T) {
	t.Setenv("COMPLY_DATABASE_HOST", "from-env")
	t.Setenv("COMPLY_ENGINE_URGENT_DAYS", "5")

	cfg, err := Load(writeConfig(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Database.Host)
	assert.Equal(t, 5, cfg.Engine.UrgentDays)
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	t.Setenv("COMPLY_DATABASE_USER", "env-user")
	t.Setenv("COMPLY_REDIS_ADDR", "env-redis:6379")
	t.Setenv("COMPLY_SCHEDULER_CONCURRENCY", "3")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.Database.User)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Scheduler.Concurrency)
	assert.Equal(t, DefaultDBHost, cfg.Database.Host)
}

func TestLoadOrEnv(t *testing.T) {
	cfg, err := LoadOrEnv("")
	require.NoError(t, err)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)

	cfg, err = LoadOrEnv(writeConfig(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 8091, cfg.Server.Port)
}

func TestMustLoad_Success(t *testing.T) {
	cfg := MustLoad(writeConfig(t, validConfigYAML))
	assert.NotNil(t, cfg)
}

func TestMustLoad_Panic(t *testing.T) {
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "none.yaml")) })
}

func TestWatch_InvokesOnChange(t *testing.T) {
	path := writeConfig(t, validConfigYAML)

	var mu sync.Mutex
	var got *Config
	require.NoError(t, Watch(path, func(c *Config) {
		mu.Lock()
		got = c
		mu.Unlock()
	}, nil))

	updated := validConfigYAML + "metrics:\n  namespace: reloaded\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.Metrics.Namespace == "reloaded"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "none.yaml"), func(*Config) {}, nil)
	assert.Error(t, err)
}

//Personal.AI order the ending
