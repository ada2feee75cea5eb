package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "2", cfg.Business.DefaultAnnualRate)
	assert.Equal(t, "0 0 1 * * *", cfg.Business.AccrualCron)
	assert.Equal(t, 5, cfg.Business.MaxRetryCount)
	assert.Equal(t, "wealth_fund_event", cfg.Kafka.Topic.Fund)
	assert.Equal(t, "wealth_product_event", cfg.Kafka.Topic.Product)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  node_id: 7
mysql:
  host: db.internal
  port: 3307
  user: ledger
  password: secret
  database: wealth
kafka:
  enabled: true
  brokers:
    - k1:9092
    - k2:9092
business:
  default_annual_rate: "3.65"
  worker_pool_size: 8
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, int64(7), cfg.Server.NodeID)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "3.65", cfg.Business.DefaultAnnualRate)
	assert.Equal(t, 8, cfg.Business.WorkerPoolSize)
	// 文件没写的字段保持默认值
	assert.Equal(t, 1024, cfg.Business.WorkerQueueSize)
	assert.Equal(t,
		"ledger:secret@tcp(db.internal:3307)/wealth?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.MySQL.DSN())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("WEALTH_SERVER_PORT", "9100")
	t.Setenv("WEALTH_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeConfig(t, "business:\n  worker_pool_size: 0\n")
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "worker_pool_size")

	path = writeConfig(t, "kafka:\n  enabled: true\n  brokers: []\n")
	_, err = LoadConfig(path)
	assert.ErrorContains(t, err, "kafka.brokers")
}
