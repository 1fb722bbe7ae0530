package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "hospital", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "", cfg.Device.IP)
	assert.Equal(t, 4370, cfg.Device.Port)
	assert.Equal(t, "terminal-1", cfg.Device.DeviceID)
	assert.Equal(t, 0, cfg.Device.CommPassword)
	assert.Equal(t, 5000, cfg.Device.TimeoutMs)

	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, 15000, cfg.Sync.PollIntervalMs)
	assert.Equal(t, 60, cfg.Sync.DuplicateWindowSec)
	assert.Equal(t, 1000, cfg.Sync.SettleDelayMs)
	assert.Equal(t, 3000, cfg.Sync.DisconnectTimeoutMs)

	assert.Equal(t, ":8087", cfg.HTTP.Addr)
	assert.Equal(t, "attendance:scan:stream", cfg.Events.Stream)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("DEVICE_IP", "10.0.0.21")
	os.Setenv("DEVICE_PORT", "8000")
	os.Setenv("DEVICE_COMM_PASSWORD", "123456")
	os.Setenv("SYNC_ENABLED", "false")
	os.Setenv("SYNC_POLL_INTERVAL_MS", "30000")
	os.Setenv("SYNC_DUP_WINDOW_SEC", "120")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	// 验证环境变量覆盖
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "10.0.0.21", cfg.Device.IP)
	assert.Equal(t, 8000, cfg.Device.Port)
	assert.Equal(t, 123456, cfg.Device.CommPassword)
	assert.False(t, cfg.Sync.Enabled)
	assert.Equal(t, 30000, cfg.Sync.PollIntervalMs)
	assert.Equal(t, 120, cfg.Sync.DuplicateWindowSec)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 清理环境变量
	os.Clearenv()
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	os.Clearenv()
	os.Setenv("DEVICE_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4370, cfg.Device.Port)

	os.Clearenv()
}
