package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Config attendsync 服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig

	// Device 考勤终端（指纹/刷卡机）配置
	Device struct {
		IP           string // 终端 IP（为空表示未配置，轮询不启动）
		Port         int    // 终端通讯端口
		DeviceID     string // 终端逻辑标识（用于游标、映射、事件归属）
		CommPassword int    // 通讯密码（出厂默认为 0）
		TimeoutMs    int    // 连接/请求超时
	}

	// Sync 同步轮询配置
	Sync struct {
		Enabled             bool
		PollIntervalMs      int // 轮询基础间隔
		DuplicateWindowSec  int // 同类型重复打卡抑制窗口（0 = 关闭）
		SettleDelayMs       int // 断开后等待终端释放连接槽的时间
		DisconnectTimeoutMs int // 断开操作本身的超时
	}

	HTTP struct {
		Addr string
	}

	Events struct {
		Stream string // 打卡事件输出的 Redis Stream（为空表示不发布）
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量 + 默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "hospital")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Device.IP = getEnv("DEVICE_IP", "")
	cfg.Device.Port = getEnvInt("DEVICE_PORT", 4370)
	cfg.Device.DeviceID = getEnv("DEVICE_ID", "terminal-1")
	cfg.Device.CommPassword = getEnvInt("DEVICE_COMM_PASSWORD", 0)
	cfg.Device.TimeoutMs = getEnvInt("DEVICE_TIMEOUT_MS", 5000)

	cfg.Sync.Enabled = getEnvBool("SYNC_ENABLED", true)
	cfg.Sync.PollIntervalMs = getEnvInt("SYNC_POLL_INTERVAL_MS", 15000)
	cfg.Sync.DuplicateWindowSec = getEnvInt("SYNC_DUP_WINDOW_SEC", 60)
	cfg.Sync.SettleDelayMs = getEnvInt("SYNC_SETTLE_DELAY_MS", 1000)
	cfg.Sync.DisconnectTimeoutMs = getEnvInt("SYNC_DISCONNECT_TIMEOUT_MS", 3000)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8087")

	cfg.Events.Stream = getEnv("EVENT_STREAM", "attendance:scan:stream")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
