package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MQTTConfig MQTT 配置（通知广播，默认禁用）
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`    // 如 "tcp://localhost:1883"
	ClientID string `yaml:"client_id"` // 客户端 ID
	Username string `yaml:"username"`  // 用户名（可选）
	Password string `yaml:"password"`  // 密码（可选）
	Topic    string `yaml:"topic"`     // 发布主题
	QoS      byte   `yaml:"qos"`
}

// Config dorm-engine 配置
type Config struct {
	Store struct {
		Driver string `yaml:"driver"` // memory | postgres
	} `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`

	Ledger struct {
		Driver     string `yaml:"driver"` // memory | redis
		Key        string `yaml:"key"`
		MaxEntries int    `yaml:"max_entries"` // 0 表示不裁剪
	} `yaml:"ledger"`
	Redis RedisConfig `yaml:"redis"`

	Notify struct {
		Stream         string        `yaml:"stream"` // 空表示不发布到 Redis Stream
		MQTT           MQTTConfig    `yaml:"mqtt"`
		WebhookURL     string        `yaml:"webhook_url"`
		WebhookTimeout time.Duration `yaml:"webhook_timeout"`
	} `yaml:"notify"`

	Residence struct {
		DefaultMaxPasses int `yaml:"default_max_passes"`
	} `yaml:"residence"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Store.Driver = getEnv("STORE_DRIVER", "memory")
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "dorm")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "10"), 10)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Ledger.Driver = getEnv("LEDGER_DRIVER", "memory")
	cfg.Ledger.Key = getEnv("LEDGER_KEY", "dorm:notifications")
	cfg.Ledger.MaxEntries = parseInt(getEnv("LEDGER_MAX_ENTRIES", "500"), 500)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Notify.Stream = getEnv("NOTIFY_STREAM", "")
	cfg.Notify.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.Notify.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.Notify.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "dorm-engine")
	cfg.Notify.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.Notify.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.Notify.MQTT.Topic = getEnv("MQTT_TOPIC", "dorm/notifications")
	cfg.Notify.MQTT.QoS = byte(parseInt(getEnv("MQTT_QOS", "1"), 1))
	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", "")
	cfg.Notify.WebhookTimeout = parseDuration(getEnv("NOTIFY_WEBHOOK_TIMEOUT", "5s"), 5*time.Second)

	cfg.Residence.DefaultMaxPasses = parseInt(getEnv("DEFAULT_MAX_PASSES", "5"), 5)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile 先加载环境变量默认值，再用 YAML 文件覆盖
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验枚举取值
func (c *Config) Validate() error {
	c.Store.Driver = strings.ToLower(c.Store.Driver)
	c.Ledger.Driver = strings.ToLower(c.Ledger.Driver)

	switch c.Store.Driver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: must be 'memory' or 'postgres'", c.Store.Driver)
	}
	switch c.Ledger.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid LEDGER_DRIVER %q: must be 'memory' or 'redis'", c.Ledger.Driver)
	}
	if c.Residence.DefaultMaxPasses < 0 {
		return fmt.Errorf("DEFAULT_MAX_PASSES must be non-negative, got %d", c.Residence.DefaultMaxPasses)
	}
	if c.Notify.MQTT.QoS > 2 {
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2, got %d", c.Notify.MQTT.QoS)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
