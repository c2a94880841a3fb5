package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development"`
	Server      ServerConfig     `yaml:"server"`
	Log         LogConfig        `yaml:"log"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Store       StoreConfig      `yaml:"store"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	SQLite      SQLiteConfig     `yaml:"sqlite"`
	Chart       ChartConfig      `yaml:"chart"`
	Stream      StreamConfig     `yaml:"stream"`
	Cache       CacheConfig      `yaml:"cache"`
	Kafka       KafkaConfig      `yaml:"kafka"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"json"`
	Output string `yaml:"output" default:"stdout"`
	// Collector ships aggregated error logs to Kafka.log_topic.
	Collector struct {
		Enabled        bool          `yaml:"enabled"`
		FlushInterval  time.Duration `yaml:"flush_interval" default:"30s"`
		CountThreshold int           `yaml:"count_threshold" default:"100"`
	} `yaml:"collector"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" default:"/metrics"`
}

type StoreConfig struct {
	Type       string `yaml:"type" default:"clickhouse"` // clickhouse or sqlite
	InitSchema bool   `yaml:"init_schema"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"default"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"20"`
	MaxIdleConns     int           `yaml:"max_idle_conns" default:"10"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" default:"barfeed.db"`
}

type ChartConfig struct {
	DefaultLimit int `yaml:"default_limit" default:"500"`
	MaxLimit     int `yaml:"max_limit" default:"5000"`
	MaxRawRows   int `yaml:"max_raw_rows" default:"50000"`
	RateLimit    struct {
		PerSecond float64 `yaml:"per_second" default:"20"`
		Burst     int     `yaml:"burst" default:"40"`
	} `yaml:"rate_limit"`
}

type StreamConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" default:"1s"`
	QueryTimeout time.Duration `yaml:"query_timeout" default:"5s"`
	Autostart    bool          `yaml:"autostart"`
	WebSocket    struct {
		SendBuffer   int           `yaml:"send_buffer" default:"256"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"websocket"`
}

type CacheConfig struct {
	Type  string        `yaml:"type" default:"memory"` // memory, redis or none
	TTL   time.Duration `yaml:"ttl" default:"30s"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix" default:"barfeed:"`
	} `yaml:"redis"`
}

type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	LogTopic string   `yaml:"log_topic" default:"barfeed.logs"`
	Producer struct {
		RequiredAcks int           `yaml:"required_acks" default:"1"`
		Compression  string        `yaml:"compression" default:"snappy"`
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"producer"`
	Commands struct {
		Enabled    bool          `yaml:"enabled"`
		Topic      string        `yaml:"topic" default:"barfeed.stream.commands"`
		GroupID    string        `yaml:"group_id" default:"barfeed"`
		Workers    int           `yaml:"workers" default:"2"`
		BufferSize int           `yaml:"buffer_size" default:"128"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic"`
	} `yaml:"commands"`
}

// Load reads a YAML file, fills defaults and validates.
func Load(path string) (*Config, error) {
	return load(path, false)
}

// LoadWithEnv is Load with environment overrides applied before validation.
func LoadWithEnv(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, env bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if env {
		if err := c.applyEnv(); err != nil {
			return nil, err
		}
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("STORE_TYPE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("POLL_INTERVAL: %w", err)
		}
		c.Stream.PollInterval = d
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required when store.type is clickhouse")
		}
	case "sqlite":
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required when store.type is sqlite")
		}
	default:
		return fmt.Errorf("store.type must be 'clickhouse' or 'sqlite', got '%s'", c.Store.Type)
	}
	if c.Chart.DefaultLimit <= 0 || c.Chart.MaxLimit < c.Chart.DefaultLimit {
		return fmt.Errorf("chart.default_limit must be positive and not above chart.max_limit")
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("stream.poll_interval must be positive")
	}
	switch c.Cache.Type {
	case "memory", "none":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr is required when cache.type is redis")
		}
	default:
		return fmt.Errorf("cache.type must be 'memory', 'redis' or 'none', got '%s'", c.Cache.Type)
	}
	if c.Kafka.Commands.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka.commands is enabled")
	}
	if c.Log.Collector.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when log.collector is enabled")
	}
	return nil
}
