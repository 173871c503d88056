package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Version     string `yaml:"version" default:"v0.1" validate:"required"`
	StateDir    string `yaml:"state_dir" default:"runs" validate:"required"`

	Log        LogConfig        `yaml:"log"`
	Listener   ListenerConfig   `yaml:"listener"`
	Detectors  DetectorConfig   `yaml:"detectors"`
	Binance    BinanceConfig    `yaml:"binance"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	Server     ServerConfig     `yaml:"server"`
	Relay      RelayConfig      `yaml:"relay"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout" validate:"required"`
}

type ListenerConfig struct {
	Assets      []string      `yaml:"assets" validate:"required,min=1,dive,required"`
	AnchorAsset string        `yaml:"anchor_asset"`
	Cadence     time.Duration `yaml:"cadence" default:"60s"`
	LongWindow  int           `yaml:"long_window" default:"30" validate:"gte=2"`
	StaleAfter  time.Duration `yaml:"stale_after" default:"30s"`
	Source      string        `yaml:"source" default:"rest" validate:"oneof=rest stream"`
}

type DetectorConfig struct {
	BreakoutThreshold float64 `yaml:"breakout_threshold" default:"0.02" validate:"gt=0"`
	BandWidth         float64 `yaml:"band_width" default:"0.015" validate:"gte=0"`
}

type BinanceConfig struct {
	RestURL        string        `yaml:"rest_url" default:"https://api.binance.com" validate:"url"`
	StreamURL      string        `yaml:"stream_url" default:"wss://stream.binance.com:9443" validate:"url"`
	Timeout        time.Duration `yaml:"timeout" default:"10s"`
	RateLimit      float64       `yaml:"rate_limit" default:"10" validate:"gt=0"`
	Burst          int           `yaml:"burst" default:"1" validate:"gte=1"`
	MaxAge         time.Duration `yaml:"max_age" default:"2m"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
}

type WatchdogConfig struct {
	Gap          time.Duration `yaml:"gap" default:"300s"`
	PollInterval time.Duration `yaml:"poll_interval" default:"5s"`
	// MetricsPort serves /metrics in loop mode; zero disables it.
	MetricsPort int `yaml:"metrics_port" validate:"gte=0,lte=65535"`
}

type ServerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	RateLimit       float64       `yaml:"rate_limit" default:"20" validate:"gte=0"`
	Burst           int           `yaml:"burst" default:"40" validate:"gte=0"`
}

type RelayConfig struct {
	Backend      string        `yaml:"backend" default:"kafka" validate:"oneof=kafka clickhouse redis"`
	BatchSize    int           `yaml:"batch_size" default:"100" validate:"gte=1"`
	PollInterval time.Duration `yaml:"poll_interval" default:"2s"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic" default:"regime-events"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"1s"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"producer"`
}

type ClickHouseConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port" default:"9000"`
	Database     string        `yaml:"database" default:"regimedesk"`
	Table        string        `yaml:"table" default:"spine_events"`
	User         string        `yaml:"user" default:"default"`
	Password     string        `yaml:"password"`
	UseHTTP      bool          `yaml:"use_http"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

type RedisConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"regimedesk"`
	Stream   string `yaml:"stream" default:"spine"`
	MaxLen   int64  `yaml:"max_len" default:"100000"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Parse(b)
	if err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Parse decodes YAML and fills zero-valued fields from `default` tags.
// It does not validate.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REGIMEDESK_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("REGIMEDESK_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("REGIMEDESK_LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("REGIMEDESK_ASSETS"); v != "" {
		c.Listener.Assets = splitList(v)
	}
	if v := os.Getenv("REGIMEDESK_SOURCE"); v != "" {
		c.Listener.Source = v
	}
	if v := os.Getenv("REGIMEDESK_WATCHDOG_GAP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Watchdog.Gap = d
		}
	}
	if v := os.Getenv("RELAY_BACKEND"); v != "" {
		c.Relay.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = p
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Listener.Cadence < time.Minute || c.Listener.Cadence%time.Minute != 0 {
		return fmt.Errorf("listener.cadence must be a positive multiple of 1m, got %s", c.Listener.Cadence)
	}
	if c.Listener.AnchorAsset != "" && !contains(c.Listener.Assets, c.Listener.AnchorAsset) {
		return fmt.Errorf("listener.anchor_asset %q is not in listener.assets", c.Listener.AnchorAsset)
	}
	if c.Watchdog.Gap <= 0 {
		return fmt.Errorf("watchdog.gap must be positive")
	}
	return nil
}

// ValidateRelay checks the settings of the configured relay backend.
func (c *Config) ValidateRelay() error {
	switch c.Relay.Backend {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required")
		}
	case "redis":
		if c.Redis.Stream == "" {
			return fmt.Errorf("redis.stream is required")
		}
	default:
		return fmt.Errorf("relay.backend must be 'kafka', 'clickhouse' or 'redis', got '%s'", c.Relay.Backend)
	}
	return nil
}

// BaseDir is the versioned state directory shared by listener, watchdog and relay.
func (c *Config) BaseDir() string {
	return filepath.Join(c.StateDir, c.Version)
}

// Anchor returns the asset used as correlation reference.
func (c *Config) Anchor() string {
	if c.Listener.AnchorAsset != "" {
		return c.Listener.AnchorAsset
	}
	if len(c.Listener.Assets) > 0 {
		return c.Listener.Assets[0]
	}
	return ""
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
