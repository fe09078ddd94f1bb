package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"PatternScan/internal/domain/models"
	"PatternScan/pkg/logger"
	"PatternScan/pkg/util"
)

type Config struct {
	Environment string            `yaml:"environment" default:"development" validate:"required"`
	Log         logger.Config     `yaml:"log"`
	Paths       PathsConfig       `yaml:"paths"`
	Engine      EngineConfig      `yaml:"engine"`
	Provider    ProviderConfig    `yaml:"provider"`
	Cache       CacheConfig       `yaml:"cache"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Server      ServerConfig      `yaml:"server"`
	Markets     map[string]Market `yaml:"markets" validate:"dive"`
}

type PathsConfig struct {
	DataDir string `yaml:"data_dir" default:"data" validate:"required"`
	LogsDir string `yaml:"logs_dir" default:"logs" validate:"required"`
}

// CacheDir is where per-symbol bar files live.
func (p PathsConfig) CacheDir() string { return filepath.Join(p.DataDir, "cache") }

type EngineConfig struct {
	Multiplier    float64  `yaml:"multiplier" default:"1.25" validate:"gt=0"`
	ShortWindow   int      `yaml:"short_window" default:"20" validate:"gt=1"`
	LongWindow    int      `yaml:"long_window" default:"252" validate:"gtefield=ShortWindow"`
	MinThreshold  float64  `yaml:"min_threshold" default:"0.0025" validate:"gte=0"`
	MaxPatternLen int      `yaml:"max_pattern_len" default:"4" validate:"gte=1,lte=8"`
	EntryModel    string   `yaml:"entry_model" default:"next_open" validate:"oneof=next_open close"`
	Workers       int      `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
	Bars          int      `yaml:"bars" default:"1000" validate:"gte=1"`
	Interval      string   `yaml:"interval" default:"1d" validate:"oneof=1h 1d 1wk"`
	Holidays      []string `yaml:"holidays"`
}

type ProviderConfig struct {
	Type    string        `yaml:"type" default:"file" validate:"oneof=http clickhouse file"`
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	APIKey  string        `yaml:"api_key"`
	Dir     string        `yaml:"dir" default:"data/import"`
	Table   string        `yaml:"table" default:"bars"`
	Rate    float64       `yaml:"rate" default:"5" validate:"gt=0"` // requests per second
	Burst   int           `yaml:"burst" default:"5" validate:"gte=1"`
	Timeout time.Duration `yaml:"timeout" default:"15s"`
	Retry   RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	Attempts   int           `yaml:"attempts" default:"3" validate:"gte=1,lte=10"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"500ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
}

type CacheConfig struct {
	MemorySize int           `yaml:"memory_size" default:"512" validate:"gte=0"`
	TTL        time.Duration `yaml:"ttl" default:"10m"`
	Redis      struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"patternscan"`
	} `yaml:"redis"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"patternscan"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic" default:"patternscan.events"`
	RequiredAcks int      `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	Compression  string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"patternscan-feed"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
	DigestInterval time.Duration `yaml:"digest_interval" default:"1m"`
}

// LogsTopic receives the error digest.
func (k KafkaConfig) LogsTopic() string { return k.Topic + ".logs" }

type PostgresConfig struct {
	Enabled      bool          `yaml:"enabled"`
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLife  time.Duration `yaml:"conn_max_lifetime" default:"30m"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	MetricsPath     string        `yaml:"metrics_path" default:"/metrics"`
	CORS            bool          `yaml:"cors" default:"true"`
	AllowedOrigins  []string      `yaml:"allowed_origins"` // websocket origins; empty allows any
	StaleAfter      time.Duration `yaml:"stale_after" default:"36h"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
}

// Market is one configured market group. Zero-valued policy fields keep the
// built-in value for the group.
type Market struct {
	Exchange string   `yaml:"exchange"`
	Symbols  []string `yaml:"symbols" validate:"dive,required"`

	MinProb       float64 `yaml:"min_prob" validate:"gte=0,lte=100"`
	MinRRR        float64 `yaml:"min_rrr" validate:"gte=0"`
	MinCount      int     `yaml:"min_count" validate:"gte=0"`
	MaxCount      int     `yaml:"max_count" validate:"gte=0"`
	Risk          string  `yaml:"rm_family" validate:"omitempty,oneof=FIXED_PERCENT ATR"`
	StopPct       float64 `yaml:"sl_pct" validate:"gte=0"`
	TargetPct     float64 `yaml:"tp_pct" validate:"gte=0"`
	ATRStopMult   float64 `yaml:"k_sl" validate:"gte=0"`
	ATRTargetMult float64 `yaml:"k_tp" validate:"gte=0"`
	TrailActivate float64 `yaml:"trail_activate" validate:"gte=0"`
	TrailDistance float64 `yaml:"trail_distance" validate:"gte=0,lte=1"`
	MaxHold       int     `yaml:"max_hold" validate:"gte=0"`
}

// Load reads and parses a YAML configuration file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), then the YAML file, then applies
// environment overrides and validates again.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("PATTERNSCAN_ENV", &c.Environment)
	str("PATTERNSCAN_DATA_DIR", &c.Paths.DataDir)
	str("PATTERNSCAN_LOGS_DIR", &c.Paths.LogsDir)
	str("PATTERNSCAN_PROVIDER", &c.Provider.Type)
	str("PATTERNSCAN_PROVIDER_URL", &c.Provider.BaseURL)
	str("PATTERNSCAN_API_KEY", &c.Provider.APIKey)
	str("LOG_LEVEL", &c.Log.Level)

	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	if v := getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
		c.Postgres.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
		c.Cache.Redis.Enabled = true
	}
	str("REDIS_PASSWORD", &c.Cache.Redis.Password)
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	str("CLICKHOUSE_PASSWORD", &c.ClickHouse.Password)
	if v := getenv("PATTERNSCAN_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Engine.Workers = n
		}
	}
}

var validate = validator.New()

// Validate checks struct tags plus the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch {
	case c.Provider.Type == "http" && c.Provider.BaseURL == "":
		return fmt.Errorf("provider.base_url is required for the http provider")
	case c.Provider.Type == "clickhouse" && !c.ClickHouse.Enabled:
		return fmt.Errorf("provider.type clickhouse requires clickhouse.enabled")
	case c.Kafka.Enabled && len(c.Kafka.Brokers) == 0:
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	case c.Postgres.Enabled && c.Postgres.DSN == "":
		return fmt.Errorf("postgres.dsn is required when postgres is enabled")
	}
	for name, m := range c.Markets {
		if m.MaxCount > 0 && m.MaxCount < m.MinCount {
			return fmt.Errorf("markets.%s: max_count below min_count", name)
		}
	}
	if _, err := c.Policies(); err != nil {
		return err
	}
	return nil
}

// Policies merges the configured market groups over the built-in ones.
// Groups that are not built in start from the US template.
func (c *Config) Policies() (map[string]models.MarketPolicy, error) {
	out := models.DefaultPolicies()
	for name, m := range c.Markets {
		group := strings.ToUpper(name)
		p, ok := out[group]
		if !ok {
			p = out["US"]
			p.Group = group
			p.MaxCount = 0
		}
		m.apply(&p)
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("markets.%s: %w", name, err)
		}
		out[group] = p
	}
	return out, nil
}

func (m Market) apply(p *models.MarketPolicy) {
	if m.Exchange != "" {
		p.Exchange = m.Exchange
	}
	setF := func(dst *float64, v float64) {
		if v > 0 {
			*dst = v
		}
	}
	setI := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	setF(&p.MinProb, m.MinProb)
	setF(&p.MinRRR, m.MinRRR)
	setI(&p.MinCount, m.MinCount)
	setI(&p.MaxCount, m.MaxCount)
	if m.Risk != "" {
		p.Risk = models.RiskFamily(m.Risk)
	}
	setF(&p.StopPct, m.StopPct)
	setF(&p.TargetPct, m.TargetPct)
	setF(&p.ATRStopMult, m.ATRStopMult)
	setF(&p.ATRTargetMult, m.ATRTargetMult)
	setF(&p.TrailActivate, m.TrailActivate)
	setF(&p.TrailDistance, m.TrailDistance)
	setI(&p.MaxHold, m.MaxHold)
}

// Market returns the configured group case-insensitively.
func (c *Config) Market(group string) (Market, bool) {
	for name, m := range c.Markets {
		if strings.EqualFold(name, group) {
			return m, true
		}
	}
	return Market{}, false
}
