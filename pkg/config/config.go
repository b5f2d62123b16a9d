package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/services/rotation"
	"MarketBoard/internal/services/signals"
	"MarketBoard/internal/usecase"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Log struct {
		Level   string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format  string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output  string `yaml:"output" default:"stdout"`
		Collect struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collect"`
	} `yaml:"log"`

	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"500ms"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		RateLimit       RateLimit     `yaml:"rate_limit"` // per client address
	} `yaml:"server"`

	Market      usecase.AggregatorOptions `yaml:"market"`
	Instruments []models.Instrument       `yaml:"instruments" validate:"required,min=1,dive"`
	Signals     signals.Config            `yaml:"signals"`

	Cadence struct {
		MIC                string  `yaml:"mic" default:"xtse"`
		OffHoursMultiplier float64 `yaml:"off_hours_multiplier" default:"0.5" validate:"gt=0,lte=1"`
		WeekendMultiplier  float64 `yaml:"weekend_multiplier" default:"0.25" validate:"gt=0,lte=1"`
	} `yaml:"cadence"`

	Rotation struct {
		Timezone string          `yaml:"timezone" default:"America/Toronto"`
		Groups   []RotationGroup `yaml:"groups" validate:"dive"`
	} `yaml:"rotation"`

	Providers struct {
		Finnhub    FinnhubConfig     `yaml:"finnhub"`
		Rest       []RestProvider    `yaml:"rest" validate:"dive"`
		KafkaFeeds []KafkaFeedConfig `yaml:"kafka_feeds" validate:"dive"`
	} `yaml:"providers"`

	Rates struct {
		Sources           []RateSourceConfig `yaml:"sources" validate:"dive"`
		Emergency         map[string]float64 `yaml:"emergency"`
		SnapshotRetention time.Duration      `yaml:"snapshot_retention" default:"24h"`
	} `yaml:"rates"`

	Backend struct {
		BufferSize   int           `yaml:"buffer_size" default:"1000" validate:"gt=0"`
		BatchSize    int           `yaml:"batch_size" default:"100" validate:"gt=0"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		MaxRetries   int           `yaml:"max_retries" default:"3" validate:"gte=0"`
		MaxRPS       int           `yaml:"max_rps" default:"20" validate:"gte=0"`
	} `yaml:"backend"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"4"`
		Prefix   string `yaml:"prefix" default:"marketboard"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topics  struct {
			Points  string `yaml:"points" default:"marketboard.points"`
			Signals string `yaml:"signals" default:"marketboard.signals"`
			Logs    string `yaml:"logs" default:"marketboard.logs"`
		} `yaml:"topics"`
		Producer struct {
			Enabled      bool          `yaml:"enabled"`
			RequiredAcks int           `yaml:"required_acks" default:"-1"`
			Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"1s"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"marketboard"`
			BufferSize int           `yaml:"buffer_size" default:"100"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"marketboard"`
		Table            string        `yaml:"table" default:"points"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
}

// RotationGroup is one rotation group with its candidates.
type RotationGroup struct {
	Name                 string `yaml:"name" validate:"required"`
	rotation.GroupConfig `yaml:",inline"`
	Items                []models.RotationItem `yaml:"items" validate:"required,min=1"`
}

// RateLimit is a token bucket: Burst requests, refilled at PerSecond.
// A zero burst disables limiting.
type RateLimit struct {
	Burst     float64 `yaml:"burst" validate:"gte=0"`
	PerSecond float64 `yaml:"per_second" validate:"gte=0"`
}

type FinnhubConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ID             string        `yaml:"id" default:"finnhub"`
	APIKey         string        `yaml:"api_key"`
	WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
	RestURL        string        `yaml:"rest_url" default:"https://finnhub.io/api/v1"`
	Mode           string        `yaml:"mode" default:"push" validate:"oneof=push poll"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	RateLimit      RateLimit     `yaml:"rate_limit"`
}

type RestProvider struct {
	ID        string    `yaml:"id" validate:"required"`
	BaseURL   string    `yaml:"base_url" validate:"required,url"`
	APIKey    string    `yaml:"api_key"`
	KeyHeader string    `yaml:"key_header"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

type KafkaFeedConfig struct {
	ID      string `yaml:"id" validate:"required"`
	Topic   string `yaml:"topic" validate:"required"`
	GroupID string `yaml:"group_id"`
}

type RateSourceConfig struct {
	ID        string    `yaml:"id" validate:"required"`
	BaseURL   string    `yaml:"base_url" validate:"required,url"`
	Path      string    `yaml:"path"`
	APIKey    string    `yaml:"api_key"`
	KeyParam  string    `yaml:"key_param"`
	RateLimit RateLimit `yaml:"rate_limit"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := read(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.finalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func read(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

func (c *Config) finalize() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("config defaults: %w", err)
	}
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Providers.Finnhub.APIKey = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if p, err := strconv.Atoi(port); ok && err == nil {
			c.Redis.Port = p
		}
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("HOME_CURRENCY"); v != "" {
		c.Market.HomeCurrency = strings.ToUpper(v)
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	// Rate source keys by id: RATES_<ID>_API_KEY.
	for i := range c.Rates.Sources {
		env := "RATES_" + strings.ToUpper(strings.ReplaceAll(c.Rates.Sources[i].ID, "-", "_")) + "_API_KEY"
		if v := getenv(env); v != "" {
			c.Rates.Sources[i].APIKey = v
		}
	}
}

// Validate checks cross-field rules the struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	ids := map[string]bool{}
	addID := func(id string) {
		if ids[id] {
			errs = append(errs, fmt.Errorf("duplicate provider id %q", id))
		}
		ids[id] = true
	}
	if c.Providers.Finnhub.Enabled {
		if c.Providers.Finnhub.APIKey == "" {
			errs = append(errs, errors.New("providers.finnhub.api_key is required"))
		}
		addID(c.Providers.Finnhub.ID)
	}
	for _, p := range c.Providers.Rest {
		addID(p.ID)
	}
	for _, f := range c.Providers.KafkaFeeds {
		addID(f.ID)
	}
	if len(c.Providers.KafkaFeeds) > 0 && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers required by providers.kafka_feeds"))
	}
	if c.Kafka.Producer.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers required by kafka.producer"))
	}

	for _, inst := range c.Instruments {
		if !ids[inst.Source] {
			errs = append(errs, fmt.Errorf("instrument %s: unknown source %q", inst.Symbol, inst.Source))
		}
	}

	seen := map[string]bool{}
	for _, s := range c.Rates.Sources {
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate rate source id %q", s.ID))
		}
		seen[s.ID] = true
	}
	if _, err := c.EmergencyRates(); err != nil {
		errs = append(errs, err)
	}

	groups := map[string]bool{}
	for _, g := range c.Rotation.Groups {
		if groups[g.Name] {
			errs = append(errs, fmt.Errorf("duplicate rotation group %q", g.Name))
		}
		groups[g.Name] = true
	}
	if _, err := time.LoadLocation(c.Rotation.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("rotation.timezone: %w", err))
	}

	return errors.Join(errs...)
}

// EmergencyRates parses the "BASE/QUOTE" keyed fallback table.
func (c *Config) EmergencyRates() (map[models.CurrencyPair]float64, error) {
	out := make(map[models.CurrencyPair]float64, len(c.Rates.Emergency))
	for k, v := range c.Rates.Emergency {
		pair, err := models.ParsePair(k)
		if err != nil {
			return nil, fmt.Errorf("rates.emergency: %w", err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("rates.emergency %s: rate must be positive", k)
		}
		out[pair] = v
	}
	return out, nil
}
