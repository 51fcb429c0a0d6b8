package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Duplicate bid policies
const (
	DuplicatePolicyOverwrite = "overwrite"
	DuplicatePolicyReject    = "reject"
)

// Store drivers
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Default values for optional configuration fields.
const (
	DefaultPort             = "8080"
	DefaultLogLevel         = "info"
	DefaultStoreDriver      = StoreMemory
	DefaultSQLitePath       = "plates.db"
	DefaultJwtTTL           = time.Hour
	DefaultBidRatePerSecond = 5.0
	DefaultBidRateBurst     = 10
	DefaultDuplicatePolicy  = DuplicatePolicyOverwrite
	DefaultAmountPrecision  = 2
	MaxAmountPrecision      = 4
	DefaultQueueSize        = 256
	DefaultSendBuffer       = 64
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultQueueIdleTimeout = time.Minute
	DefaultMetricsPath      = "/metrics"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Auction AuctionConfig `yaml:"auction"`
	Fanout  FanoutConfig  `yaml:"fanout"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`
	SeedDemo bool   `yaml:"seed_demo"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
}

type AuthConfig struct {
	JwtSecret        string        `yaml:"jwt_secret"`
	JwtTTL           time.Duration `yaml:"jwt_ttl"`
	BidRatePerSecond float64       `yaml:"bid_rate_per_second"`
	BidRateBurst     int           `yaml:"bid_rate_burst"`
}

// AuctionConfig carries the bid acceptance policy
type AuctionConfig struct {
	DuplicatePolicy      string `yaml:"duplicate_policy"`
	MinIncrement         string `yaml:"min_increment"`
	// AmountPrecision is nil when unset so an explicit 0 (whole units) survives defaulting
	AmountPrecision      *int32 `yaml:"amount_precision"`
	EnforceStartingPrice bool   `yaml:"enforce_starting_price"`
}

type FanoutConfig struct {
	// QueueSize is the per-listing event backlog; events beyond it are dropped, not delayed
	QueueSize        int           `yaml:"queue_size"`
	SendBuffer       int           `yaml:"send_buffer"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	QueueIdleTimeout time.Duration `yaml:"queue_idle_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Precision returns the configured number of fractional digits, the default when unset
func (a AuctionConfig) Precision() int32 {
	if a.AmountPrecision == nil {
		return DefaultAmountPrecision
	}
	return *a.AmountPrecision
}

// MinIncrementDecimal parses the configured minimum increment. Empty means zero.
func (a AuctionConfig) MinIncrementDecimal() (decimal.Decimal, error) {
	if strings.TrimSpace(a.MinIncrement) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(a.MinIncrement)
}

// Load reads an optional YAML file, then applies .env and environment
// overrides, then defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setString("PORT", &c.Server.Port)
	setString("LOG_LEVEL", &c.Server.LogLevel)
	setString("STORE_DRIVER", &c.Store.Driver)
	setString("SQLITE_PATH", &c.Store.SQLitePath)
	setString("JWT_SECRET", &c.Auth.JwtSecret)
	setString("DUPLICATE_BID_POLICY", &c.Auction.DuplicatePolicy)
	setString("MIN_BID_INCREMENT", &c.Auction.MinIncrement)
	setString("METRICS_PATH", &c.Metrics.Path)

	if v, ok := os.LookupEnv("SEED_DEMO"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid SEED_DEMO: %w", err)
		}
		c.Server.SeedDemo = b
	}
	if v, ok := os.LookupEnv("METRICS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED: %w", err)
		}
		c.Metrics.Enabled = b
	}
	if v, ok := os.LookupEnv("ENFORCE_STARTING_PRICE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ENFORCE_STARTING_PRICE: %w", err)
		}
		c.Auction.EnforceStartingPrice = b
	}
	if v, ok := os.LookupEnv("JWT_TTL_SECONDS"); ok {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
		}
		c.Auth.JwtTTL = time.Duration(secs) * time.Second
	}
	if v, ok := os.LookupEnv("BID_RATE_PER_SECOND"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid BID_RATE_PER_SECOND: %w", err)
		}
		c.Auth.BidRatePerSecond = f
	}
	if v, ok := os.LookupEnv("BID_RATE_BURST"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid BID_RATE_BURST: %w", err)
		}
		c.Auth.BidRateBurst = n
	}
	if v, ok := os.LookupEnv("AMOUNT_PRECISION"); ok {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid AMOUNT_PRECISION: %w", err)
		}
		places := int32(n)
		c.Auction.AmountPrecision = &places
	}
	if v, ok := os.LookupEnv("FANOUT_QUEUE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FANOUT_QUEUE_SIZE: %w", err)
		}
		c.Fanout.QueueSize = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = DefaultSQLitePath
	}
	if c.Auth.JwtTTL == 0 {
		c.Auth.JwtTTL = DefaultJwtTTL
	}
	if c.Auth.BidRatePerSecond == 0 {
		c.Auth.BidRatePerSecond = DefaultBidRatePerSecond
	}
	if c.Auth.BidRateBurst == 0 {
		c.Auth.BidRateBurst = DefaultBidRateBurst
	}
	if c.Auction.DuplicatePolicy == "" {
		c.Auction.DuplicatePolicy = DefaultDuplicatePolicy
	}
	if c.Auction.AmountPrecision == nil {
		places := int32(DefaultAmountPrecision)
		c.Auction.AmountPrecision = &places
	}
	if c.Fanout.QueueSize == 0 {
		c.Fanout.QueueSize = DefaultQueueSize
	}
	if c.Fanout.SendBuffer == 0 {
		c.Fanout.SendBuffer = DefaultSendBuffer
	}
	if c.Fanout.WriteTimeout == 0 {
		c.Fanout.WriteTimeout = DefaultWriteTimeout
	}
	if c.Fanout.PingInterval == 0 {
		c.Fanout.PingInterval = DefaultPingInterval
	}
	if c.Fanout.QueueIdleTimeout == 0 {
		c.Fanout.QueueIdleTimeout = DefaultQueueIdleTimeout
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Auth.JwtSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", StoreMemory, StoreSQLite, c.Store.Driver)
	}
	switch c.Auction.DuplicatePolicy {
	case DuplicatePolicyOverwrite, DuplicatePolicyReject:
	default:
		return fmt.Errorf("auction.duplicate_policy must be %q or %q, got %q",
			DuplicatePolicyOverwrite, DuplicatePolicyReject, c.Auction.DuplicatePolicy)
	}
	inc, err := c.Auction.MinIncrementDecimal()
	if err != nil {
		return fmt.Errorf("auction.min_increment: %w", err)
	}
	if inc.IsNegative() {
		return errors.New("auction.min_increment must be >= 0")
	}
	if p := c.Auction.Precision(); p < 0 || p > MaxAmountPrecision {
		return fmt.Errorf("auction.amount_precision must be between 0 and %d, got %d", MaxAmountPrecision, p)
	}
	if c.Auth.BidRatePerSecond < 0 {
		return errors.New("auth.bid_rate_per_second must be >= 0")
	}
	if c.Auth.BidRateBurst < 1 {
		return errors.New("auth.bid_rate_burst must be >= 1")
	}
	if c.Fanout.QueueSize < 1 {
		return errors.New("fanout.queue_size must be >= 1")
	}
	if c.Fanout.SendBuffer < 1 {
		return errors.New("fanout.send_buffer must be >= 1")
	}
	return nil
}
