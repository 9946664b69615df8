// Package config holds the runtime configuration.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration object.
type Config struct {
	Log          LogConfig          `toml:"log"`
	Postgres     PostgresConfig     `toml:"postgres"`
	ClickHouse   ClickHouseConfig   `toml:"clickhouse"`
	Redis        RedisConfig        `toml:"redis"`
	S3           S3Config           `toml:"s3"`
	MarketData   MarketDataConfig   `toml:"marketdata"`
	Gate         GateConfig         `toml:"gate"`
	Extract      ExtractConfig      `toml:"extract"`
	Resolver     ResolverConfig     `toml:"resolver"`
	Pricing      PricingConfig      `toml:"pricing"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Server       ServerConfig       `toml:"server"`
}

// LogConfig holds logger parameters.
type LogConfig struct {
	Level    string `toml:"level"`
	Encoding string `toml:"encoding"` // json | console
	Sampling bool   `toml:"sampling"`
}

// PostgresConfig holds the PostgreSQL connection.
// An empty DSN selects in-memory stores.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ClickHouseConfig holds the candle cache connection.
// An empty DSN selects the in-memory candle store.
type ClickHouseConfig struct {
	DSN           string `toml:"dsn"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds the lookup cache connection.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	TTL        duration `toml:"ttl"`
}

// S3Config holds the candle series archive bucket.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// MarketDataConfig holds upstream API endpoints.
type MarketDataConfig struct {
	DexScreenerURL   string   `toml:"dexscreener_url"`
	GeckoTerminalURL string   `toml:"geckoterminal_url"`
	Timeout          duration `toml:"timeout"`
}

// GateConfig tunes the shared fetch gate.
type GateConfig struct {
	MinSpacing  duration `toml:"min_spacing"`
	BaseDelay   duration `toml:"base_delay"`
	MaxDelay    duration `toml:"max_delay"`
	Jitter      duration `toml:"jitter"`
	MaxAttempts int      `toml:"max_attempts"`
}

// ExtractConfig tunes candidate extraction.
type ExtractConfig struct {
	MajorTickers []string `toml:"major_tickers"`
	MajorNames   []string `toml:"major_names"`
}

// ResolverConfig tunes identity resolution.
type ResolverConfig struct {
	WeakTickerThreshold int  `toml:"weak_ticker_threshold"`
	CanonicalizePools   bool `toml:"canonicalize_pools"`
}

// PriceStep is one layer of the price-at-time fallback search.
type PriceStep struct {
	Timeframe string   `toml:"timeframe"`
	Aggregate int      `toml:"aggregate"`
	Tolerance duration `toml:"tolerance"`
}

// PricingConfig tunes both price engines.
type PricingConfig struct {
	GraceSeconds   int64       `toml:"grace_seconds"`
	TopPools       int         `toml:"top_pools"`
	Steps          []PriceStep `toml:"steps"`
	MaxSinceMode   string      `toml:"max_since_mode"` // primary | top3
	PatchAggregate int         `toml:"patch_aggregate"`
	MaxPages       int         `toml:"max_pages"`
	MinVolume      float64     `toml:"min_volume"`
}

// OrchestratorConfig tunes batch runs.
type OrchestratorConfig struct {
	Workers          int      `toml:"workers"`
	TokenParallelism int      `toml:"token_parallelism"`
	ProgressInterval duration `toml:"progress_interval"`
	BatchSize        int      `toml:"batch_size"`
}

// ServerConfig holds HTTP server and scheduling parameters.
type ServerConfig struct {
	Port         int      `toml:"port"`
	Schedule     string   `toml:"schedule"` // cron expression with seconds
	ScanLookback duration `toml:"scan_lookback"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with built-in defaults.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
		Postgres: PostgresConfig{
			RunMigrations: true,
		},
		ClickHouse: ClickHouseConfig{
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			TTL:        duration{6 * time.Hour},
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
			Prefix:         "series",
		},
		MarketData: MarketDataConfig{
			DexScreenerURL:   "https://api.dexscreener.com",
			GeckoTerminalURL: "https://api.geckoterminal.com/api/v2",
			Timeout:          duration{20 * time.Second},
		},
		Gate: GateConfig{
			MinSpacing:  duration{400 * time.Millisecond},
			BaseDelay:   duration{1 * time.Second},
			MaxDelay:    duration{30 * time.Second},
			Jitter:      duration{250 * time.Millisecond},
			MaxAttempts: 4,
		},
		Resolver: ResolverConfig{
			WeakTickerThreshold: 60,
			CanonicalizePools:   true,
		},
		Pricing: PricingConfig{
			GraceSeconds: 90,
			TopPools:     3,
			Steps: []PriceStep{
				{Timeframe: "minute", Aggregate: 15, Tolerance: duration{time.Hour}},
				{Timeframe: "minute", Aggregate: 1, Tolerance: duration{10 * time.Minute}},
			},
			MaxSinceMode:   "primary",
			PatchAggregate: 5,
			MaxPages:       10,
		},
		Orchestrator: OrchestratorConfig{
			Workers:          4,
			TokenParallelism: 2,
			ProgressInterval: duration{2 * time.Second},
			BatchSize:        500,
		},
		Server: ServerConfig{
			Port:         8080,
			Schedule:     "0 */15 * * * *",
			ScanLookback: duration{24 * time.Hour},
		},
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

var validTimeframes = map[string]bool{
	"day": true, "hour": true, "minute": true,
}

// Validate checks the configuration for values the components cannot work with.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log: unknown level %q (valid: debug, info, warn, error)", c.Log.Level))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty when enabled")
	}

	if c.MarketData.DexScreenerURL == "" {
		errs = append(errs, "marketdata: dexscreener_url must not be empty")
	}
	if c.MarketData.GeckoTerminalURL == "" {
		errs = append(errs, "marketdata: geckoterminal_url must not be empty")
	}

	if c.Gate.MinSpacing.Duration < 0 {
		errs = append(errs, "gate: min_spacing must be >= 0")
	}
	if c.Gate.MaxAttempts < 1 {
		errs = append(errs, "gate: max_attempts must be >= 1")
	}

	if c.Resolver.WeakTickerThreshold < 0 || c.Resolver.WeakTickerThreshold > 100 {
		errs = append(errs, fmt.Sprintf("resolver: weak_ticker_threshold must be 0-100, got %d", c.Resolver.WeakTickerThreshold))
	}

	if c.Pricing.GraceSeconds < 0 {
		errs = append(errs, "pricing: grace_seconds must be >= 0")
	}
	if c.Pricing.TopPools < 1 {
		errs = append(errs, "pricing: top_pools must be >= 1")
	}
	if len(c.Pricing.Steps) == 0 {
		errs = append(errs, "pricing: at least one step is required")
	}
	for i, s := range c.Pricing.Steps {
		if !validTimeframes[s.Timeframe] {
			errs = append(errs, fmt.Sprintf("pricing: steps[%d] unknown timeframe %q", i, s.Timeframe))
		}
		if s.Tolerance.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("pricing: steps[%d] tolerance must be > 0", i))
		}
	}
	if c.Pricing.MaxSinceMode != "primary" && c.Pricing.MaxSinceMode != "top3" {
		errs = append(errs, fmt.Sprintf("pricing: unknown max_since_mode %q (valid: primary, top3)", c.Pricing.MaxSinceMode))
	}
	if c.Pricing.PatchAggregate < 0 {
		errs = append(errs, "pricing: patch_aggregate must be >= 0")
	}
	if c.Pricing.MaxPages < 1 {
		errs = append(errs, "pricing: max_pages must be >= 1")
	}

	if c.Orchestrator.Workers < 1 {
		errs = append(errs, "orchestrator: workers must be >= 1")
	}
	if c.Orchestrator.TokenParallelism < 1 {
		errs = append(errs, "orchestrator: token_parallelism must be >= 1")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
