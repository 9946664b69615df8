package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "MENTIONLAB_"

// Load reads an optional TOML file on top of the defaults, loads .env if
// present and applies MENTIONLAB_* overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// ── Log ──
	setStr(&cfg.Log.Level, "LOG_LEVEL")
	setStr(&cfg.Log.Encoding, "LOG_ENCODING")

	// ── Storage ──
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")
	setStr(&cfg.ClickHouse.DSN, "CLICKHOUSE_DSN")
	setBool(&cfg.ClickHouse.RunMigrations, "CLICKHOUSE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.TTL, "REDIS_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "S3_ENDPOINT")
	setStr(&cfg.S3.Region, "S3_REGION")
	setStr(&cfg.S3.Bucket, "S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// ── Market data ──
	setStr(&cfg.MarketData.DexScreenerURL, "DEXSCREENER_URL")
	setStr(&cfg.MarketData.GeckoTerminalURL, "GECKOTERMINAL_URL")
	setDuration(&cfg.MarketData.Timeout, "MARKETDATA_TIMEOUT")

	// ── Gate ──
	setDuration(&cfg.Gate.MinSpacing, "GATE_MIN_SPACING")
	setDuration(&cfg.Gate.BaseDelay, "GATE_BASE_DELAY")
	setDuration(&cfg.Gate.MaxDelay, "GATE_MAX_DELAY")
	setDuration(&cfg.Gate.Jitter, "GATE_JITTER")
	setInt(&cfg.Gate.MaxAttempts, "GATE_MAX_ATTEMPTS")

	// ── Extraction and resolution ──
	setStringSlice(&cfg.Extract.MajorTickers, "EXTRACT_MAJOR_TICKERS")
	setStringSlice(&cfg.Extract.MajorNames, "EXTRACT_MAJOR_NAMES")
	setInt(&cfg.Resolver.WeakTickerThreshold, "RESOLVER_WEAK_TICKER_THRESHOLD")
	setBool(&cfg.Resolver.CanonicalizePools, "RESOLVER_CANONICALIZE_POOLS")

	// ── Pricing ──
	setInt64(&cfg.Pricing.GraceSeconds, "PRICING_GRACE_SECONDS")
	setInt(&cfg.Pricing.TopPools, "PRICING_TOP_POOLS")
	setStr(&cfg.Pricing.MaxSinceMode, "PRICING_MAX_SINCE_MODE")
	setInt(&cfg.Pricing.PatchAggregate, "PRICING_PATCH_AGGREGATE")
	setInt(&cfg.Pricing.MaxPages, "PRICING_MAX_PAGES")
	setFloat64(&cfg.Pricing.MinVolume, "PRICING_MIN_VOLUME")

	// ── Orchestrator ──
	setInt(&cfg.Orchestrator.Workers, "ORCHESTRATOR_WORKERS")
	setInt(&cfg.Orchestrator.TokenParallelism, "ORCHESTRATOR_TOKEN_PARALLELISM")
	setDuration(&cfg.Orchestrator.ProgressInterval, "ORCHESTRATOR_PROGRESS_INTERVAL")

	// ── Server ──
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setStr(&cfg.Server.Schedule, "SERVER_SCHEDULE")
	setDuration(&cfg.Server.ScanLookback, "SERVER_SCAN_LOOKBACK")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the prefixed
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
