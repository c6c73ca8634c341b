package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MEMECAST_* environment variable overrides, and
// returns the final Config. An empty or missing file falls back to defaults
// plus environment, so the server can run configured entirely by env vars.
// The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MEMECAST_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "MEMECAST_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MEMECAST_SERVER_CORS_ORIGINS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MEMECAST_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "MEMECAST_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MEMECAST_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MEMECAST_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MEMECAST_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MEMECAST_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MEMECAST_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MEMECAST_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MEMECAST_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MEMECAST_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MEMECAST_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MEMECAST_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MEMECAST_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MEMECAST_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MEMECAST_REDIS_POOL_SIZE")
	setDuration(&cfg.Redis.CacheTTL, "MEMECAST_REDIS_CACHE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MEMECAST_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MEMECAST_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MEMECAST_S3_REGION")
	setStr(&cfg.S3.Bucket, "MEMECAST_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MEMECAST_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MEMECAST_S3_SECRET_KEY")
	setStr(&cfg.S3.PublicBaseURL, "MEMECAST_S3_PUBLIC_BASE_URL")
	setBool(&cfg.S3.ForcePathStyle, "MEMECAST_S3_FORCE_PATH_STYLE")

	// ── Market ──
	setFloat64(&cfg.Market.BasePrice, "MEMECAST_MARKET_BASE_PRICE")
	setFloat64(&cfg.Market.CurveK, "MEMECAST_MARKET_CURVE_K")
	setFloat64(&cfg.Market.FeeRate, "MEMECAST_MARKET_FEE_RATE")
	setDuration(&cfg.Market.SweepInterval, "MEMECAST_MARKET_SWEEP_INTERVAL")
	setStr(&cfg.Market.PlaybackBaseURL, "MEMECAST_MARKET_PLAYBACK_BASE_URL")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MEMECAST_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
