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
// built-in defaults, applies WERPOOL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WERPOOL_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Database.DSN, "WERPOOL_DATABASE_DSN")
	setStr(&cfg.Database.Host, "WERPOOL_DATABASE_HOST")
	setInt(&cfg.Database.Port, "WERPOOL_DATABASE_PORT")
	setStr(&cfg.Database.Database, "WERPOOL_DATABASE_NAME")
	setStr(&cfg.Database.User, "WERPOOL_DATABASE_USER")
	setStr(&cfg.Database.Password, "WERPOOL_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "WERPOOL_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "WERPOOL_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "WERPOOL_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "WERPOOL_DATABASE_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "WERPOOL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WERPOOL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WERPOOL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WERPOOL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WERPOOL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WERPOOL_REDIS_TLS_ENABLED")

	setStr(&cfg.S3.Endpoint, "WERPOOL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WERPOOL_S3_REGION")
	setStr(&cfg.S3.Bucket, "WERPOOL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WERPOOL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WERPOOL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WERPOOL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WERPOOL_S3_FORCE_PATH_STYLE")

	setStr(&cfg.Ledger.Binary, "WERPOOL_LEDGER_BINARY")
	setStr(&cfg.Ledger.Network, "WERPOOL_LEDGER_NETWORK")
	setStr(&cfg.Ledger.Signer, "WERPOOL_LEDGER_SIGNER")

	setFloat64(&cfg.Trading.MaxPositionPerMarket, "WERPOOL_TRADING_MAX_POSITION_PER_MARKET")

	setBool(&cfg.Scheduler.Enabled, "WERPOOL_SCHEDULER_ENABLED")
	setDuration(&cfg.Scheduler.Interval, "WERPOOL_SCHEDULER_INTERVAL")
	setInt(&cfg.Scheduler.BatchSize, "WERPOOL_SCHEDULER_BATCH_SIZE")

	setInt(&cfg.Server.Port, "WERPOOL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "WERPOOL_SERVER_CORS_ORIGINS")

	setStr(&cfg.LogLevel, "WERPOOL_LOG_LEVEL")
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
