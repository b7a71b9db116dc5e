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
// built-in defaults, applies PREDICTD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setInt64(&cfg.Engine.MinOrderSize, "PREDICTD_ENGINE_MIN_ORDER_SIZE")
	setInt64(&cfg.Engine.FeeRateBps, "PREDICTD_ENGINE_FEE_RATE_BPS")
	setInt64(&cfg.Engine.QuestionFee, "PREDICTD_ENGINE_QUESTION_FEE")
	setStr(&cfg.Engine.Admin, "PREDICTD_ENGINE_ADMIN")
	setStr(&cfg.Engine.Reporter, "PREDICTD_ENGINE_REPORTER")
	setStr(&cfg.Engine.EscrowAccount, "PREDICTD_ENGINE_ESCROW_ACCOUNT")
	setStr(&cfg.Engine.OracleAccount, "PREDICTD_ENGINE_ORACLE_ACCOUNT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDICTD_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDICTD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICTD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICTD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICTD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICTD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICTD_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICTD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICTD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICTD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDICTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTD_REDIS_TLS_ENABLED")

	// ── Server ──
	setInt(&cfg.Server.Port, "PREDICTD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICTD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKeyHash, "PREDICTD_SERVER_API_KEY_HASH")
	setInt(&cfg.Server.RateLimit, "PREDICTD_SERVER_RATE_LIMIT")

	// ── Jobs ──
	setDuration(&cfg.Jobs.SnapshotInterval, "PREDICTD_JOBS_SNAPSHOT_INTERVAL")
	setDuration(&cfg.Jobs.SweepInterval, "PREDICTD_JOBS_SWEEP_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "PREDICTD_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
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
