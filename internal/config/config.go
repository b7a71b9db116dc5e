// Package config defines the top-level configuration for the market platform
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PREDICTD_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	Server   ServerConfig   `toml:"server"`
	Jobs     JobsConfig     `toml:"jobs"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds the matching engine's economic parameters. Accounts are
// Ethereum-style hex addresses except the internal escrow and oracle accounts,
// which are plain ledger identifiers.
type EngineConfig struct {
	MinOrderSize  int64  `toml:"min_order_size"`
	FeeRateBps    int64  `toml:"fee_rate_bps"`
	QuestionFee   int64  `toml:"question_fee"`
	Admin         string `toml:"admin"`
	Reporter      string `toml:"reporter"`
	EscrowAccount string `toml:"escrow_account"`
	OracleAccount string `toml:"oracle_account"`
}

// LedgerConfig seeds the in-memory ledger. Mint maps account addresses to
// their starting balances.
type LedgerConfig struct {
	Mint map[string]int64 `toml:"mint"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ServerConfig holds HTTP server parameters. APIKeyHash is a bcrypt hash of
// the API key; when empty, authentication is disabled.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKeyHash  string   `toml:"api_key_hash"`
	RateLimit   int      `toml:"rate_limit"`
}

// JobsConfig holds the background job intervals.
type JobsConfig struct {
	SnapshotInterval duration `toml:"snapshot_interval"`
	SweepInterval    duration `toml:"sweep_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			MinOrderSize:  1,
			FeeRateBps:    200,
			QuestionFee:   100,
			EscrowAccount: "escrow",
			OracleAccount: "oracle",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "predictd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Server: ServerConfig{
			Port:      8080,
			RateLimit: 50,
		},
		Jobs: JobsConfig{
			SnapshotInterval: duration{2 * time.Second},
			SweepInterval:    duration{15 * time.Second},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.MinOrderSize < 1 {
		errs = append(errs, "engine: min_order_size must be >= 1")
	}
	if c.Engine.FeeRateBps < 0 || c.Engine.FeeRateBps > 10000 {
		errs = append(errs, fmt.Sprintf("engine: fee_rate_bps must be 0-10000, got %d", c.Engine.FeeRateBps))
	}
	if c.Engine.QuestionFee < 0 {
		errs = append(errs, "engine: question_fee must be >= 0")
	}
	if c.Engine.Admin == "" {
		errs = append(errs, "engine: admin address must not be empty")
	}
	if c.Engine.Reporter == "" {
		errs = append(errs, "engine: reporter address must not be empty")
	}
	if c.Engine.EscrowAccount == "" {
		errs = append(errs, "engine: escrow_account must not be empty")
	}
	if c.Engine.OracleAccount == "" {
		errs = append(errs, "engine: oracle_account must not be empty")
	}

	// Ledger
	for acct, amount := range c.Ledger.Mint {
		if amount < 0 {
			errs = append(errs, fmt.Sprintf("ledger: mint for %s must be >= 0, got %d", acct, amount))
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}

	// Jobs
	if c.Jobs.SnapshotInterval.Duration <= 0 {
		errs = append(errs, "jobs: snapshot_interval must be positive")
	}
	if c.Jobs.SweepInterval.Duration <= 0 {
		errs = append(errs, "jobs: sweep_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
