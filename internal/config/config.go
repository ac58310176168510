// Package config defines the staking daemon's configuration and its
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/alanyoungcy/stakingledger/internal/pipeline"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by STAKING_* environment variables.
type Config struct {
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Custody  CustodyConfig  `toml:"custody"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
}

// LedgerConfig holds the operator identity and tier policy.
type LedgerConfig struct {
	Operator string `toml:"operator"`
	// InitialFunding seeds custody once, in wei, so matured interest can
	// be paid out.
	InitialFunding string       `toml:"initial_funding"`
	StrictTerms    bool         `toml:"strict_terms"`
	MaxRateBps     uint64       `toml:"max_rate_bps"`
	Tiers          []TierConfig `toml:"tiers"`
}

// TierConfig is a seed tier applied over the built-in defaults.
type TierConfig struct {
	Days uint32 `toml:"days"`
	Rate uint64 `toml:"rate"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string   `toml:"dsn"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Database      string   `toml:"database"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	SSLMode       string   `toml:"ssl_mode"`
	PoolMaxConns  int      `toml:"pool_max_conns"`
	PoolMinConns  int      `toml:"pool_min_conns"`
	MaxConnIdle   duration `toml:"max_conn_idle"`
	RunMigrations bool     `toml:"run_migrations"`
}

// CustodyConfig selects where staked funds are held.
type CustodyConfig struct {
	Backend   string           `toml:"backend"`
	KeyPrefix string           `toml:"key_prefix"`
	Genesis   []GenesisBalance `toml:"genesis"`
}

// GenesisBalance credits an address at startup.
type GenesisBalance struct {
	Address string `toml:"address"`
	Balance string `toml:"balance"`
}

// RedisConfig holds Redis connection parameters. When enabled Redis also
// carries the event bus, the archive lock and the rate limiter.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig schedules the closed-position archive.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	Cron          string `toml:"cron"`
	RetentionDays int    `toml:"retention_days"`
	Prefix        string `toml:"prefix"`
	Snapshot      bool   `toml:"snapshot"`
}

// duration decodes TOML strings like "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port             int      `toml:"port"`
	CORSOrigins      []string `toml:"cors_origins"`
	APIKey           string   `toml:"api_key"`
	SignatureMaxSkew duration `toml:"signature_max_skew"`
	// RateLimit is requests per RateWindow per client. Zero disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config matching config.example.toml.
func Defaults() Config {
	return Config{
		Mode:     "full",
		LogLevel: "info",
		Ledger: LedgerConfig{
			InitialFunding: "0",
			MaxRateBps:     10_000,
		},
		Store: StoreConfig{Backend: "memory"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "staking",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			MaxConnIdle:   duration{30 * time.Minute},
			RunMigrations: true,
		},
		Custody: CustodyConfig{
			Backend:   "memory",
			KeyPrefix: "staking:",
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "staking-archive",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Cron:          "0 3 * * *",
			RetentionDays: 30,
			Prefix:        "ledger",
		},
		Server: ServerConfig{
			Port:             8000,
			CORSOrigins:      []string{"http://localhost:3000"},
			SignatureMaxSkew: duration{5 * time.Minute},
			RateWindow:       duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"position_opened", "position_closed", "early_withdrawal", "tier_set", "unlock_changed"},
		},
	}
}

var validModes = map[string]bool{
	"server":  true,
	"archive": true,
	"full":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate returns one error describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if !validModes[strings.ToLower(c.Mode)] {
		add("unknown mode %q (valid: server, archive, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Ledger
	if !common.IsHexAddress(c.Ledger.Operator) {
		add("ledger: operator must be a hex address, got %q", c.Ledger.Operator)
	} else if common.HexToAddress(c.Ledger.Operator) == (common.Address{}) {
		add("ledger: operator must not be the zero address")
	}
	if c.Ledger.InitialFunding != "" {
		if _, err := uint256.FromDecimal(c.Ledger.InitialFunding); err != nil {
			add("ledger: initial_funding %q is not a wei amount", c.Ledger.InitialFunding)
		}
	}
	if c.Ledger.StrictTerms && c.Ledger.MaxRateBps == 0 {
		add("ledger: max_rate_bps must be > 0 when strict_terms is set")
	}
	for i, t := range c.Ledger.Tiers {
		if t.Days == 0 {
			add("ledger: tiers[%d]: days must be > 0", i)
		}
	}

	// Store
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	default:
		add("store: unknown backend %q (valid: memory, postgres)", c.Store.Backend)
	}

	// Custody
	switch c.Custody.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			add("custody: backend redis requires redis.enabled")
		}
	default:
		add("custody: unknown backend %q (valid: memory, redis)", c.Custody.Backend)
	}
	for i, g := range c.Custody.Genesis {
		if !common.IsHexAddress(g.Address) {
			add("custody: genesis[%d]: address %q is not a hex address", i, g.Address)
		}
		if _, err := uint256.FromDecimal(g.Balance); err != nil {
			add("custody: genesis[%d]: balance %q is not a wei amount", i, g.Balance)
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	// Archive
	if c.Mode == "archive" && !c.Archive.Enabled {
		add("archive: mode archive requires archive.enabled")
	}
	if c.Archive.Enabled {
		if err := pipeline.ValidateCron(c.Archive.Cron); err != nil {
			add("archive: cron: %v", err)
		}
		if c.Archive.RetentionDays < 0 {
			add("archive: retention_days must be >= 0")
		}
		if c.S3.Endpoint == "" {
			add("s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
	}

	// Server
	if c.Mode != "archive" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.SignatureMaxSkew.Duration <= 0 {
			add("server: signature_max_skew must be > 0")
		}
		if c.Server.RateLimit < 0 {
			add("server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			add("server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// OperatorAddress returns the parsed operator identity.
func (c *Config) OperatorAddress() common.Address {
	return common.HexToAddress(c.Ledger.Operator)
}
