package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load decodes the TOML file at path over Defaults, loads .env if present
// and applies STAKING_* overrides. An empty path skips the file. The
// result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose STAKING_* variable is set and
// non-empty.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "STAKING_MODE")
	setStr(&cfg.LogLevel, "STAKING_LOG_LEVEL")

	// ── Ledger ──
	setStr(&cfg.Ledger.Operator, "STAKING_LEDGER_OPERATOR")
	setStr(&cfg.Ledger.InitialFunding, "STAKING_LEDGER_INITIAL_FUNDING")
	setBool(&cfg.Ledger.StrictTerms, "STAKING_LEDGER_STRICT_TERMS")
	setUint64(&cfg.Ledger.MaxRateBps, "STAKING_LEDGER_MAX_RATE_BPS")

	// ── Store ──
	setStr(&cfg.Store.Backend, "STAKING_STORE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "STAKING_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "STAKING_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STAKING_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STAKING_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STAKING_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STAKING_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STAKING_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STAKING_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STAKING_POSTGRES_POOL_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnIdle, "STAKING_POSTGRES_MAX_CONN_IDLE")
	setBool(&cfg.Postgres.RunMigrations, "STAKING_POSTGRES_RUN_MIGRATIONS")

	// ── Custody ──
	setStr(&cfg.Custody.Backend, "STAKING_CUSTODY_BACKEND")
	setStr(&cfg.Custody.KeyPrefix, "STAKING_CUSTODY_KEY_PREFIX")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "STAKING_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "STAKING_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STAKING_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STAKING_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STAKING_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STAKING_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STAKING_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "STAKING_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "STAKING_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STAKING_S3_REGION")
	setStr(&cfg.S3.Bucket, "STAKING_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STAKING_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STAKING_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STAKING_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STAKING_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "STAKING_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "STAKING_ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, "STAKING_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Prefix, "STAKING_ARCHIVE_PREFIX")
	setBool(&cfg.Archive.Snapshot, "STAKING_ARCHIVE_SNAPSHOT")

	// ── Server ──
	setInt(&cfg.Server.Port, "STAKING_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "STAKING_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "STAKING_SERVER_API_KEY")
	setDuration(&cfg.Server.SignatureMaxSkew, "STAKING_SERVER_SIGNATURE_MAX_SKEW")
	setInt(&cfg.Server.RateLimit, "STAKING_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "STAKING_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STAKING_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STAKING_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STAKING_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STAKING_NOTIFY_EVENTS")
}

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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var cleaned []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) > 0 {
		*dst = cleaned
	}
}
