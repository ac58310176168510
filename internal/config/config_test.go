package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operatorHex = "0x000000000000000000000000000000000000a0a0"

func validConfig() Config {
	cfg := Defaults()
	cfg.Ledger.Operator = operatorHex
	return cfg
}

func TestDefaultsNeedOnlyOperator(t *testing.T) {
	cfg := Defaults()
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, common.HexToAddress(operatorHex), cfg.OperatorAddress())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Mode = "trade" }, `unknown mode "trade"`},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"zero operator", func(c *Config) { c.Ledger.Operator = "0x0000000000000000000000000000000000000000" }, "zero address"},
		{"bad funding", func(c *Config) { c.Ledger.InitialFunding = "1.5" }, "initial_funding"},
		{"strict without cap", func(c *Config) {
			c.Ledger.StrictTerms = true
			c.Ledger.MaxRateBps = 0
		}, "max_rate_bps"},
		{"zero-day tier", func(c *Config) { c.Ledger.Tiers = []TierConfig{{Days: 0, Rate: 5}} }, "tiers[0]"},
		{"unknown store", func(c *Config) { c.Store.Backend = "sqlite" }, `unknown backend "sqlite"`},
		{"postgres pool", func(c *Config) {
			c.Store.Backend = "postgres"
			c.Postgres.PoolMinConns = 20
		}, "pool_min_conns"},
		{"redis custody without redis", func(c *Config) { c.Custody.Backend = "redis" }, "requires redis.enabled"},
		{"bad genesis", func(c *Config) {
			c.Custody.Genesis = []GenesisBalance{{Address: "alice", Balance: "10"}}
		}, "genesis[0]"},
		{"archive mode disabled", func(c *Config) { c.Mode = "archive" }, "requires archive.enabled"},
		{"bad cron", func(c *Config) {
			c.Archive.Enabled = true
			c.Archive.Cron = "every day"
		}, "archive: cron"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server: port"},
		{"rate window", func(c *Config) {
			c.Server.RateLimit = 10
			c.Server.RateWindow.Duration = 0
		}, "rate_window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "nope"
	cfg.Server.Port = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "ledger: operator")
	assert.Contains(t, err.Error(), "server: port")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "server"

[ledger]
operator = "`+operatorHex+`"
strict_terms = true

[[ledger.tiers]]
days = 365
rate = 2000

[server]
port = 9000
signature_max_skew = "90s"
`), 0o600))

	t.Setenv("STAKING_SERVER_PORT", "9100")
	t.Setenv("STAKING_NOTIFY_EVENTS", "tier_set, position_closed,")
	t.Setenv("STAKING_ARCHIVE_RETENTION_DAYS", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "server", cfg.Mode)
	assert.True(t, cfg.Ledger.StrictTerms)
	assert.Equal(t, []TierConfig{{Days: 365, Rate: 2000}}, cfg.Ledger.Tiers)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Server.SignatureMaxSkew.Duration)
	assert.Equal(t, []string{"tier_set", "position_closed"}, cfg.Notify.Events)
	assert.Equal(t, 30, cfg.Archive.RetentionDays, "unparseable override is ignored")
	assert.Equal(t, "memory", cfg.Store.Backend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pg-secret"
	cfg.Server.APIKey = "key"
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Postgres.Password)
	assert.Equal(t, redacted, out.Server.APIKey)
	assert.Equal(t, redacted, out.Notify.TelegramToken)
	assert.Empty(t, out.Redis.Password)
	assert.Equal(t, "pg-secret", cfg.Postgres.Password)

	out.Notify.Events[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Notify.Events[0])
}
