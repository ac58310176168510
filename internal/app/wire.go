package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	s3blob "github.com/alanyoungcy/stakingledger/internal/blob/s3"
	cachemem "github.com/alanyoungcy/stakingledger/internal/cache/memory"
	"github.com/alanyoungcy/stakingledger/internal/cache/redis"
	"github.com/alanyoungcy/stakingledger/internal/config"
	"github.com/alanyoungcy/stakingledger/internal/custody"
	"github.com/alanyoungcy/stakingledger/internal/domain"
	"github.com/alanyoungcy/stakingledger/internal/ledger"
	"github.com/alanyoungcy/stakingledger/internal/metrics"
	"github.com/alanyoungcy/stakingledger/internal/notify"
	"github.com/alanyoungcy/stakingledger/internal/server/handler"
	"github.com/alanyoungcy/stakingledger/internal/service"
	"github.com/alanyoungcy/stakingledger/internal/store/memory"
	"github.com/alanyoungcy/stakingledger/internal/store/postgres"
)

// keyPrefix namespaces the lock and rate-limit keys in Redis.
const keyPrefix = "staking:"

// Dependencies bundles everything the run modes need. Optional
// collaborators are nil when their backend is not configured.
type Dependencies struct {
	Ledger  *ledger.Ledger
	Service *service.StakingService

	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore

	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	Archiver domain.Archiver
	Metrics  *metrics.Metrics
	Checks   map[string]handler.Check
}

// Wire builds the configured backends, restores the ledger from the store
// and returns a cleanup function releasing every connection.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Check),
	}

	// --- Stores ---
	var tierStore domain.TierStore
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:         cfg.Postgres.DSN,
			Host:        cfg.Postgres.Host,
			Port:        cfg.Postgres.Port,
			Database:    cfg.Postgres.Database,
			User:        cfg.Postgres.User,
			Password:    cfg.Postgres.Password,
			SSLMode:     cfg.Postgres.SSLMode,
			MaxConns:    cfg.Postgres.PoolMaxConns,
			MinConns:    cfg.Postgres.PoolMinConns,
			MaxConnIdle: cfg.Postgres.MaxConnIdle.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		pool := pg.Pool()
		tierStore = postgres.NewTierStore(pool)
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pg.Ping
	default:
		tierStore = memory.NewTierStore()
		deps.PositionStore = memory.NewPositionStore()
		deps.AuditStore = memory.NewAuditStore()
	}

	// --- Redis ---
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		var err error
		redisClient, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.LockManager = redis.NewLockManager(redisClient, keyPrefix)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, keyPrefix)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		deps.SignalBus = cachemem.NewBus(int(cfg.Redis.StreamMaxLen))
	}

	// --- Custody ---
	vault, err := wireCustody(ctx, cfg, redisClient, logger)
	if err != nil {
		return fail(err)
	}

	// --- Ledger ---
	opts := []ledger.RegistryOption{ledger.WithTierStore(tierStore)}
	if len(cfg.Ledger.Tiers) > 0 {
		seed := make([]domain.Tier, len(cfg.Ledger.Tiers))
		for i, t := range cfg.Ledger.Tiers {
			seed[i] = domain.Tier{LockDays: t.Days, Rate: t.Rate}
		}
		opts = append(opts, ledger.WithSeedTiers(seed))
	}
	if cfg.Ledger.StrictTerms {
		opts = append(opts, ledger.WithStrictTerms(cfg.Ledger.MaxRateBps))
	}
	registry := ledger.NewRegistry(cfg.OperatorAddress(), opts...)

	deps.Ledger = ledger.New(registry, vault, deps.PositionStore, domain.SystemClock{}, logger)
	if err := deps.Ledger.Restore(ctx); err != nil {
		return fail(fmt.Errorf("wire: restore ledger: %w", err))
	}
	deps.Metrics.RegisterBook(
		func() float64 { return float64(deps.Ledger.Summary().OpenPositions) },
		func() float64 { return weiFloat(deps.Ledger.Summary().LockedTotal) },
	)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	svcOpts := []service.Option{service.WithMetrics(deps.Metrics)}
	if notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger); notifier.Enabled() {
		svcOpts = append(svcOpts, service.WithNotifier(notifier))
	}
	deps.Service = service.NewStakingService(deps.Ledger, deps.SignalBus, deps.AuditStore, logger, svcOpts...)

	// --- S3 archive ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.PositionStore,
			deps.AuditStore,
			cfg.Archive.Prefix,
		)
		deps.Checks["s3"] = s3Client.Health
	}

	logger.InfoContext(ctx, "dependencies wired",
		slog.String("store", cfg.Store.Backend),
		slog.String("custody", cfg.Custody.Backend),
		slog.Bool("redis", cfg.Redis.Enabled),
		slog.Bool("archive", cfg.Archive.Enabled),
		slog.Int("notify_senders", len(senders)),
	)
	return deps, cleanup, nil
}

// wireCustody builds the transfer primitive and applies genesis balances.
func wireCustody(ctx context.Context, cfg *config.Config, rc *redis.Client, logger *slog.Logger) (domain.Transfer, error) {
	initial := new(uint256.Int)
	if cfg.Ledger.InitialFunding != "" {
		var err error
		if initial, err = uint256.FromDecimal(cfg.Ledger.InitialFunding); err != nil {
			return nil, fmt.Errorf("wire: initial funding: %w", err)
		}
	}

	type genesis struct {
		addr   string
		amount *uint256.Int
	}
	balances := make([]genesis, 0, len(cfg.Custody.Genesis))
	for _, g := range cfg.Custody.Genesis {
		amt, err := uint256.FromDecimal(g.Balance)
		if err != nil {
			return nil, fmt.Errorf("wire: genesis balance for %s: %w", g.Address, err)
		}
		balances = append(balances, genesis{addr: g.Address, amount: amt})
	}

	if cfg.Custody.Backend == "redis" {
		if rc == nil {
			return nil, fmt.Errorf("wire: redis custody requires redis.enabled")
		}
		v, err := redis.NewVault(ctx, rc, cfg.Custody.KeyPrefix, initial)
		if err != nil {
			return nil, fmt.Errorf("wire: redis vault: %w", err)
		}
		for _, g := range balances {
			applied, err := v.Seed(ctx, common.HexToAddress(g.addr), g.amount)
			if err != nil {
				return nil, fmt.Errorf("wire: genesis: %w", err)
			}
			if !applied {
				logger.DebugContext(ctx, "genesis balance already present", slog.String("address", g.addr))
			}
		}
		return v, nil
	}

	v := custody.NewMemoryVault(initial)
	for _, g := range balances {
		if err := v.Credit(common.HexToAddress(g.addr), g.amount); err != nil {
			return nil, fmt.Errorf("wire: genesis %s: %w", g.addr, err)
		}
	}
	return v, nil
}

// weiFloat approximates a wei amount for gauges.
func weiFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
