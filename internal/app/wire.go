package app

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/predictd/internal/cache/redis"
	"github.com/alanyoungcy/predictd/internal/config"
	"github.com/alanyoungcy/predictd/internal/domain"
	"github.com/alanyoungcy/predictd/internal/engine"
	"github.com/alanyoungcy/predictd/internal/ledger"
	"github.com/alanyoungcy/predictd/internal/oracle"
	"github.com/alanyoungcy/predictd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application needs.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore   domain.MarketStore
	OrderStore    domain.OrderStore
	PositionStore domain.PositionStore
	TradeStore    domain.TradeStore
	AuditStore    domain.AuditStore

	// Caches
	BookCache   domain.BookCache
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Core collaborators
	Ledger ledger.Ledger
	Oracle *oracle.Board
	Engine *engine.Engine
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.OrderStore = postgres.NewOrderStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.TradeStore = postgres.NewTradeStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.BookCache = redis.NewBookCache(redisClient)
	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Ledger, oracle, engine ---
	admin, err := domain.NormalizeAddress(cfg.Engine.Admin)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: engine admin address: %w", err)
	}
	reporter, err := domain.NormalizeAddress(cfg.Engine.Reporter)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: oracle reporter address: %w", err)
	}

	led := ledger.NewMemLedger()
	for acct, amount := range cfg.Ledger.Mint {
		addr, err := domain.NormalizeAddress(acct)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: ledger mint account %s: %w", acct, err)
		}
		led.Mint(addr, amount)
	}
	deps.Ledger = led

	deps.Oracle = oracle.NewBoard(reporter)

	deps.Engine = engine.New(engine.Config{
		MinOrderSize:  cfg.Engine.MinOrderSize,
		FeeRateBps:    cfg.Engine.FeeRateBps,
		QuestionFee:   cfg.Engine.QuestionFee,
		Admin:         admin,
		EscrowAccount: cfg.Engine.EscrowAccount,
		OracleAccount: cfg.Engine.OracleAccount,
	}, led, deps.Oracle, nil)

	return deps, cleanup, nil
}
