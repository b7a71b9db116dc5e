// Package app provides the top-level application lifecycle: it wires the
// stores, caches, ledger, oracle, and matching engine together, starts the
// HTTP/WebSocket server and background jobs, and tears everything down on
// shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictd/internal/config"
	"github.com/alanyoungcy/predictd/internal/server"
	"github.com/alanyoungcy/predictd/internal/server/handler"
	"github.com/alanyoungcy/predictd/internal/server/ws"
	"github.com/alanyoungcy/predictd/internal/service"
)

// shutdownTimeout bounds how long in-flight requests may take after the run
// context is cancelled.
const shutdownTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the server
// and background jobs, and blocks until the context is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	svc := service.NewMarketService(
		deps.Engine,
		deps.MarketStore, deps.OrderStore, deps.PositionStore,
		deps.TradeStore, deps.AuditStore,
		deps.BookCache, deps.PriceCache, deps.RateLimiter, deps.SignalBus,
		a.logger,
	)

	hub := ws.NewHub(deps.SignalBus, a.logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKeyHash:  a.cfg.Server.APIKeyHash,
		RateLimit:   a.cfg.Server.RateLimit,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Markets:   handler.NewMarketHandler(svc, a.logger),
		Orders:    handler.NewOrderHandler(svc, a.logger),
		Positions: handler.NewPositionHandler(svc, a.logger),
	}, hub, deps.RateLimiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: ws hub: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.startJobs(ctx, g, svc)

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
