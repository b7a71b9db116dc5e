package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictd/internal/service"
)

// startJobs launches the recurring background jobs on the errgroup: the book
// snapshot publisher and the resolution sweeper. Both run until the context
// is cancelled and never fail the group.
func (a *App) startJobs(ctx context.Context, g *errgroup.Group, svc *service.MarketService) {
	g.Go(func() error {
		a.runTicker(ctx, "book_snapshots", a.cfg.Jobs.SnapshotInterval.Duration, func(ctx context.Context) {
			if err := svc.SyncBooks(ctx); err != nil {
				a.logger.WarnContext(ctx, "book snapshot job failed",
					slog.String("error", err.Error()),
				)
			}
		})
		return nil
	})

	g.Go(func() error {
		a.runTicker(ctx, "resolution_sweep", a.cfg.Jobs.SweepInterval.Duration, svc.SweepExpired)
		return nil
	})
}

// runTicker invokes fn on every tick until the context is cancelled.
func (a *App) runTicker(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	a.logger.InfoContext(ctx, "starting background job",
		slog.String("job", name),
		slog.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "stopping background job", slog.String("job", name))
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}
