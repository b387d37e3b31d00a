package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vktrn/marketd/internal/archive"
	"github.com/vktrn/marketd/internal/clock"
	"github.com/vktrn/marketd/internal/events"
	"github.com/vktrn/marketd/internal/market"
	"github.com/vktrn/marketd/internal/server"
	"github.com/vktrn/marketd/internal/server/handler"
	"github.com/vktrn/marketd/internal/server/ws"
)

// ServeMode runs the marketplace API server and WebSocket hub.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	svc := a.buildMarketService(deps)
	a.startHTTPServer(ctx, g, deps, svc)

	return g.Wait()
}

// ArchiveMode runs only the event archiver loop. Useful as a standalone
// worker alongside a fleet of serve-mode instances.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	g, ctx := errgroup.WithContext(ctx)

	if err := a.startArchiver(ctx, g, deps); err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}

	return g.Wait()
}

// FullMode runs the API server plus the event archiver when enabled.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svc := a.buildMarketService(deps)
	a.startHTTPServer(ctx, g, deps, svc)

	if a.cfg.Archive.Enabled {
		if err := a.startArchiver(ctx, g, deps); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	}

	return g.Wait()
}

// buildMarketService assembles the marketplace service from wired
// dependencies.
func (a *App) buildMarketService(deps *Dependencies) *market.Service {
	emitter := events.NewEmitter(deps.SignalBus, deps.Signer, a.logger)

	return market.NewService(
		deps.OrderStore,
		deps.Ledger,
		deps.AssetRegistry,
		deps.EventStore,
		emitter,
		deps.LockManager,
		deps.RateLimiter,
		deps.OpenOrderCache,
		clock.NewSystem(),
		market.Config{
			Commission:      a.cfg.Market.CommissionInt(),
			EscrowAccount:   a.cfg.Market.EscrowAccount,
			PlatformAccount: a.cfg.Market.PlatformAccount,
		},
		a.logger,
	)
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *market.Service) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled by config")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Market:   handler.NewMarketHandler(svc, a.logger),
		Accounts: handler.NewAccountHandler(deps.Ledger, a.logger),
		Stream:   handler.NewStreamHandler(deps.SignalBus, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.ApiKey,
		RateLimiter: deps.RateLimiter,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiver adds the event archiver loop to the given errgroup.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archiver requires s3 blob storage")
	}

	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	runner := archive.NewRunner(deps.Archiver, a.cfg.Archive.Interval.Duration, retention, a.logger)

	g.Go(func() error {
		return runner.Run(ctx)
	})

	return nil
}
