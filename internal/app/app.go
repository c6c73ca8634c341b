// Package app provides the top-level application lifecycle for the memecast
// server. It wires the stores, cache, ledger, services, WebSocket hub,
// sweeper and HTTP server, then runs them until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcusleung/memecast/internal/config"
	"github.com/marcusleung/memecast/internal/ledger"
	"github.com/marcusleung/memecast/internal/pricing"
	"github.com/marcusleung/memecast/internal/relay"
	"github.com/marcusleung/memecast/internal/server"
	"github.com/marcusleung/memecast/internal/server/handler"
	"github.com/marcusleung/memecast/internal/server/ws"
	"github.com/marcusleung/memecast/internal/service"
	"github.com/marcusleung/memecast/internal/sweeper"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions called in reverse order on shutdown.
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

// Run wires all dependencies, starts the hub, the sweeper and the HTTP
// server, and blocks until the context is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	logger := a.logger

	// Core economics.
	led := ledger.New(deps.MarketStore, ledger.Config{
		Curve: pricing.Curve{
			Base: a.cfg.Market.BasePrice,
			K:    a.cfg.Market.CurveK,
		},
		FeeRate: a.cfg.Market.FeeRate,
	}, logger)

	// Transport.
	router := ws.NewRouter(logger)
	hub := ws.NewHub(router, logger)

	// Services.
	registry := relay.NewRegistry(logger)
	markets := service.NewMarketService(led, deps.MarketStore, deps.UserStore, deps.HistoryStore, deps.MarketCache, deps.SignalBus, hub, logger)
	trades := service.NewTradeService(led, deps.TradeStore, deps.HistoryStore, deps.MarketCache, deps.SignalBus, hub, logger)
	streams := service.NewStreamService(led, registry, deps.MarketCache, hub, deps.SignalBus, logger, a.cfg.Market.PlaybackBaseURL)

	hub.SetOfflineHook(streams.HandleDisconnect)
	handler.NewEvents(hub, markets, trades, streams, logger).Register(router)

	// Lifecycle.
	sw := sweeper.New(
		led,
		deps.MarketStore,
		deps.LockManager,
		deps.MarketCache,
		deps.SignalBus,
		hub,
		logger,
		a.cfg.Market.SweepInterval.Duration,
	)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}, server.Handlers{
		Health: handler.NewHealthHandler(logger),
		Upload: handler.NewUploadHandler(deps.Uploader, logger),
	}, hub, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		return sw.Run(gctx)
	})
	if deps.SignalBus != nil {
		mirror := service.NewRoomMirror(deps.SignalBus, hub, logger)
		g.Go(func() error {
			return mirror.Run(gctx)
		})
	}
	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
