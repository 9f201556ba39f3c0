// Package app provides the top-level application lifecycle management for the
// market backend. It wires together all dependencies (stores, caches, blob
// storage, the ledger CLI, and services) and runs the HTTP server, WebSocket
// hub, and workflow scheduler until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MixasV/werpool/internal/config"
	"github.com/MixasV/werpool/internal/server"
	"github.com/MixasV/werpool/internal/server/handler"
	"github.com/MixasV/werpool/internal/server/ws"
	"github.com/MixasV/werpool/internal/service"
)

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

// Run is the main entry point. It wires all dependencies, starts the HTTP
// server, the WebSocket hub, and the workflow scheduler, and blocks until the
// context is cancelled or one component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("network", a.cfg.Ledger.Network),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	// --- Services ---
	analyticsSvc := service.NewAnalyticsService(deps.AnalyticsStore, deps.SignalBus, a.logger)

	tradeSvc := service.NewTradeService(
		deps.MarketStore, deps.TradeStore, deps.TxLogStore,
		deps.PoolStore, deps.Ledger, deps.SignalBus,
		analyticsSvc, deps.BonusLocker,
		service.TradingConfig{
			MaxPositionPerMarket: a.cfg.Trading.MaxPositionPerMarket,
			Signer:               a.cfg.Ledger.Signer,
			Network:              a.cfg.Ledger.Network,
		},
		a.logger,
	)

	marketSvc := service.NewMarketService(
		deps.MarketStore, deps.WorkflowStore, deps.TxLogStore,
		deps.PoolStore, deps.Ledger, deps.SignalBus,
		service.LifecycleConfig{
			Signer:  a.cfg.Ledger.Signer,
			Network: a.cfg.Ledger.Network,
		},
		a.logger,
	)

	poolSvc := service.NewPoolService(deps.PoolStore, deps.SignalBus, a.logger)

	archiveSvc := service.NewArchiveService(
		deps.MarketStore, deps.TradeStore, deps.TxLogStore, deps.BlobWriter, a.logger,
	)

	// --- HTTP server and WebSocket hub ---
	hub := ws.NewHub(deps.SignalBus, a.logger)

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(a.logger),
			Markets:   handler.NewMarketHandler(marketSvc, deps.MarketStore, a.logger),
			Trades:    handler.NewTradeHandler(tradeSvc, deps.TradeStore, a.logger),
			Pool:      handler.NewPoolHandler(deps.MarketStore, poolSvc, a.logger),
			Analytics: handler.NewAnalyticsHandler(analyticsSvc, a.logger),
			TxLogs:    handler.NewTransactionLogHandler(deps.TxLogStore, a.logger),
			Archive:   handler.NewArchiveHandler(archiveSvc, a.logger),
		},
		hub,
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.cfg.Scheduler.Enabled {
		g.Go(func() error {
			return a.runScheduler(ctx, marketSvc)
		})
	}

	return g.Wait()
}

// runScheduler periodically executes due workflow actions until the context
// is cancelled.
func (a *App) runScheduler(ctx context.Context, markets *service.MarketService) error {
	interval := a.cfg.Scheduler.Interval.Duration
	a.logger.InfoContext(ctx, "scheduler: starting",
		slog.Duration("interval", interval),
		slog.Int("batch_size", a.cfg.Scheduler.BatchSize),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := markets.RunDueActions(ctx, now.UTC(), a.cfg.Scheduler.BatchSize); err != nil {
				a.logger.ErrorContext(ctx, "scheduler: run due actions failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
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
