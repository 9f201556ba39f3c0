// Package server assembles the HTTP API of the market backend.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MixasV/werpool/internal/server/handler"
	"github.com/MixasV/werpool/internal/server/middleware"
	"github.com/MixasV/werpool/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Trades    *handler.TradeHandler
	Pool      *handler.PoolHandler
	Analytics *handler.AnalyticsHandler
	TxLogs    *handler.TransactionLogHandler
	Archive   *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API server for the market backend.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (logging, CORS) applied.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market CRUD and lifecycle.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/slug/{slug}", handlers.Markets.GetMarketBySlug)
	mux.HandleFunc("POST /api/markets/{id}/activate", handlers.Markets.Activate)
	mux.HandleFunc("POST /api/markets/{id}/suspend", handlers.Markets.Suspend)
	mux.HandleFunc("POST /api/markets/{id}/close", handlers.Markets.Close)
	mux.HandleFunc("POST /api/markets/{id}/void", handlers.Markets.Void)
	mux.HandleFunc("POST /api/markets/{id}/settle", handlers.Markets.Settle)
	mux.HandleFunc("POST /api/markets/{id}/settlement/override", handlers.Markets.OverrideSettlement)
	mux.HandleFunc("POST /api/markets/{id}/patrol-signals", handlers.Markets.RecordPatrolSignal)
	mux.HandleFunc("DELETE /api/markets/{id}/patrol-signals/{signalID}", handlers.Markets.ClearPatrolSignal)

	// Pool state.
	mux.HandleFunc("POST /api/markets/{id}/pool", handlers.Markets.CreatePool)
	mux.HandleFunc("GET /api/markets/{id}/pool", handlers.Pool.GetPoolState)
	mux.HandleFunc("PUT /api/markets/{id}/pool", handlers.Pool.SyncPoolState)
	mux.HandleFunc("POST /api/markets/{id}/pool/refresh", handlers.Pool.RefreshPoolState)

	// Trading.
	mux.HandleFunc("POST /api/markets/{id}/quote", handlers.Trades.Quote)
	mux.HandleFunc("POST /api/markets/{id}/trades", handlers.Trades.ExecuteTrade)
	mux.HandleFunc("GET /api/markets/{id}/trades", handlers.Trades.ListTrades)

	// Analytics, transaction log, archive.
	mux.HandleFunc("GET /api/markets/{id}/analytics", handlers.Analytics.ListSnapshots)
	mux.HandleFunc("GET /api/markets/{id}/transactions", handlers.TxLogs.ListTransactions)
	mux.HandleFunc("POST /api/markets/{id}/archive", handlers.Archive.ArchiveMarket)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware returns middleware that sets CORS headers for the allowed
// origins. If no origins are specified, all origins are allowed.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			// Handle preflight requests.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
