package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictd/internal/domain"
	"github.com/alanyoungcy/predictd/internal/server/handler"
	"github.com/alanyoungcy/predictd/internal/server/middleware"
	"github.com/alanyoungcy/predictd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKeyHash  string // bcrypt hash; if empty, authentication is disabled
	RateLimit   int    // requests per second per client IP; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Orders    *handler.OrderHandler
	Positions *handler.PositionHandler
}

// Server is the HTTP + WebSocket API server for the market platform.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limit, auth, logging, CORS) wired up. limiter
// may be nil when HTTP rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market lifecycle.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)
	mux.HandleFunc("GET /api/markets/{id}/book", handlers.Markets.GetBook)
	mux.HandleFunc("GET /api/markets/{id}/book/orders", handlers.Markets.GetBookOrders)
	mux.HandleFunc("GET /api/markets/{id}/price", handlers.Markets.GetPrice)
	mux.HandleFunc("GET /api/markets/{id}/trades", handlers.Markets.ListTrades)
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Markets.Claim)
	mux.HandleFunc("POST /api/markets/{id}/fees", handlers.Markets.WithdrawFees)

	// Orders.
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)

	// Positions.
	mux.HandleFunc("GET /api/positions", handlers.Positions.GetPositions)

	// WebSocket event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Second)(h)
	}
	h = middleware.Auth(cfg.APIKeyHash)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

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
