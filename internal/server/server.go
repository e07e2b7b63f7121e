// Package server exposes the trade, risk and activity operations over HTTP
// and streams bus events to WebSocket clients.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/riskdesk/internal/domain"
	"github.com/alanyoungcy/riskdesk/internal/metrics"
	"github.com/alanyoungcy/riskdesk/internal/server/handler"
	"github.com/alanyoungcy/riskdesk/internal/server/middleware"
	"github.com/alanyoungcy/riskdesk/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is the number of requests per RateWindow allowed per client
	// IP. Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Trade    *handler.TradeHandler
	Activity *handler.ActivityHandler
	Risk     *handler.RiskHandler
	Accounts *handler.AccountHandler
	Prices   *handler.PriceHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, metrics, rate limiting, auth) and
// attaches the WebSocket hub when one is given.
func NewServer(
	cfg Config,
	handlers Handlers,
	wsHub *ws.Hub,
	limiter domain.RateLimiter,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()

	// Health and metrics are public.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", m.Handler())

	// Trading.
	mux.HandleFunc("POST /api/trade", handlers.Trade.ExecuteTrade)
	mux.HandleFunc("GET /api/trade/history", handlers.Trade.ListOrders)
	mux.HandleFunc("GET /api/trade/activity", handlers.Activity.GetActivity)

	// Risk and portfolio.
	mux.HandleFunc("GET /api/risk", handlers.Risk.GetRisk)
	mux.HandleFunc("POST /api/accounts", handlers.Accounts.CreateAccount)
	mux.HandleFunc("GET /api/portfolio", handlers.Accounts.GetPortfolio)

	// Market data.
	mux.HandleFunc("GET /api/prices", handlers.Prices.ListPrices)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Metrics(m)(h)
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
		logger:     logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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
