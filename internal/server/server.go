// Package server exposes the advisor and market data over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"markyt-agent/internal/agents"
	"markyt-agent/internal/config"
	"markyt-agent/internal/models"
	"markyt-agent/internal/resilience"
)

// ChatService answers one conversation turn.
type ChatService interface {
	Chat(ctx context.Context, message string, history []models.Message) (*agents.ChatResult, error)
}

// MarketService serves the market data endpoints.
type MarketService interface {
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	ChartData(ctx context.Context, symbol, period, interval string) (*models.ChartSeries, error)
}

// HealthReporter reports the health of the server's dependencies.
type HealthReporter interface {
	Check(ctx context.Context) resilience.SystemHealth
}

// Option configures a Server.
type Option func(*Server)

// WithHealth reports h on GET /api/health.
func WithHealth(h HealthReporter) Option {
	return func(s *Server) {
		s.health = h
	}
}

// Server is the HTTP server for the advisor API.
type Server struct {
	chat   ChatService
	market MarketService
	health HealthReporter
	cfg    config.ServerConfig
	logger zerolog.Logger
	server *http.Server
}

// NewServer creates a new HTTP server. chat may be nil when no LLM key is
// configured; the chat endpoint then answers 503.
func NewServer(chat ChatService, market MarketService, cfg config.ServerConfig, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		chat:   chat,
		market: market,
		cfg:    cfg,
		logger: logger.With().Str("component", "server").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           applyMiddleware(mux, s.logger, cfg.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Chat turns may run several model completions.
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chart/{symbol}", s.handleChart)
	mux.HandleFunc("GET /api/quote/{symbol}", s.handleQuote)
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.server.Addr).
		Strs("allowed_origins", s.cfg.AllowedOrigins).
		Bool("chat_enabled", s.chat != nil).
		Msg("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
