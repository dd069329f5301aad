package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"spotarb/internal/config"
	"spotarb/internal/types"
)

// Server runs the HTTP/WebSocket collaborator surface of spec.md §5/§6:
// a read-only snapshot poll/stream plus the four operator-mutation
// endpoints the trade gate exposes.
type Server struct {
	cfg      config.DashboardConfig
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new API server.
func NewServer(cfg config.DashboardConfig, provider SnapshotProvider, trader TradeController, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, trader, cfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)
	mux.HandleFunc("/api/trade", handlers.HandleTrade)
	mux.HandleFunc("/api/kill-switch", handlers.HandleKillSwitch)
	mux.HandleFunc("/api/size", handlers.HandleSize)
	mux.HandleFunc("/api/max-price", handlers.HandleMaxPrice)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the API server. Blocks until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("api server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// BroadcastSnapshot pushes a SnapshotRecord tick to every connected
// WebSocket client. Called once per second by the agent orchestrator.
func (s *Server) BroadcastSnapshot(rec types.SnapshotRecord) {
	s.hub.BroadcastEvent(NewSnapshotEvent(rec))
}
