package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"azuro-bet/internal/config"
)

// Server runs the HTTP/WebSocket API of the betting service
type Server struct {
	cfg      config.APIConfig
	svc      Service
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new API server
func NewServer(cfg config.APIConfig, svc Service, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(svc, cfg, hub, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.HandleFunc("GET /api/status", handlers.HandleStatus)
	mux.HandleFunc("GET /api/chain", handlers.HandleChain)
	mux.HandleFunc("POST /api/quote", handlers.HandleQuote)
	mux.HandleFunc("POST /api/bets", handlers.HandleSubmit)
	mux.HandleFunc("GET /api/bets", handlers.HandleListBets)
	mux.HandleFunc("GET /api/bets/{id}", handlers.HandleGetBet)
	mux.HandleFunc("GET /ws", handlers.HandleWebSocket)
	mux.Handle("GET /metrics", svc.MetricsHandler())

	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// POST /api/bets waits for receipts
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		svc:      svc,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start starts the API server and hub
func (s *Server) Start() error {
	go s.hub.Run()
	go s.consumeEvents()

	s.logger.Info("api server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.hub.Stop()
	return err
}

// consumeEvents reads lifecycle events from the engine and broadcasts them
func (s *Server) consumeEvents() {
	eventsCh := s.svc.Events()
	if eventsCh == nil {
		return
	}
	for {
		select {
		case evt := <-eventsCh:
			s.hub.Publish(context.Background(), evt)
		case <-s.hub.done:
			return
		}
	}
}
