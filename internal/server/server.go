// Package server wires the websocket endpoints and the health check into
// one HTTP server. Each accepted connection gets its own session controller;
// the server itself holds no per-conversation state.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rumina-ai/rumina-go/pkg/ai/registry"
	"github.com/rumina-ai/rumina-go/pkg/session"
	"github.com/rumina-ai/rumina-go/pkg/telemetry"
	"github.com/rumina-ai/rumina-go/pkg/vad"
)

const shutdownTimeout = 5 * time.Second

// Pinger reports backing-store health for the /healthz endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures the server.
type Config struct {
	Addr     string
	Registry *registry.Registry

	// Telemetry defaults to a NopSink.
	Telemetry telemetry.Sink

	// Health, when set, is consulted by /healthz. Typically the telemetry
	// store's pool.
	Health Pinger

	// Classifier is used by the server-VAD endpoint. Defaults to the energy
	// classifier.
	Classifier vad.Classifier

	MaxHistoryTurns int

	Logger *slog.Logger
}

// Server accepts websocket conversations.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New creates a Server. Endpoints: /ws for marker-driven sessions, /ws/vad
// for server-side segmentation, /healthz for liveness.
func New(cfg Config) *Server {
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.NopSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			// Browsers connect from arbitrary origins; auth happens upstream.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS(false))
	mux.HandleFunc("/ws/vad", s.handleWS(true))
	mux.HandleFunc("/healthz", s.handleHealth)

	s.httpSrv = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", s.cfg.Addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	}
}

func (s *Server) handleWS(serverVAD bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed",
				slog.String("remote", r.RemoteAddr),
				slog.String("error", err.Error()))
			return
		}
		defer conn.Close()

		ctrl := session.New(conn, session.Config{
			Registry:        s.cfg.Registry,
			Telemetry:       s.cfg.Telemetry,
			ServerVAD:       serverVAD,
			Classifier:      s.cfg.Classifier,
			MaxHistoryTurns: s.cfg.MaxHistoryTurns,
			Logger:          s.logger,
		})
		if err := ctrl.Run(r.Context()); err != nil {
			s.logger.Info("session closed with error",
				slog.String("remote", r.RemoteAddr),
				slog.String("error", err.Error()))
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cfg.Health.Ping(ctx); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
