// Package gateway owns the websocket endpoint: it authenticates
// connections, registers them, and dispatches every inbound frame to
// the relay's services.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/relay/internal/auth"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/presence"
	"github.com/haasonsaas/relay/internal/registry"
)

// Deps are the constructed services the gateway serves.
type Deps struct {
	Auth            *auth.Service
	Registry        *registry.Registry
	Presence        *presence.Manager
	Dispatcher      *Dispatcher
	Metrics         *observability.Metrics
	MetricsRegistry *prometheus.Registry
	Logger          *slog.Logger
}

// Server is the relay's websocket gateway server.
type Server struct {
	config     *config.Config
	auth       *auth.Service
	registry   *registry.Registry
	presence   *presence.Manager
	dispatcher *Dispatcher
	metrics    *observability.Metrics
	promReg    *prometheus.Registry
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	httpServer    *http.Server
	metricsServer *http.Server
}

// NewServer creates a gateway server.
func NewServer(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:     cfg,
		auth:       deps.Auth,
		registry:   deps.Registry,
		presence:   deps.Presence,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		promReg:    deps.MetricsRegistry,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns the gateway's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealthz)
	return mux
}

// Start begins serving the websocket endpoint and, when configured, the
// metrics endpoint on its own port. Listen failures surface here; serve
// errors after that are logged.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway server error", "error", err)
		}
	}()
	s.logger.Info("gateway listening", "addr", addr)

	if s.promReg != nil && s.config.Server.MetricsPort != 0 {
		metricsAddr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.MetricsPort)
		metricsListener, err := net.Listen("tcp", metricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
		s.metricsServer = &http.Server{
			Addr:              metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := s.metricsServer.Serve(metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server error", "error", err)
			}
		}()
		s.logger.Info("metrics listening", "addr", metricsAddr)
	}
	return nil
}

// Stop closes every live connection and shuts both servers down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping gateway")
	for _, conn := range s.registry.Snapshot() {
		if err := conn.Sender.Close(websocket.CloseGoingAway, "server shutting down"); err != nil {
			s.logger.Debug("close on shutdown failed", "connection_id", conn.ID, "error", err)
		}
	}

	var firstErr error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			firstErr = err
		}
		s.httpServer = nil
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		s.metricsServer = nil
	}
	return firstErr
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}
