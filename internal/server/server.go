// Package server owns the HTTP server lifecycle: bind, serve in the
// background, drain on shutdown.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/glossbook/auth-backend/pkg/config"
)

// Server wraps http.Server with explicit lifecycle management.
type Server struct {
	srv      *http.Server
	listener net.Listener
	logger   *zap.Logger
}

// New creates a server for the given handler. Nothing is bound until
// Start is called.
func New(cfg *config.ServerConfig, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.Named("http-server"),
	}
}

// Start binds the listen address and begins serving in the background.
// Binding happens synchronously so port conflicts surface here, not in
// a goroutine log line.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.listener = listener

	go func() {
		s.logger.Info("Server listening", zap.String("address", listener.Addr().String()))
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address. Useful when the configured port is 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.srv.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
