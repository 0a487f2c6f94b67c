// Package server is the web role's HTTP surface: health and readiness,
// metrics, and the operational task API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/taqastore/storefront/internal/config"
	"github.com/taqastore/storefront/pkg/logger"
)

// Server manages the HTTP listener lifecycle.
type Server struct {
	cfg  config.ServerConfig
	log  *logger.Logger
	http *http.Server
}

// New builds the server around a fully assembled handler.
func New(cfg config.ServerConfig, log *logger.Logger, handler http.Handler) *Server {
	if log == nil {
		log = logger.NewDefault("server")
	}
	return &Server{
		cfg: cfg,
		log: log,
		http: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

// Run serves until the context is cancelled or the listener fails. On
// cancellation it drains gracefully within the configured shutdown
// timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Infof("HTTP server listening on %s", s.cfg.Addr())
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		return err
	}
}

func (s *Server) shutdown() error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("graceful shutdown incomplete, closing")
		return s.http.Close()
	}
	s.log.Info("HTTP server stopped")
	return nil
}
