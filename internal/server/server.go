package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/justinndidit/eventPipeline/internal/config"
	"github.com/rs/zerolog"
)

type Server struct {
	logger     *zerolog.Logger
	httpServer *http.Server
}

func New(cfg config.ServerConfig, handler http.Handler, logger *zerolog.Logger) *Server {
	return &Server{
		logger: logger,
		httpServer: &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}
}

func (s *Server) Start() error {
	if s.httpServer == nil {
		return errors.New("HTTP server not initialized")
	}

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server stopped")
	return nil
}
