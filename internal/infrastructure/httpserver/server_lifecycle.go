package httpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	server := &http.Server{
		Addr:         s.config.Addr,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	if s.logger != nil {
		s.logger.Infof("Starting status server on %s", s.config.Addr)
	}
	if err := s.echo.StartServer(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}
