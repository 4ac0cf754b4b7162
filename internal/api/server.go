// Package api hosts the HTTP server for the versioned control API.
package api

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	mw "github.com/tphakala/biosignal-go/internal/api/middleware"
	v1 "github.com/tphakala/biosignal-go/internal/api/v1"
	"github.com/tphakala/biosignal-go/internal/errors"
	"github.com/tphakala/biosignal-go/internal/logger"
)

// Server timeouts
const (
	ReadTimeout     = 30 * time.Second
	WriteTimeout    = 30 * time.Second
	IdleTimeout     = 120 * time.Second
	ShutdownTimeout = 10 * time.Second
	BodyLimit       = "1M"
)

// Server serves the control API.
type Server struct {
	echo    *echo.Echo
	address string
	bound   atomic.Pointer[string]
}

// GetLogger returns the server module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("api").Module("server")
}

// NewServer creates the echo instance, middleware stack and v1 routes.
func NewServer(address string, registry *acquisition.Registry, opts ...v1.Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = ReadTimeout
	e.Server.WriteTimeout = WriteTimeout
	e.Server.IdleTimeout = IdleTimeout

	e.Use(echomw.Recover())
	e.Use(mw.NewRequestLogger(GetLogger()))
	e.Use(echomw.BodyLimit(BodyLimit))

	v1.New(e, registry, opts...)

	GetLogger().Info("HTTP server initialized", logger.String("address", address))
	return &Server{echo: e, address: address}
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Addr returns the bound listen address once Run is serving, else ""
func (s *Server) Addr() string {
	if p := s.bound.Load(); p != nil {
		return *p
	}
	return ""
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("listen", s.address).
			Build()
	}
	bound := ln.Addr().String()
	s.bound.Store(&bound)
	GetLogger().Info("HTTP server listening", logger.String("address", bound))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.echo.Server.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := s.echo.Server.Shutdown(shutdownCtx); err != nil {
		GetLogger().Error("HTTP server shutdown error", logger.Error(err))
		return err
	}
	<-serveErr
	GetLogger().Info("HTTP server stopped")
	return nil
}
