package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/api"
	"github.com/mantonx/vcompress/internal/config"
	"github.com/mantonx/vcompress/internal/logger"
	"github.com/mantonx/vcompress/internal/middleware"
	"github.com/mantonx/vcompress/internal/server/handlers"
)

// Server serves the job API.
type Server struct {
	cfg    config.ServerConfig
	jobs   handlers.JobService
	db     handlers.Pinger
	logger hclog.Logger
	router *gin.Engine
	http   *http.Server
}

// New builds the router. db is used by the health check and may be nil.
func New(cfg config.ServerConfig, jobs handlers.JobService, db handlers.Pinger, log hclog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		jobs:   jobs,
		db:     db,
		logger: logger.OrDefault(log).Named("http"),
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures and returns the main router
func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()

	r.Use(api.ErrorMiddleware())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.ErrorLogger(s.logger))
	r.Use(middleware.Metrics())

	// CORS middleware for browser clients
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	s.setupRoutes(r)
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr is the listen address from the configuration.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
