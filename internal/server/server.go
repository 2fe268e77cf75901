// Package server runs the application as a standalone HTTP server: static
// assets, prerendered pages and server-side rendering behind one gin engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"lambda-web-adapter/internal/adapters/storage"
	"lambda-web-adapter/internal/metrics"
	"lambda-web-adapter/internal/prerendered"
	"lambda-web-adapter/internal/respond"
	"lambda-web-adapter/pkg/lambda"
)

const (
	// DefaultHealthPath answers liveness probes
	DefaultHealthPath = "/_health"
	// DefaultMetricsPath exposes prometheus metrics
	DefaultMetricsPath = "/_metrics"

	shutdownTimeout = 30 * time.Second
)

// Options configures a Server
type Options struct {
	// ClientDir holds the built client assets; files under
	// /{AppPath}/immutable/ are cached forever.
	ClientDir string
	StaticDir string
	AppPath   string

	// Files and Table serve prerendered pages. Table targets are keys in Files.
	Files storage.FileStorage
	Table prerendered.Table

	Origin         string
	XFFDepth       int
	AddressHeader  string
	ProtocolHeader string
	HostHeader     string
	BodySizeLimit  int64
	EnvPrefix      string

	RateLimitRPS   float64
	RateLimitBurst int

	HealthPath  string
	MetricsPath string

	Gate      *lambda.Gate
	Responder respond.Responder
	Metrics   *metrics.Metrics
}

// Server is the standalone HTTP server
type Server struct {
	opts   Options
	engine *gin.Engine
}

// New creates a Server and sets up its routes
func New(opts Options) *Server {
	if opts.Gate == nil {
		opts.Gate = lambda.NewGate(nil)
	}
	if opts.Table == nil {
		opts.Table = prerendered.Table{}
	}
	if opts.HostHeader == "" {
		opts.HostHeader = "host"
	}
	if opts.XFFDepth == 0 {
		opts.XFFDepth = 1
	}

	s := &Server{
		opts:   opts,
		engine: gin.New(),
	}
	s.setupRoutes()

	return s
}

// Handler returns the http.Handler serving every route
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe waits for initialization, then serves on socketPath when
// set, else on addr. It shuts down gracefully when ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr, socketPath string) error {
	if err := s.opts.Gate.Wait(ctx); err != nil {
		return fmt.Errorf("application initialization failed: %w", err)
	}

	network, address := "tcp", addr
	if socketPath != "" {
		network, address = "unix", socketPath
		// A stale socket from a previous run would make Listen fail
		if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale socket %s: %w", socketPath, err)
		}
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	logrus.WithFields(logrus.Fields{
		"network": network,
		"address": address,
	}).Info("Server started")

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logrus.Info("Server exited")
	return nil
}
