package server

import (
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	"lambda-web-adapter/internal/middleware"
)

// setupRoutes installs the middleware and the serving chain: client assets,
// static files, prerendered pages, then the application. Each step either
// answers and aborts, or falls through to the next.
func (s *Server) setupRoutes() {
	r := s.engine

	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(s.opts.RateLimitRPS, s.opts.RateLimitBurst))

	if s.opts.HealthPath != "" {
		r.GET(s.opts.HealthPath, s.health)
	}
	if s.opts.MetricsPath != "" && s.opts.Metrics != nil {
		r.GET(s.opts.MetricsPath, gin.WrapH(s.opts.Metrics.Handler()))
	}

	var chain []gin.HandlerFunc
	if h := serveDir(s.opts.ClientDir, immutablePrefix(s.opts.AppPath)); h != nil {
		chain = append(chain, h)
	}
	if h := serveDir(s.opts.StaticDir, ""); h != nil {
		chain = append(chain, h)
	}
	chain = append(chain,
		s.servePrerendered,
		middleware.RequestSizeLimit(s.opts.BodySizeLimit),
		s.ssr,
	)

	r.NoRoute(chain...)
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	state := "healthy"
	if !s.opts.Gate.Ready() {
		status = http.StatusServiceUnavailable
		state = "initializing"
	}

	c.JSON(status, gin.H{
		"status":    state,
		"timestamp": time.Now().UTC(),
	})
}

func immutablePrefix(appPath string) string {
	if appPath == "" {
		return ""
	}
	return path.Join("/", appPath, "immutable") + "/"
}
