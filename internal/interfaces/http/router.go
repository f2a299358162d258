// Package http exposes the worker's operational surface: health checks and the
// Prometheus scrape endpoint.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ComplyTrack/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ComplyTrack/internal/interfaces/http/handlers"
	"github.com/turtacn/ComplyTrack/internal/interfaces/http/middleware"
)

// DefaultMetricsPath is used when RouterConfig.MetricsPath is empty.
const DefaultMetricsPath = "/metrics"

// RouterConfig aggregates the dependencies of the route tree.
type RouterConfig struct {
	// Mode is the gin mode: "debug", "release" or "test".
	Mode string

	Health *handlers.HealthHandler

	// MetricsHandler is mounted at MetricsPath when non-nil.
	MetricsHandler http.Handler
	MetricsPath    string
	// Recorder observes every request when non-nil.
	Recorder middleware.HTTPRecorder

	Logger  logging.Logger
	Logging middleware.LoggingConfig
}

// NewRouter builds the gin engine with global middleware, health checks and
// the metrics endpoint.
func NewRouter(cfg RouterConfig) *gin.Engine {
	switch cfg.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(cfg.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	if cfg.Recorder != nil {
		r.Use(middleware.Metrics(cfg.Recorder))
	}
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger, cfg.Logging))
	}

	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(r)
	}

	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = DefaultMetricsPath
		}
		r.GET(path, gin.WrapH(cfg.MetricsHandler))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return r
}

//Personal.AI order the ending
