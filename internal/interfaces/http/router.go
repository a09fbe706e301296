// Package http assembles the route tree and owns the server lifecycle.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/tariffwise/internal/interfaces/http/handlers"
	"github.com/turtacn/tariffwise/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree.
type RouterConfig struct {
	Classify *handlers.ClassifyHandler
	Health   *handlers.HealthHandler

	// MetricsHandler serves the scrape endpoint; MetricsObserver feeds
	// per-request observations. Both optional.
	MetricsHandler  http.Handler
	MetricsObserver middleware.HTTPObserver

	Logger logging.Logger
	Mode   string
}

// NewRouter builds the gin engine with global middleware, public probes,
// and the API v1 group.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger))
	}
	if cfg.MetricsObserver != nil {
		r.Use(middleware.Metrics(cfg.MetricsObserver))
	}

	if cfg.Health != nil {
		r.GET("/healthz", cfg.Health.Liveness)
		r.GET("/readyz", cfg.Health.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := r.Group("/api/v1")
	{
		api.POST("/classify", cfg.Classify.Classify)
		api.POST("/conversations/:id/answer", cfg.Classify.Answer)
		api.DELETE("/conversations/:id", cfg.Classify.Abandon)
		api.GET("/chapters/predict", cfg.Classify.PredictChapters)
	}

	return r
}
