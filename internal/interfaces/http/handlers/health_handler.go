package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/tariffwise/internal/infrastructure/monitoring/logging"
)

// DependencyCheck probes one backing service for the readiness endpoint.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checks  []DependencyCheck
	timeout time.Duration
	logger  logging.Logger
}

// NewHealthHandler wires the handler with its dependency probes.
func NewHealthHandler(checks []DependencyCheck, logger logging.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: 3 * time.Second,
		logger:  logger.Named("health"),
	}
}

// Liveness reports process health only.
// GET /healthz
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness probes every dependency and reports 503 when any fails.
// GET /readyz
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[check.Name] = err.Error()
			h.logger.Warn("readiness check failed",
				logging.String("dependency", check.Name), logging.Err(err))
			continue
		}
		results[check.Name] = "ok"
	}

	c.JSON(status, gin.H{
		"status":       statusText(status),
		"dependencies": results,
	})
}

func statusText(status int) string {
	if status == http.StatusOK {
		return "ready"
	}
	return "degraded"
}
