package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/carpool/pkg/logger"
)

const healthTimeout = 2 * time.Second

// AdminMetrics handles GET /v1/admin/metrics
func (h *Handlers) AdminMetrics(c *gin.Context) {
	summary, err := h.Metrics.Summary(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Health handles GET /health. It reports 503 when any dependency is down.
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.HealthChecks))
	for name, check := range h.HealthChecks {
		if err := check(ctx); err != nil {
			h.Logger.Warn("Health check failed", logger.String("dependency", name), logger.Err(err))
			checks[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "up"
	}

	resp := gin.H{"status": "healthy", "checks": checks}
	if status != http.StatusOK {
		resp["status"] = "degraded"
	}
	if h.Hub != nil {
		resp["websocket_connections"] = h.Hub.ActiveConnections()
	}

	c.JSON(status, resp)
}
