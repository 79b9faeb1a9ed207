package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/enrollhub/enrollment-service/internal/service"
)

type healthChecker interface {
	Check(ctx context.Context) service.HealthReport
}

// HealthHandler reports dependency reachability.
type HealthHandler struct {
	checker healthChecker
}

// NewHealthHandler constructs handler.
func NewHealthHandler(checker healthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health godoc
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} service.HealthReport
// @Failure 503 {object} service.HealthReport
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	report := h.checker.Check(c.Request.Context())
	if !report.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       report.Status,
			"dependencies": report.Dependencies,
			"detail":       "Cannot connect to " + strings.Join(report.Failed, ", "),
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Metrics serves the process registry in the Prometheus text format. A nil
// metrics service answers 503.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return gin.WrapH(metrics.Handler())
}
