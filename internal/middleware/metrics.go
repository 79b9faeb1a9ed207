package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/enrollhub/enrollment-service/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics records one observation per request, labelled by route template so
// enrollment ids never become label values. The scrape endpoint itself is not
// recorded.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		if _, ok := skipped[route]; ok {
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
