package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerlog/internal/pkg/metrics"
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		// FullPath keeps label cardinality bounded; unmatched routes share one label.
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestLatency.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(duration)
	}
}
