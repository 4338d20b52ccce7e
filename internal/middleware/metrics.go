package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/imyashkale/provisioner/internal/metrics"
)

// RequestMetrics records count and latency per matched route
func RequestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
