package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPMetricsMiddleware creates a Gin middleware for collecting HTTP metrics
func HTTPMetricsMiddleware(collector *MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		// Process request
		c.Next()

		// Record metrics
		collector.RecordHTTPRequest(
			c.Request.Method,
			path,
			c.Writer.Status(),
			time.Since(start),
		)
	}
}
