package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lineflow-backend/internal/observability"
)

// HTTPMetrics records request count, latency and in-flight gauge per route
// template. Unrouted paths share one label so scanners cannot blow up
// cardinality; the /metrics scrape itself is not counted.
func HTTPMetrics(m *observability.Metrics, metricsPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || c.Request.URL.Path == metricsPath {
			c.Next()
			return
		}
		m.ApiInflightInc()
		start := time.Now()
		c.Next()
		m.ApiInflightDec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
