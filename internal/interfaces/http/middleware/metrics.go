package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPObserver is the slice of the metrics backend this middleware needs.
type HTTPObserver interface {
	ObserveHTTPRequest(method, route string, status int, elapsed time.Duration)
}

// Metrics records request counts and latency per registered route. Requests
// that match no route are labelled "unmatched" so probes and scanners cannot
// explode label cardinality.
func Metrics(observer HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observer.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
