// Package middleware holds the cross-cutting HTTP concerns: request IDs,
// structured request logging, metrics, and CORS.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// HeaderRequestID is the canonical request ID header, honored when the
// caller supplies one and generated otherwise.
const HeaderRequestID = "X-Request-ID"

const contextKeyRequestID = "request_id"

// RequestID attaches a request ID to the context and echoes it in the
// response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID returns the request ID, or "" outside the middleware.
func GetRequestID(c *gin.Context) string {
	return c.GetString(contextKeyRequestID)
}
