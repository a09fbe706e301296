// Package handlers contains the HTTP endpoint implementations. Handlers
// bind and validate the wire shapes, delegate to the engine, and translate
// application errors to status codes; no classification logic lives here.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/tariffwise/pkg/errors"
)

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// respondError translates an application error into its HTTP status and the
// standard error body. Unknown errors surface as 500 with a generic message
// so internals do not leak.
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)

	message := err.Error()
	if errors.IsServerError(code) {
		message = errors.DefaultMessageForCode(code)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:    code.String(),
		Message: message,
	})
}
