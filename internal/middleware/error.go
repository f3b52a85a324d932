package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
	"github.com/ledgerline/ledgerlog/internal/service"
)

// ginSink adapts a gin context to the error service's response writer.
type ginSink struct {
	c *gin.Context
}

func (s ginSink) Written() bool { return s.c.Writer.Written() }

func (s ginSink) WriteJSON(status int, body any) {
	s.c.AbortWithStatusJSON(status, body)
}

// ErrorHandler turns the last error a handler attached to the context into the JSON
// failure response, after recording it.
func ErrorHandler(errs *service.ErrorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}
		err := Normalize(last.Err)
		extra := map[string]any{"route": c.FullPath()}
		if len(c.Errors) > 1 {
			extra["errorCount"] = len(c.Errors)
		}
		errs.HandleError(c.Request.Context(), err, RequestContext(c), ginSink{c}, extra)
	}
}

// NotFound is the fallback for unmatched routes.
func NotFound() gin.HandlerFunc {
	return func(c *gin.Context) {
		_ = c.Error(apperrors.NewNotFound("Route " + c.Request.Method + " " + c.Request.URL.Path + " not found"))
		c.Abort()
	}
}
