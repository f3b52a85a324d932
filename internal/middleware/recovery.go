package middleware

import (
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
)

// Recovery converts a handler panic into an error for ErrorHandler. It must be
// registered after ErrorHandler so the error is still picked up on the way out.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				_ = c.Error(apperrors.NewPanic(r, debug.Stack()))
				c.Abort()
			}
		}()
		c.Next()
	}
}
