package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"github.com/ledgerline/ledgerlog/internal/config"
	"github.com/ledgerline/ledgerlog/internal/pkg/apperrors"
)

const HeaderAdminKey = "X-Admin-Key"

// AdminMiddleware guards the log query API with a shared key. With no key configured
// the API is open.
func AdminMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.AdminKey == "" {
			c.Next()
			return
		}
		got := c.GetHeader(HeaderAdminKey)
		if got == "" {
			_ = c.Error(apperrors.NewUnauthorized("missing admin key", nil))
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.Auth.AdminKey)) != 1 {
			_ = c.Error(apperrors.NewForbidden("invalid admin key"))
			c.Abort()
			return
		}
		c.Next()
	}
}
