package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/ledgerline/ledgerlog/internal/config"
	"github.com/ledgerline/ledgerlog/internal/service"
)

// Authenticate verifies the bearer token when a signing secret is configured and
// attaches the verified identity. Requests without a token pass through; a token that
// fails verification is rejected with 401 via ErrorHandler.
func Authenticate(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.JWTSecret == "" {
			c.Next()
			return
		}
		token := service.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.Auth.JWTSecret), nil
		})
		if err != nil {
			// Normalize maps *jwt.ValidationError to 401.
			_ = c.Error(err)
			c.Abort()
			return
		}

		SetIdentity(c, service.IdentityFromClaims(claims))
		c.Next()
	}
}
