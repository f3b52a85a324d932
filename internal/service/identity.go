package service

import (
	"strings"

	"github.com/golang-jwt/jwt"
	"github.com/ledgerline/ledgerlog/internal/model"
)

// ExtractIdentity reads the caller from a bearer token WITHOUT verifying its signature.
// The result labels log records only; it must never feed an authorization decision.
// Absent or malformed tokens yield an empty identity.
func ExtractIdentity(authorization string) model.Identity {
	token := BearerToken(authorization)
	if token == "" {
		return model.Identity{}
	}

	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(token, claims); err != nil {
		return model.Identity{}
	}

	return IdentityFromClaims(claims)
}

// IdentityFromClaims reads username, userType and session id, accepting the standard
// claim names as fallbacks.
func IdentityFromClaims(claims jwt.MapClaims) model.Identity {
	return model.Identity{
		Username:  firstClaim(claims, "username", "sub"),
		UserType:  firstClaim(claims, "userType", "role"),
		SessionID: firstClaim(claims, "sessionId", "sid"),
	}
}

// BearerToken returns the token of a "Bearer <token>" header, or "".
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func firstClaim(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := claims[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
