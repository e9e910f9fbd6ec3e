package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/daedalus410/RFID-attendance-system/internal/model"
)

const claimsKey = "auth.claims"

// TokenAuth enforces a bearer session token. On success the verified claims
// are stored on the context for the handler; on failure the request is
// aborted with the error envelope before any store access happens.
func TokenAuth(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := tokens.Verify(bearerToken(c.GetHeader("Authorization")))
		if err != nil {
			abortUnauthorized(c, verifyMessage(err))
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// APIKeyAuth enforces the shared device key carried in X-API-Key. Scan
// kiosks that cannot hold per-user tokens run in this mode.
func APIKeyAuth(deviceKey string) gin.HandlerFunc {
	key := []byte(deviceKey)
	return func(c *gin.Context) {
		got := c.GetHeader("X-API-Key")
		if got == "" {
			abortUnauthorized(c, "api key missing")
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), key) != 1 {
			abortUnauthorized(c, "invalid api key")
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims TokenAuth stored on the context.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// bearerToken extracts the token from an Authorization header. Anything that
// is not a bearer scheme reads as no token at all.
func bearerToken(authz string) string {
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}

func verifyMessage(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "token missing"
	case errors.Is(err, ErrTokenExpired):
		return "token expired"
	default:
		return "invalid token"
	}
}

func abortUnauthorized(c *gin.Context, reason string) {
	apiErr := model.NewUnauthorized(reason)
	c.AbortWithStatusJSON(apiErr.Kind.HTTPStatus(), model.ErrorResponse{Error: apiErr})
}
