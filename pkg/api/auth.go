package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// authMessage is the fixed string signed with the shared secret. Clients
// present hex(HMAC-SHA256(secret, authMessage)) as their token.
const authMessage = "opus-nx-authenticated"

// deriveToken computes the expected auth token for a secret.
func deriveToken(secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(authMessage))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyToken checks a presented token in constant time.
func verifyToken(secret, token string) bool {
	if secret == "" || token == "" {
		return false
	}
	return hmac.Equal([]byte(token), []byte(deriveToken(secret)))
}

// requireAuth wraps a handler with bearer token validation.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || !verifyToken(s.cfg.Auth.Secret, token) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing bearer token")
		}
		return next(c)
	}
}
