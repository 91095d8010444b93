package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"roombooking/internal/pkg/response"
)

// CronAuth protects the reconciliation endpoints with a shared bearer
// secret. A secret starting with "$2" is treated as a bcrypt hash.
func CronAuth(secret string) gin.HandlerFunc {
	secret = strings.TrimSpace(secret)
	hashed := strings.HasPrefix(secret, "$2")

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logAuthFailure(c, http.StatusUnauthorized, "missing_auth")
			response.Error(c, http.StatusUnauthorized, "AUTH_MISSING", "Authorization header is required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			logAuthFailure(c, http.StatusUnauthorized, "invalid_auth_format")
			response.Error(c, http.StatusUnauthorized, "AUTH_INVALID", "Authorization header must be 'Bearer <token>'")
			c.Abort()
			return
		}

		if secret == "" {
			logAuthFailure(c, http.StatusInternalServerError, "secret_not_configured")
			response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Cron secret is not configured")
			c.Abort()
			return
		}

		if !secretMatches(secret, hashed, parts[1]) {
			logAuthFailure(c, http.StatusForbidden, "invalid_token")
			response.Error(c, http.StatusForbidden, "AUTH_INVALID", "Invalid cron secret")
			c.Abort()
			return
		}

		c.Next()
	}
}

func secretMatches(secret string, hashed bool, presented string) bool {
	if hashed {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(presented)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(presented)) == 1
}

func logAuthFailure(c *gin.Context, status int, reason string) {
	slog.Warn("cron_auth",
		"status", status,
		"request_id", requestID(c),
		"path", c.Request.URL.Path,
		"reason", reason,
	)
}
