package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"roombooking/internal/pkg/jwt"
	"roombooking/internal/pkg/response"
)

// JWTAuth requires a bearer token and stores its identity on the context.
func JWTAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return identity(jwtService, true)
}

// OptionalJWTAuth behaves like JWTAuth when a token is present and lets
// anonymous requests through otherwise. Handlers then fall back to the
// actor named in the request body.
func OptionalJWTAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return identity(jwtService, false)
}

func identity(jwtService *jwt.Service, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if required {
				response.Error(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "Authorization header is required")
				c.Abort()
				return
			}
			c.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			response.Error(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>'")
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(parts[1])
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(CtxEmail, strings.ToLower(claims.Email))
		c.Set(CtxRole, claims.Role)
		if claims.Tenant != "" {
			c.Set(CtxTenant, claims.Tenant)
		}
		c.Next()
	}
}
