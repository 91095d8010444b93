package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"roombooking/internal/domain"
	"roombooking/internal/pkg/response"
)

// Context keys set by the middleware in this package.
const (
	CtxTenant = "tenant"
	CtxEmail  = "email"
	CtxRole   = "role"
)

const TenantHeader = "X-Tenant"

type PolicySource interface {
	Policy(tenant string) (domain.TenantPolicy, bool)
}

// Tenant resolves the partition a request acts on from the X-Tenant header.
// A token scoped to a tenant may only act on that tenant.
func Tenant(policies PolicySource) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant := strings.TrimSpace(c.GetHeader(TenantHeader))
		if tenant == "" {
			tenant = c.GetString(CtxTenant)
		}
		if tenant == "" {
			response.Error(c, http.StatusBadRequest, "TENANT_MISSING", "X-Tenant header is required")
			c.Abort()
			return
		}
		if _, ok := policies.Policy(tenant); !ok {
			response.Error(c, http.StatusBadRequest, "UNKNOWN_TENANT", "Unknown tenant "+tenant)
			c.Abort()
			return
		}
		if scoped := c.GetString(CtxTenant); scoped != "" && scoped != tenant {
			response.Error(c, http.StatusForbidden, "FORBIDDEN", "Token is not valid for this tenant")
			c.Abort()
			return
		}

		c.Set(CtxTenant, tenant)
		c.Next()
	}
}

func TenantFrom(c *gin.Context) string {
	return c.GetString(CtxTenant)
}
