package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roombooking/internal/middleware"
	"roombooking/internal/modules/booking"
	"roombooking/internal/modules/reconcile"
	jwtsvc "roombooking/internal/pkg/jwt"
)

// Router builds the HTTP surface:
//
//	/api/v1/*       tenant scoped booking endpoints (X-Tenant, optional JWT)
//	/api/v1/cron/*  reconciliation jobs behind the cron secret
func (a *App) Router() *gin.Engine {
	j := jwtsvc.New(a.Config.JWTSecret, a.Config.JWTTTL)

	r := gin.New()
	r.Use(middleware.ErrorLogger(), middleware.RequestLogger(), middleware.CORS(a.Config.CORSAllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		cron := v1.Group("/cron", middleware.CronAuth(a.Config.CronSecret))
		reconcile.NewHandler(a.Runner, a.Mismatches).RegisterRoutes(cron)

		tenantScoped := v1.Group("", middleware.OptionalJWTAuth(j), middleware.Tenant(a.Tenants))
		booking.NewHandler(a.Coordinator, a.Cache, a.History).RegisterRoutes(tenantScoped)
	}
	return r
}
