package main

import (
	"sipcall-backend/internal/auth"
	"sipcall-backend/internal/httpapi"
	"sipcall-backend/internal/rbac"
	"sipcall-backend/internal/users"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMgr *auth.Manager, userSvc *users.Service) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Switch event webhook (switch-side network only).
	// NOTE: deploy behind the switch management network; this endpoint carries
	// no user credentials.
	r.POST("/webhooks/switch/events", h.SwitchEvent)

	// AUTH routes (token issuance).
	authGroup := r.Group("/v1/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(authMgr))
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, err := auth.UserID(c.Request.Context())
			if err != nil {
				c.AbortWithStatusJSON(401, gin.H{"error": "identity required"})
				return
			}
			u, err := userSvc.Get(c.Request.Context(), uid)
			if err != nil {
				c.AbortWithStatusJSON(404, gin.H{"error": "not found"})
				return
			}
			c.JSON(200, u)
		})

		// CALLS routes
		calls := v1.Group("/calls")
		calls.Use(rbac.RequireCapability(userSvc, rbac.CapabilityCall))
		{
			calls.POST("", h.PlaceCall)
			calls.GET("", h.History)
			calls.GET("/:call_id", h.GetCallStatus)
			calls.GET("/:call_id/events", h.CallEvents)
			calls.POST("/:call_id/hangup", h.Hangup)
			calls.POST("/:call_id/hold", h.Hold)
			calls.POST("/:call_id/mute", h.Mute)
		}

		// PRIVACY routes. Export and erasure are rights, not capabilities;
		// only authentication gates them.
		privacy := v1.Group("/privacy")
		{
			privacy.GET("/export", h.ExportData)
			privacy.DELETE("/account", h.DeleteAccount)
			privacy.PUT("/consent", h.UpdateConsent)
		}

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireCapability(userSvc, rbac.CapabilityAdmin))
		{
			admin.GET("/reports/calls", h.CallsReport)
		}
	}
}
