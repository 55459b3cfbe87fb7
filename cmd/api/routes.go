package main

import (
	"voiceagent-platform/internal/auth"
	"voiceagent-platform/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Carrier voice webhooks (public).
	// NOTE: These should be protected by Twilio signature validation in production.
	wh := httpapi.Webhooks{Orch: deps.Orch}
	{
		r.POST("/webhooks/voice/answer", wh.Answer)
		r.POST("/webhooks/voice/turn", wh.Turn)
		r.POST("/webhooks/voice/status", wh.Status)
	}

	h := httpapi.Handlers{
		Auth:  deps.Auth,
		Orch:  deps.Orch,
		Store: deps.Store,
	}

	// Token issuance is the only unauthenticated API route.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(deps.Auth))
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(200, gin.H{"user_id": uid, "role": role})
		})

		callsGroup := v1.Group("/calls")
		callsGroup.Use(auth.RequireRole(auth.RoleOperator))
		{
			callsGroup.POST("/start", h.StartCall)
			callsGroup.GET("/:call_id", h.GetCall)
		}

		admin := v1.Group("/admin")
		admin.Use(auth.RequireRole(auth.RoleAdmin))
		{
			admin.GET("/sessions", h.ListActiveSessions)
		}
	}
}
