package main

import (
	"call-screening/internal/httpapi"
	"call-screening/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerPublicRoutes wires unauthenticated routes.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerPublicRoutes(r *gin.Engine, h httpapi.Handlers) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks. Signed with RETELL_WEBHOOK_SECRET when configured.
	r.POST("/webhooks/retell", h.RetellWebhook)
	// Some agent configurations post lifecycle events to the root URL.
	r.POST("/", h.RetellWebhook)

	// Screening is called by the voice agent's custom tool, which cannot
	// carry an operator token.
	r.POST("/screen", h.Screen)
}

// registerProtectedRoutes wires operator routes behind a bearer token.
func registerProtectedRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// CALLS routes (read-only, durable view)
		calls := v1.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleAnalyst))
		{
			calls.GET("", h.ListCalls)
			calls.GET("/active", h.ActiveCalls)
			calls.GET("/:call_id", h.GetCall)
		}

		// Manual warm transfer. Analysts are read-only.
		v1.POST("/transfer-call", rbac.RequireAnyRole(rbac.RoleOperator), h.TransferCall)
	}
}
