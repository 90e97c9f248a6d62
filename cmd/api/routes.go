package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/suman7063/ifindLife-sub000/internal/auth"
	"github.com/suman7063/ifindLife-sub000/internal/config"
	"github.com/suman7063/ifindLife-sub000/internal/httpapi"
	"github.com/suman7063/ifindLife-sub000/internal/media"
	"github.com/suman7063/ifindLife-sub000/internal/rbac"
	"github.com/suman7063/ifindLife-sub000/internal/realtime"
)

type routeDeps struct {
	auth      *auth.Manager
	sessions  httpapi.Sessions
	ws        *realtime.Server
	transport *media.WebhookTransport
	media     config.MediaConfig
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Media provider callbacks, authenticated by HMAC signature.
	wh := media.WebhookHandler{
		Transport: d.transport,
		Secret:    []byte(d.media.WebhookSecret),
		Tolerance: d.media.WebhookTolerance,
		Now:       time.Now,
	}
	r.POST("/webhooks/media", wh.Handle)

	h := httpapi.Handlers{Auth: d.auth, Sessions: d.sessions}

	// NOTE: placeholder login; real credential validation is out of scope here.
	r.POST("/v1/auth/login", h.Login)

	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(d.auth))
	{
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "role": role})
		})

		// Realtime channel; browsers pass the token as ?access_token=.
		v1.GET("/ws", d.ws.Handle)

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", rbac.RequireAnyRole(rbac.RoleUser), h.CreateSession)
			sessions.GET("/:id", h.GetSession)
			sessions.POST("/:id/accept", rbac.RequireAnyRole(rbac.RoleExpert), h.AcceptSession)
			sessions.POST("/:id/decline", rbac.RequireAnyRole(rbac.RoleExpert), h.DeclineSession)
			sessions.POST("/:id/cancel", rbac.RequireAnyRole(rbac.RoleUser), h.CancelSession)
			sessions.POST("/:id/end", h.EndSession)
			sessions.POST("/:id/extend", rbac.RequireAnyRole(rbac.RoleUser), h.ExtendSession)
		}
	}
}
