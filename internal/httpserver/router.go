package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"backoffice/internal/identity"
	"backoffice/pkg/otel"
	"backoffice/pkg/rbac"
)

// ReadyCheck reports whether the service's backing stores are reachable.
type ReadyCheck func(ctx context.Context) error

type Handlers struct {
	Notifications *NotificationHandler
	Connections   *ConnectionHandler

	// Identities is nil when identities are not cached.
	Identities *IdentityHandler

	// Live serves the websocket channel.
	Live gin.HandlerFunc
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	h Handlers,
	resolver identity.Resolver,
	jwtSecret string,
	ready ReadyCheck,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware(), MetricsMiddleware())

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		defer cancel()

		if ready != nil {
			if err := ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.Live != nil {
		r.GET("/ws", h.Live)
	}

	api := r.Group("/api/v1")
	api.Use(AuthMiddleware(jwtSecret, resolver, logger))
	{
		api.POST("/notifications", RequirePermission(rbac.PermissionCreateNotification), h.Notifications.Create)
		api.GET("/notifications", h.Notifications.List)
		api.GET("/notifications/unread", h.Notifications.Unread)
		api.PUT("/notifications/read-all", h.Notifications.MarkAllRead)
		api.PUT("/notifications/:id/read", h.Notifications.MarkRead)
		api.GET("/connections", RequirePermission(rbac.PermissionViewConnections), h.Connections.List)
		if h.Identities != nil {
			api.DELETE("/admins/:id/identity-cache", RequirePermission(rbac.PermissionRefreshIdentity), h.Identities.Invalidate)
		}
	}

	return &Router{Engine: r}
}
