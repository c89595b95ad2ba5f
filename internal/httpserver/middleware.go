package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backoffice/internal/identity"
	"backoffice/internal/model"
	"backoffice/pkg/metrics"
	"backoffice/pkg/rbac"
	"backoffice/pkg/trace"
	"backoffice/pkg/util"
)

const (
	ctxAdminID  = "admin_id"
	ctxIdentity = "identity"
)

// TraceMiddleware propagates X-Trace-ID, generating one when the caller
// sent none.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(trace.HeaderName)
		if traceID == "" {
			traceID = trace.GenerateTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName, traceID)
		c.Next()
	}
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// AuthMiddleware validates the bearer token and resolves the caller's
// identity.
func AuthMiddleware(jwtSecret string, resolver identity.Resolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		adminID, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		id, err := resolver.Resolve(c.Request.Context(), adminID)
		if err != nil {
			if errors.Is(err, model.ErrIdentityNotFound) {
				c.JSON(http.StatusForbidden, gin.H{"error": "admin not found"})
			} else {
				logger.Error("Failed to resolve admin identity",
					zap.String("admin_id", adminID),
					zap.String("trace_id", trace.FromContext(c.Request.Context())),
					zap.Error(err),
				)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve identity"})
			}
			c.Abort()
			return
		}

		c.Set(ctxAdminID, adminID)
		c.Set(ctxIdentity, *id)
		c.Next()
	}
}

// RequirePermission aborts with 403 unless the authenticated identity
// holds permission.
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identityFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not authenticated"})
			c.Abort()
			return
		}

		if err := rbac.CheckPermission(subject(id), permission); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Next()
	}
}

func identityFrom(c *gin.Context) (model.Identity, bool) {
	v, ok := c.Get(ctxIdentity)
	if !ok {
		return model.Identity{}, false
	}
	id, ok := v.(model.Identity)
	return id, ok
}

func subject(id model.Identity) rbac.Subject {
	return rbac.Subject{
		AdminID:      id.AdminID,
		Roles:        id.Roles,
		Permissions:  id.Permissions,
		IsSuperAdmin: id.IsSuperAdmin,
	}
}
