package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backoffice/pkg/logger"
)

// IdentityInvalidator drops a cached admin identity.
type IdentityInvalidator interface {
	Invalidate(ctx context.Context, adminID string) error
}

type IdentityHandler struct {
	cache  IdentityInvalidator
	logger *zap.Logger
}

func NewIdentityHandler(cache IdentityInvalidator, logger *zap.Logger) *IdentityHandler {
	return &IdentityHandler{
		cache:  cache,
		logger: logger,
	}
}

// Invalidate handles DELETE /api/v1/admins/:id/identity-cache. Live
// sessions keep their snapshot; the admin's next join or request
// re-resolves.
func (h *IdentityHandler) Invalidate(c *gin.Context) {
	adminID := c.Param("id")
	log := logger.WithTrace(c.Request.Context(), h.logger)

	if err := h.cache.Invalidate(c.Request.Context(), adminID); err != nil {
		log.Error("Failed to invalidate cached identity", zap.String("admin_id", adminID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to invalidate identity"})
		return
	}

	log.Info("Cached identity invalidated",
		zap.String("admin_id", adminID),
		zap.String("requested_by", c.GetString(ctxAdminID)),
	)
	c.Status(http.StatusNoContent)
}
