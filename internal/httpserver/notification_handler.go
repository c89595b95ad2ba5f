package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/targeting"
	"backoffice/pkg/logger"
)

// NotificationHandler is the REST producer and reader surface over the
// store. Live clients are updated by the change feed, never from here.
type NotificationHandler struct {
	store  repository.NotificationStore
	logger *zap.Logger
}

func NewNotificationHandler(store repository.NotificationStore, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		store:  store,
		logger: logger,
	}
}

// Create handles POST /api/v1/notifications
func (h *NotificationHandler) Create(c *gin.Context) {
	var req model.NewNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	n, err := h.store.Create(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Failed to create notification", err)
		return
	}

	logger.WithTrace(c.Request.Context(), h.logger).Info("Notification created",
		zap.String("notification_id", n.ID),
		zap.String("type", n.Type),
		zap.String("created_by", c.GetString(ctxAdminID)),
	)
	c.JSON(http.StatusCreated, n)
}

// List handles GET /api/v1/notifications. Super admins see every record,
// everyone else only what targets them.
func (h *NotificationHandler) List(c *gin.Context) {
	id, _ := identityFrom(c)

	list, err := h.store.List(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to list notifications", err)
		return
	}
	if !id.IsSuperAdmin {
		list = targeting.Filter(list, id)
	}

	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// Unread handles GET /api/v1/notifications/unread. With all=true a super
// admin gets the unfiltered unread list.
func (h *NotificationHandler) Unread(c *gin.Context) {
	id, _ := identityFrom(c)

	filter := &id
	if c.Query("all") == "true" {
		if !id.IsSuperAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		filter = nil
	}

	list, err := h.store.ListUnread(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "Failed to list unread notifications", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": list,
		"unreadCount":   len(list),
	})
}

// MarkRead handles PUT /api/v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	n, err := h.store.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to mark notification read", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// MarkAllRead handles PUT /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	updated, err := h.store.MarkAllRead(c.Request.Context())
	if err != nil {
		h.fail(c, "Failed to mark all notifications read", err)
		return
	}

	logger.WithTrace(c.Request.Context(), h.logger).Info("Notifications marked read",
		zap.Int64("updated", updated),
		zap.String("admin_id", c.GetString(ctxAdminID)),
	)
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *NotificationHandler) fail(c *gin.Context, msg string, err error) {
	switch {
	case model.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.WithTrace(c.Request.Context(), h.logger).Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
