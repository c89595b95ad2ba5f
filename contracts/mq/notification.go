package mq

import (
	"time"

	"backoffice/internal/model"
)

// Routing keys on the events exchange.
const (
	RoutingKeyNotificationCreate  = "notification.create"
	RoutingKeyNotificationCreated = "notification.created"

	QueueNotificationCreate = "notification.create.q"
)

// NotificationCreatePayload asks the service to store a notification.
// RequestID makes redeliveries idempotent.
type NotificationCreatePayload struct {
	RequestID string `json:"request_id"`
	model.NewNotification
}

// NotificationCreatedPayload is published after a notification is stored.
type NotificationCreatedPayload struct {
	RequestID         string         `json:"request_id,omitempty"`
	NotificationID    string         `json:"notification_id"`
	Type              string         `json:"type"`
	Priority          model.Priority `json:"priority"`
	TargetAdminID     string         `json:"target_admin_id,omitempty"`
	TargetRoles       []string       `json:"target_roles"`
	TargetPermissions []string       `json:"target_permissions"`
	CreatedAt         time.Time      `json:"created_at"`
}

// NewNotificationCreated builds the created event for n.
func NewNotificationCreated(requestID string, n *model.Notification) NotificationCreatedPayload {
	p := NotificationCreatedPayload{
		RequestID:         requestID,
		NotificationID:    n.ID,
		Type:              n.Type,
		Priority:          n.Priority,
		TargetRoles:       n.TargetRoles,
		TargetPermissions: n.TargetPermissions,
		CreatedAt:         n.CreatedAt,
	}
	if n.TargetAdminID != nil {
		p.TargetAdminID = *n.TargetAdminID
	}
	return p
}
