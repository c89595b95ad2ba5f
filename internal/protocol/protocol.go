// Package protocol is the live-channel vocabulary shared by the delivery
// layer and the websocket transport.
package protocol

import (
	"encoding/json"

	"backoffice/internal/model"
)

// Event names.
const (
	EventJoin              = "join"
	EventWelcome           = "welcome"
	EventNotification      = "notification"
	EventUnreadCountUpdate = "unread_count_update"
	EventError             = "error"
)

// Notification payload types.
const (
	TypeNotificationList        = "notification_list"
	TypeNewNotification         = "new_notification"
	TypeNotificationListUpdated = "notification_list_updated"
)

// Envelope is one frame on the wire.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Inbound is a client frame before its data is decoded.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Join struct {
	AdminID   string `json:"adminId"`
	AuthToken string `json:"authToken"`
}

type Welcome struct {
	Message     string `json:"message"`
	UnreadCount int    `json:"unreadCount"`
}

type NotificationPayload struct {
	Type             string               `json:"type"`
	Notification     *model.Notification  `json:"notification,omitempty"`
	NotificationList []model.Notification `json:"notificationList"`
	UnreadCount      int                  `json:"unreadCount"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewWelcome(unread int) Envelope {
	return Envelope{Event: EventWelcome, Data: Welcome{
		Message:     "Connected to notification service",
		UnreadCount: unread,
	}}
}

// NewNotificationList builds a notification frame. n is only set for
// new_notification.
func NewNotificationList(kind string, n *model.Notification, list []model.Notification) Envelope {
	if list == nil {
		list = []model.Notification{}
	}
	return Envelope{Event: EventNotification, Data: NotificationPayload{
		Type:             kind,
		Notification:     n,
		NotificationList: list,
		UnreadCount:      len(list),
	}}
}

func NewUnreadCount(count int) Envelope {
	return Envelope{Event: EventUnreadCountUpdate, Data: count}
}

func NewError(message string) Envelope {
	return Envelope{Event: EventError, Data: ErrorPayload{Message: message}}
}
