package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"backoffice/internal/model"
)

func TestEnvelopeShapes(t *testing.T) {
	n := model.Notification{
		ID:                "n1",
		Type:              "system",
		Title:             "Maintenance",
		Message:           "tonight",
		Priority:          model.PriorityHigh,
		TargetRoles:       []string{},
		TargetPermissions: []string{},
		CreatedAt:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name     string
		envelope Envelope
		contains []string
		excludes []string
	}{
		{
			name:     "welcome",
			envelope: NewWelcome(2),
			contains: []string{`"event":"welcome"`, `"unreadCount":2`, `"message":"Connected to notification service"`},
		},
		{
			name:     "resync list",
			envelope: NewNotificationList(TypeNotificationList, nil, nil),
			contains: []string{`"type":"notification_list"`, `"notificationList":[]`, `"unreadCount":0`},
			excludes: []string{`"notification":`},
		},
		{
			name:     "new notification",
			envelope: NewNotificationList(TypeNewNotification, &n, []model.Notification{n}),
			contains: []string{`"type":"new_notification"`, `"notification":{"id":"n1"`, `"unreadCount":1`},
		},
		{
			name:     "unread count is a bare integer",
			envelope: NewUnreadCount(3),
			contains: []string{`{"event":"unread_count_update","data":3}`},
		},
		{
			name:     "error",
			envelope: NewError("Admin not found"),
			contains: []string{`{"event":"error","data":{"message":"Admin not found"}}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.envelope)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			for _, s := range tt.contains {
				if !strings.Contains(string(b), s) {
					t.Errorf("%s does not contain %s", b, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(string(b), s) {
					t.Errorf("%s contains %s", b, s)
				}
			}
		})
	}
}
