package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewNotificationValidate(t *testing.T) {
	valid := NewNotification{Type: TypeSystem, Title: "Maintenance", Message: "Tonight 22:00"}

	tests := []struct {
		name      string
		mutate    func(n *NewNotification)
		wantField string
	}{
		{name: "valid", mutate: func(*NewNotification) {}},
		{name: "missing type", mutate: func(n *NewNotification) { n.Type = "" }, wantField: "type"},
		{name: "blank title", mutate: func(n *NewNotification) { n.Title = "   " }, wantField: "title"},
		{name: "missing message", mutate: func(n *NewNotification) { n.Message = "" }, wantField: "message"},
		{name: "unknown priority", mutate: func(n *NewNotification) { n.Priority = "critical" }, wantField: "priority"},
		{name: "known priority", mutate: func(n *NewNotification) { n.Priority = PriorityUrgent }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := valid
			tt.mutate(&n)
			err := n.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
			if !IsValidation(err) {
				t.Error("IsValidation() = false")
			}
		})
	}
}

func TestNewNotificationBuild(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := NewNotification{
		Type:          " purchase ",
		Title:         "Order",
		Message:       "paid",
		TargetAdminID: " ",
		RelatedID:     "order-9",
		TargetRoles:   []string{"DEFAULT_ADMIN_ROLE", "", "DEFAULT_ADMIN_ROLE"},
	}.Build("id-1", now)

	if n.Priority != PriorityNormal {
		t.Errorf("Priority = %q, want normal", n.Priority)
	}
	if n.Type != TypePurchase {
		t.Errorf("Type = %q, want trimmed", n.Type)
	}
	if n.TargetAdminID != nil {
		t.Errorf("TargetAdminID = %v, want nil", *n.TargetAdminID)
	}
	if n.RelatedID == nil || *n.RelatedID != "order-9" {
		t.Errorf("RelatedID = %v, want order-9", n.RelatedID)
	}
	if len(n.TargetRoles) != 1 {
		t.Errorf("TargetRoles = %v, want deduplicated", n.TargetRoles)
	}
	if n.TargetPermissions == nil {
		t.Error("TargetPermissions is nil, want empty slice")
	}
	if n.IsRead || !n.CreatedAt.Equal(now) || !n.UpdatedAt.Equal(now) {
		t.Errorf("unexpected lifecycle fields: %+v", n)
	}
}

func TestNotificationJSONShape(t *testing.T) {
	n := NewNotification{Type: TypeSystem, Title: "t", Message: "m"}.Build("id-1", time.Unix(0, 0).UTC())
	b, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"targetRoles":[]`, `"targetPermissions":[]`, `"isRead":false`, `"priority":"normal"`} {
		if !strings.Contains(s, want) {
			t.Errorf("json %s missing %s", s, want)
		}
	}
	if strings.Contains(s, "targetAdminId") {
		t.Errorf("json %s should omit empty targetAdminId", s)
	}
}

func TestFeedTransportErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&FeedTransportError{Op: "subscribe", Err: cause})
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not unwrap FeedTransportError")
	}
	if !strings.Contains(err.Error(), "subscribe") {
		t.Errorf("Error() = %q", err.Error())
	}
}
