package model

import (
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification types emitted by the back office producers.
const (
	TypeSystem     = "system"
	TypePurchase   = "purchase"
	TypeRedemption = "redemption"
	TypeBuyToken   = "buyToken"
)

// Notification is the persisted record. Only IsRead and UpdatedAt change
// after creation.
type Notification struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Title             string    `json:"title"`
	Message           string    `json:"message"`
	Priority          Priority  `json:"priority"`
	RelatedID         *string   `json:"relatedId,omitempty"`
	TargetAdminID     *string   `json:"targetAdminId,omitempty"`
	TargetRoles       []string  `json:"targetRoles"`
	TargetPermissions []string  `json:"targetPermissions"`
	IsRead            bool      `json:"isRead"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NewNotification is what producers submit.
type NewNotification struct {
	Type              string   `json:"type"`
	Title             string   `json:"title"`
	Message           string   `json:"message"`
	Priority          Priority `json:"priority,omitempty"`
	RelatedID         string   `json:"relatedId,omitempty"`
	TargetAdminID     string   `json:"targetAdminId,omitempty"`
	TargetRoles       []string `json:"targetRoles,omitempty"`
	TargetPermissions []string `json:"targetPermissions,omitempty"`
}

// Validate checks required fields and the priority enum.
func (n NewNotification) Validate() error {
	switch {
	case strings.TrimSpace(n.Type) == "":
		return &ValidationError{Field: "type", Reason: "is required"}
	case strings.TrimSpace(n.Title) == "":
		return &ValidationError{Field: "title", Reason: "is required"}
	case strings.TrimSpace(n.Message) == "":
		return &ValidationError{Field: "message", Reason: "is required"}
	case n.Priority != "" && !n.Priority.Valid():
		return &ValidationError{Field: "priority", Reason: "must be one of low, normal, high, urgent"}
	}
	return nil
}

// Build turns a validated request into a record with the given id and
// creation time. Empty optional strings become nil, empty target sets
// become empty slices, duplicates and blanks are dropped.
func (n NewNotification) Build(id string, now time.Time) Notification {
	priority := n.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	return Notification{
		ID:                id,
		Type:              strings.TrimSpace(n.Type),
		Title:             n.Title,
		Message:           n.Message,
		Priority:          priority,
		RelatedID:         optional(n.RelatedID),
		TargetAdminID:     optional(n.TargetAdminID),
		TargetRoles:       normalizeSet(n.TargetRoles),
		TargetPermissions: normalizeSet(n.TargetPermissions),
		IsRead:            false,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func normalizeSet(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
