package repository

import (
	"context"

	"backoffice/internal/model"
)

// NotificationStore persists notifications. Every committed mutation is
// also published on the store's change source.
type NotificationStore interface {
	// Create validates in, assigns an id and timestamps, and stores it
	// unread.
	Create(ctx context.Context, in model.NewNotification) (*model.Notification, error)
	// MarkRead is idempotent. A change is published only when the record
	// flips from unread to read.
	MarkRead(ctx context.Context, id string) (*model.Notification, error)
	// MarkAllRead flips every unread record and returns how many flipped.
	// One bulk change is published when that number is positive.
	MarkAllRead(ctx context.Context) (int64, error)
	// ListUnread returns unread records newest first. A nil identity
	// returns all of them, otherwise only those it is targeted by.
	ListUnread(ctx context.Context, identity *model.Identity) ([]model.Notification, error)
	List(ctx context.Context) ([]model.Notification, error)
	GetByID(ctx context.Context, id string) (*model.Notification, error)
}
