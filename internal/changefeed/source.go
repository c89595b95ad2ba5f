package changefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"backoffice/internal/model"
)

type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

// Change is one committed mutation as published by a Source. It carries
// ids only; the listener loads the full record.
type Change struct {
	Op   Op     `json:"op"`
	ID   string `json:"id,omitempty"`
	Bulk bool   `json:"bulk,omitempty"`
}

// Encode renders c as a notify payload.
func (c Change) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeChange parses a notify payload.
func DecodeChange(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("failed to decode change payload: %w", err)
	}
	switch c.Op {
	case OpCreate:
		if c.ID == "" {
			return Change{}, errors.New("create change without id")
		}
	case OpUpdate:
		if c.ID == "" && !c.Bulk {
			return Change{}, errors.New("update change without id")
		}
	default:
		return Change{}, fmt.Errorf("unknown change op %q", c.Op)
	}
	return c, nil
}

// Source produces a stream of committed changes. Each Subscribe starts a
// new stream from "now"; changes committed while unsubscribed are not
// replayed.
type Source interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription yields changes in commit order. Next returns a
// *model.FeedTransportError when the stream breaks, or ctx.Err() when ctx
// ends.
type Subscription interface {
	Next(ctx context.Context) (Change, error)
	Close() error
}

// Loader fetches full records referenced by a Change.
type Loader interface {
	GetByID(ctx context.Context, id string) (*model.Notification, error)
}

// UpdateEvent is delivered for mark-read (Notification set) and
// mark-all-read (Bulk, Notification nil).
type UpdateEvent struct {
	Notification *model.Notification
	Bulk         bool
}

type (
	CreateHandler func(ctx context.Context, n *model.Notification)
	UpdateHandler func(ctx context.Context, ev UpdateEvent)
)
