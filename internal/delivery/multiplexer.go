// Package delivery pushes notification state to live admin connections.
//
// Every push carries the subscriber's full unread list and count,
// recomputed from the store, never a delta. A client that missed pushes
// while offline is brought up to date by the resync sent on join.
package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"backoffice/internal/changefeed"
	"backoffice/internal/model"
	"backoffice/internal/protocol"
	"backoffice/internal/registry"
	"backoffice/internal/targeting"
	"backoffice/pkg/logger"
	"backoffice/pkg/metrics"
	"backoffice/pkg/otel"
)

// UnreadLister is the part of the notification store used here.
type UnreadLister interface {
	ListUnread(ctx context.Context, identity *model.Identity) ([]model.Notification, error)
}

type Multiplexer struct {
	store    UnreadLister
	registry *registry.Registry
	logger   *zap.Logger

	// held for a whole fan-out pass and for a join's resync, so a resync
	// never lands after a newer push to the same connection
	mu sync.Mutex
}

func NewMultiplexer(store UnreadLister, reg *registry.Registry, logger *zap.Logger) *Multiplexer {
	return &Multiplexer{
		store:    store,
		registry: reg,
		logger:   logger,
	}
}

// HandleCreated pushes new_notification to every connection n targets.
func (m *Multiplexer) HandleCreated(ctx context.Context, n *model.Notification) {
	m.fanout(ctx, "created",
		func(id model.Identity) bool { return targeting.Matches(n, id) },
		func(list []model.Notification) protocol.Envelope {
			return protocol.NewNotificationList(protocol.TypeNewNotification, n, list)
		},
	)
}

// HandleUpdated pushes notification_list_updated. A single mark-read
// reaches the connections the notification targets; a bulk mark-all-read
// reaches every connection.
func (m *Multiplexer) HandleUpdated(ctx context.Context, ev changefeed.UpdateEvent) {
	match := func(model.Identity) bool { return true }
	if !ev.Bulk && ev.Notification != nil {
		n := ev.Notification
		match = func(id model.Identity) bool { return targeting.Matches(n, id) }
	}
	m.fanout(ctx, "updated", match,
		func(list []model.Notification) protocol.Envelope {
			return protocol.NewNotificationList(protocol.TypeNotificationListUpdated, nil, list)
		},
	)
}

// Join registers conn for adminID and sends the resync. When the admin
// cannot be resolved an error frame is sent and nothing is registered.
func (m *Multiplexer) Join(ctx context.Context, conn registry.Conn, adminID string) (*registry.AdminConnection, error) {
	log := logger.WithTrace(ctx, m.logger)

	ac, err := m.registry.Register(ctx, conn, adminID)
	if err != nil {
		message := "Failed to join"
		if errors.Is(err, model.ErrIdentityNotFound) {
			message = "Admin not found"
		}
		log.Warn("Join refused",
			zap.String("connection_id", conn.ID()),
			zap.String("admin_id", adminID),
			zap.Error(err),
		)
		m.push(log, conn, protocol.NewError(message))
		return nil, err
	}

	m.mu.Lock()
	m.resync(ctx, ac)
	m.mu.Unlock()
	return ac, nil
}

// Leave unregisters connID. Safe to call more than once.
func (m *Multiplexer) Leave(connID string) {
	m.registry.Unregister(connID)
}

func (m *Multiplexer) resync(ctx context.Context, ac *registry.AdminConnection) {
	start := time.Now()
	log := logger.WithTrace(ctx, m.logger)

	id := ac.Identity
	list, err := m.store.ListUnread(ctx, &id)
	if err != nil {
		log.Error("Failed to load unread notifications for resync",
			zap.String("connection_id", ac.ConnectionID),
			zap.Error(err),
		)
		m.push(log, ac.Conn, protocol.NewError("Failed to load notifications"))
		return
	}

	m.push(log, ac.Conn, protocol.NewWelcome(len(list)))
	m.push(log, ac.Conn, protocol.NewNotificationList(protocol.TypeNotificationList, nil, list))
	metrics.RecordFanout("resync", time.Since(start))
}

type unreadResult struct {
	list []model.Notification
	err  error
}

func (m *Multiplexer) fanout(
	ctx context.Context,
	kind string,
	match func(model.Identity) bool,
	build func([]model.Notification) protocol.Envelope,
) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	ctx, span := otel.StartSpan(ctx, "delivery.fanout",
		oteltrace.WithAttributes(attribute.String("fanout.kind", kind)),
	)
	defer span.End()
	log := logger.WithTrace(ctx, m.logger)

	conns := m.registry.All()
	// identities with the same targeting inputs share one store read
	lists := make(map[string]unreadResult)
	matched := 0

	for _, ac := range conns {
		if !match(ac.Identity) {
			continue
		}
		matched++

		key := ac.Identity.Key()
		res, ok := lists[key]
		if !ok {
			id := ac.Identity
			res.list, res.err = m.store.ListUnread(ctx, &id)
			lists[key] = res
			if res.err != nil {
				span.RecordError(res.err)
				log.Error("Failed to load unread notifications",
					zap.String("admin_id", id.AdminID),
					zap.Error(res.err),
				)
			}
		}
		if res.err != nil {
			continue
		}

		m.push(log, ac.Conn, build(res.list))
		m.push(log, ac.Conn, protocol.NewUnreadCount(len(res.list)))
	}

	span.SetAttributes(
		attribute.Int("fanout.connections", len(conns)),
		attribute.Int("fanout.matched", matched),
	)
	metrics.RecordFanout(kind, time.Since(start))
	log.Debug("Fan-out complete",
		zap.String("kind", kind),
		zap.Int("connections", len(conns)),
		zap.Int("matched", matched),
	)
}

// push never blocks. A failed send is a normal disconnect race.
func (m *Multiplexer) push(log *zap.Logger, conn registry.Conn, env protocol.Envelope) {
	if err := conn.Send(env); err != nil {
		metrics.RecordPush(env.Event, false)
		log.Debug("Push dropped",
			zap.String("connection_id", conn.ID()),
			zap.String("event", env.Event),
			zap.Error(err),
		)
		return
	}
	metrics.RecordPush(env.Event, true)
}
