// Package registry tracks live admin connections and the identity each
// one joined with.
package registry

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"backoffice/internal/identity"
	"backoffice/internal/model"
	"backoffice/internal/protocol"
	"backoffice/internal/targeting"
	"backoffice/pkg/metrics"
)

// Conn is the transport side of a connection. Send must not block; it
// returns an error wrapping model.ErrDeliveryFailed when the frame
// cannot be queued.
type Conn interface {
	ID() string
	Send(env protocol.Envelope) error
}

// AdminConnection is one live session and the identity snapshot it joined
// with. The snapshot is not refreshed during the session.
type AdminConnection struct {
	ConnectionID string
	Identity     model.Identity
	Conn         Conn
}

type Registry struct {
	resolver identity.Resolver
	logger   *zap.Logger

	mu    sync.RWMutex
	conns map[string]*AdminConnection
}

func New(resolver identity.Resolver, logger *zap.Logger) *Registry {
	return &Registry{
		resolver: resolver,
		logger:   logger,
		conns:    make(map[string]*AdminConnection),
	}
}

// Register resolves adminID and stores the connection. On any error
// nothing is stored.
func (r *Registry) Register(ctx context.Context, conn Conn, adminID string) (*AdminConnection, error) {
	id, err := r.resolver.Resolve(ctx, adminID)
	if err != nil {
		return nil, err
	}

	ac := &AdminConnection{
		ConnectionID: conn.ID(),
		Identity:     *id,
		Conn:         conn,
	}

	r.mu.Lock()
	if _, exists := r.conns[ac.ConnectionID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("connection %s already registered", ac.ConnectionID)
	}
	r.conns[ac.ConnectionID] = ac
	size := len(r.conns)
	// set under the lock so concurrent updates land in order
	metrics.LiveConnections.Set(float64(size))
	r.mu.Unlock()

	r.logger.Info("Admin connection registered",
		zap.String("connection_id", ac.ConnectionID),
		zap.String("admin_id", id.AdminID),
		zap.Int("connections", size),
	)
	return ac, nil
}

// Unregister is a no-op for unknown ids.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	ac, ok := r.conns[connID]
	delete(r.conns, connID)
	size := len(r.conns)
	if ok {
		metrics.LiveConnections.Set(float64(size))
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.logger.Info("Admin connection unregistered",
		zap.String("connection_id", connID),
		zap.String("admin_id", ac.Identity.AdminID),
		zap.Int("connections", size),
	)
}

// All returns a point-in-time copy ordered by connection id.
func (r *Registry) All() []*AdminConnection {
	r.mu.RLock()
	out := make([]*AdminConnection, 0, len(r.conns))
	for _, ac := range r.conns {
		out = append(out, ac)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b *AdminConnection) int {
		return cmp.Compare(a.ConnectionID, b.ConnectionID)
	})
	return out
}

func (r *Registry) Get(connID string) (*AdminConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ac, ok := r.conns[connID]
	return ac, ok
}

// Rooms lists the rooms a connection belongs to, derived from its
// identity.
func (r *Registry) Rooms(connID string) []string {
	ac, ok := r.Get(connID)
	if !ok {
		return nil
	}
	return targeting.RoomsFor(ac.Identity)
}

// Members lists the connections in room.
func (r *Registry) Members(room string) []*AdminConnection {
	var out []*AdminConnection
	for _, ac := range r.All() {
		if slices.Contains(targeting.RoomsFor(ac.Identity), room) {
			out = append(out, ac)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
