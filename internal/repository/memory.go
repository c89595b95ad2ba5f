package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backoffice/internal/changefeed"
	"backoffice/internal/model"
	"backoffice/internal/targeting"
)

var errSubscriptionDropped = errors.New("subscription dropped")

// MemoryStore keeps notifications in process and acts as its own change
// source. Used by the "memory" store driver and by tests.
type MemoryStore struct {
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	items []*model.Notification // insertion order
	byID  map[string]*model.Notification
	subs  map[*memorySubscription]struct{}
}

func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		logger: logger,
		now:    time.Now,
		byID:   make(map[string]*model.Notification),
		subs:   make(map[*memorySubscription]struct{}),
	}
}

// SetClock replaces the time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Create(ctx context.Context, in model.NewNotification) (*model.Notification, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := in.Build(uuid.NewString(), s.now().UTC())
	s.items = append(s.items, &n)
	s.byID[n.ID] = &n
	s.publish(changefeed.Change{Op: changefeed.OpCreate, ID: n.ID})

	s.logger.Debug("Notification created",
		zap.String("id", n.ID),
		zap.String("type", n.Type),
	)
	out := n
	return &out, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, id string) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.UpdatedAt = s.now().UTC()
		s.publish(changefeed.Change{Op: changefeed.OpUpdate, ID: id})
	}
	out := *n
	return &out, nil
}

func (s *MemoryStore) MarkAllRead(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var flipped int64
	for _, n := range s.items {
		if !n.IsRead {
			n.IsRead = true
			n.UpdatedAt = now
			flipped++
		}
	}
	if flipped > 0 {
		s.publish(changefeed.Change{Op: changefeed.OpUpdate, Bulk: true})
	}
	return flipped, nil
}

func (s *MemoryStore) ListUnread(ctx context.Context, identity *model.Identity) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Notification, 0)
	for i := len(s.items) - 1; i >= 0; i-- {
		n := s.items[i]
		if n.IsRead {
			continue
		}
		if identity != nil && !targeting.Matches(n, *identity) {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Notification, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		out = append(out, *s.items[i])
	}
	return out, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := *n
	return &out, nil
}

// Subscribe implements changefeed.Source.
func (s *MemoryStore) Subscribe(ctx context.Context) (changefeed.Subscription, error) {
	sub := &memorySubscription{
		store:  s,
		signal: make(chan struct{}, 1),
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub, nil
}

// DropSubscriptions breaks every open subscription with a transport
// error, the way a lost database connection would.
func (s *MemoryStore) DropSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		sub.fail(errSubscriptionDropped)
		delete(s.subs, sub)
	}
}

// publish must be called with s.mu held.
func (s *MemoryStore) publish(c changefeed.Change) {
	for sub := range s.subs {
		sub.push(c)
	}
}

func (s *MemoryStore) remove(sub *memorySubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

type memorySubscription struct {
	store  *MemoryStore
	signal chan struct{}

	mu     sync.Mutex
	queue  []changefeed.Change
	err    error
	closed bool
}

func (m *memorySubscription) push(c changefeed.Change) {
	m.mu.Lock()
	m.queue = append(m.queue, c)
	m.mu.Unlock()
	m.wake()
}

func (m *memorySubscription) fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
	m.wake()
}

func (m *memorySubscription) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *memorySubscription) Next(ctx context.Context) (changefeed.Change, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return changefeed.Change{}, &model.FeedTransportError{Op: "next", Err: errors.New("subscription closed")}
		}
		if len(m.queue) > 0 {
			c := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()
			return c, nil
		}
		if m.err != nil {
			err := m.err
			m.mu.Unlock()
			return changefeed.Change{}, &model.FeedTransportError{Op: "next", Err: err}
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return changefeed.Change{}, ctx.Err()
		case <-m.signal:
		}
	}
}

func (m *memorySubscription) Close() error {
	m.mu.Lock()
	already := m.closed
	m.closed = true
	m.mu.Unlock()
	if !already {
		m.store.remove(m)
		m.wake()
	}
	return nil
}
