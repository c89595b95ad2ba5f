// Package changefeed turns committed store mutations into ordered
// created/updated events for the delivery layer.
package changefeed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"backoffice/pkg/logger"
	"backoffice/pkg/metrics"
	"backoffice/pkg/trace"
)

const DefaultRetryDelay = 5 * time.Second

var errReconnectRequested = errors.New("reconnect requested")

// Listener holds one subscription at a time and dispatches its changes to
// the registered handlers on a single goroutine, one change at a time.
type Listener struct {
	source     Source
	loader     Loader
	retryDelay time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	onCreate  []CreateHandler
	onUpdate  []UpdateHandler
	cancelSub context.CancelFunc

	subscribed atomic.Bool
}

func NewListener(source Source, loader Loader, retryDelay time.Duration, logger *zap.Logger) *Listener {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Listener{
		source:     source,
		loader:     loader,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

func (l *Listener) OnCreate(h CreateHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCreate = append(l.onCreate, h)
}

func (l *Listener) OnUpdate(h UpdateHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onUpdate = append(l.onUpdate, h)
}

// Reconnect drops the current subscription and subscribes again without
// waiting for the retry delay. A change being dispatched finishes first.
func (l *Listener) Reconnect() {
	l.mu.Lock()
	cancel := l.cancelSub
	l.mu.Unlock()
	if cancel != nil {
		l.logger.Info("Change feed reconnect requested")
		cancel()
	}
}

// Subscribed reports whether a subscription is currently open.
func (l *Listener) Subscribed() bool {
	return l.subscribed.Load()
}

// Run subscribes and dispatches until ctx ends. Transport failures are
// retried after the fixed retry delay, forever.
func (l *Listener) Run(ctx context.Context) error {
	first := true
	for {
		if !first {
			metrics.FeedReconnectCount.Inc()
		}
		first = false

		sub, err := l.source.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.logger.Error("Change feed subscribe failed",
				zap.Duration("retry_in", l.retryDelay),
				zap.Error(err),
			)
			if !l.sleep(ctx) {
				return nil
			}
			continue
		}

		l.logger.Info("Change feed subscribed")
		err = l.consume(ctx, sub)
		if cerr := sub.Close(); cerr != nil {
			l.logger.Warn("Failed to close change feed subscription", zap.Error(cerr))
		}

		switch {
		case ctx.Err() != nil:
			l.logger.Info("Change feed listener stopped")
			return nil
		case errors.Is(err, errReconnectRequested):
			continue
		}

		l.logger.Warn("Change feed subscription lost",
			zap.Duration("retry_in", l.retryDelay),
			zap.Error(err),
		)
		if !l.sleep(ctx) {
			return nil
		}
	}
}

func (l *Listener) consume(ctx context.Context, sub Subscription) error {
	subCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.cancelSub = cancel
	l.mu.Unlock()
	l.subscribed.Store(true)

	defer func() {
		l.subscribed.Store(false)
		l.mu.Lock()
		l.cancelSub = nil
		l.mu.Unlock()
		cancel()
	}()

	for {
		c, err := sub.Next(subCtx)
		if err != nil {
			if ctx.Err() == nil && subCtx.Err() != nil {
				return errReconnectRequested
			}
			return err
		}
		// handlers see the parent ctx so a reconnect never cuts a fan-out short
		l.dispatch(ctx, c)
	}
}

func (l *Listener) dispatch(ctx context.Context, c Change) {
	ctx = trace.WithContext(ctx, trace.GenerateTraceID())
	log := logger.WithTrace(ctx, l.logger)
	metrics.FeedEventCount.WithLabelValues(string(c.Op)).Inc()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Change handler panic recovered",
				zap.String("op", string(c.Op)),
				zap.String("id", c.ID),
				zap.Any("panic", r),
			)
		}
	}()

	l.mu.Lock()
	onCreate := append([]CreateHandler(nil), l.onCreate...)
	onUpdate := append([]UpdateHandler(nil), l.onUpdate...)
	l.mu.Unlock()

	switch c.Op {
	case OpCreate:
		n, err := l.loader.GetByID(ctx, c.ID)
		if err != nil {
			log.Error("Failed to load created notification", zap.String("id", c.ID), zap.Error(err))
			return
		}
		log.Debug("Dispatching notification created", zap.String("id", n.ID))
		for _, h := range onCreate {
			h(ctx, n)
		}

	case OpUpdate:
		ev := UpdateEvent{Bulk: c.Bulk}
		if !c.Bulk {
			n, err := l.loader.GetByID(ctx, c.ID)
			if err != nil {
				log.Error("Failed to load updated notification", zap.String("id", c.ID), zap.Error(err))
				return
			}
			ev.Notification = n
		}
		log.Debug("Dispatching notification updated",
			zap.String("id", c.ID),
			zap.Bool("bulk", c.Bulk),
		)
		for _, h := range onUpdate {
			h(ctx, ev)
		}

	default:
		log.Warn("Ignoring unknown change op", zap.String("op", string(c.Op)))
	}
}

func (l *Listener) sleep(ctx context.Context) bool {
	t := time.NewTimer(l.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
