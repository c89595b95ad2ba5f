package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	mqcontracts "backoffice/contracts/mq"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/pkg/util"
)

type dlqRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (d *dlqRecorder) PublishToDLQ(ctx context.Context, routingKey string, payload []byte, originalError string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, routingKey+": "+originalError)
	return nil
}

type publishRecorder struct {
	mu     sync.Mutex
	events []mqcontracts.NotificationCreatedPayload
	err    error
}

func (p *publishRecorder) Publish(ctx context.Context, routingKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	if routingKey == mqcontracts.RoutingKeyNotificationCreated {
		p.events = append(p.events, payload.(mqcontracts.NotificationCreatedPayload))
	}
	return nil
}

// flakyCreator fails with a retryable error until failures runs out.
type flakyCreator struct {
	inner    Creator
	failures int
	calls    int
}

func (f *flakyCreator) Create(ctx context.Context, in model.NewNotification) (*model.Notification, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, context.DeadlineExceeded
	}
	return f.inner.Create(ctx, in)
}

type fixture struct {
	handler   *NotificationCreateHandler
	store     *repository.MemoryStore
	creator   *flakyCreator
	dlq       *dlqRecorder
	publisher *publishRecorder
}

func newFixture(t *testing.T, failures int, maxRetries int64) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zaptest.NewLogger(t)
	store := repository.NewMemoryStore(log)
	f := &fixture{
		store:     store,
		creator:   &flakyCreator{inner: store, failures: failures},
		dlq:       &dlqRecorder{},
		publisher: &publishRecorder{},
	}
	f.handler = NewNotificationCreateHandler(
		f.creator,
		util.NewDeduper(rdb, time.Hour, log),
		util.NewRetryCounter(rdb, time.Hour),
		f.dlq,
		f.publisher,
		maxRetries,
		log,
	)
	return f
}

func body(t *testing.T, p mqcontracts.NotificationCreatePayload) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func validPayload(requestID string) mqcontracts.NotificationCreatePayload {
	return mqcontracts.NotificationCreatePayload{
		RequestID: requestID,
		NewNotification: model.NewNotification{
			Type:        model.TypePurchase,
			Title:       "New purchase",
			Message:     "Order #1 paid",
			TargetRoles: []string{"DEFAULT_ADMIN_ROLE"},
		},
	}
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	all, _ := f.store.List(context.Background())
	return len(all)
}

func TestHandleCreatesAndPublishes(t *testing.T) {
	f := newFixture(t, 0, 3)

	if err := f.handler.Handle(context.Background(), body(t, validPayload("req-1"))); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if f.count(t) != 1 {
		t.Fatalf("stored %d notifications, want 1", f.count(t))
	}
	if len(f.publisher.events) != 1 {
		t.Fatalf("published %d events, want 1", len(f.publisher.events))
	}
	ev := f.publisher.events[0]
	if ev.RequestID != "req-1" || ev.NotificationID == "" || ev.TargetRoles[0] != "DEFAULT_ADMIN_ROLE" {
		t.Errorf("event = %+v", ev)
	}
}

func TestHandleSkipsRedelivery(t *testing.T) {
	f := newFixture(t, 0, 3)
	raw := body(t, validPayload("req-1"))

	for i := 0; i < 3; i++ {
		if err := f.handler.Handle(context.Background(), raw); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	if f.count(t) != 1 {
		t.Errorf("stored %d notifications, want 1", f.count(t))
	}
}

func TestHandleInvalidGoesToDLQ(t *testing.T) {
	tests := []struct {
		name string
		raw  json.RawMessage
	}{
		{name: "not json", raw: json.RawMessage(`{"request_id":`)},
		{name: "missing title", raw: json.RawMessage(`{"request_id":"r","type":"system","message":"m"}`)},
		{name: "bad priority", raw: json.RawMessage(`{"request_id":"r2","type":"system","title":"t","message":"m","priority":"critical"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0, 3)
			if err := f.handler.Handle(context.Background(), tt.raw); err != nil {
				t.Fatalf("Handle() = %v, want nil (ack)", err)
			}
			if len(f.dlq.messages) != 1 {
				t.Errorf("dlq = %v, want one message", f.dlq.messages)
			}
			if f.count(t) != 0 {
				t.Error("invalid payload was stored")
			}
		})
	}
}

func TestHandleRetriesThenSucceeds(t *testing.T) {
	f := newFixture(t, 2, 3)
	raw := body(t, validPayload("req-1"))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := f.handler.Handle(ctx, raw); !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("attempt %d: Handle() = %v, want requeue", i+1, err)
		}
	}
	if err := f.handler.Handle(ctx, raw); err != nil {
		t.Fatalf("third attempt: %v", err)
	}
	if f.count(t) != 1 || len(f.dlq.messages) != 0 {
		t.Errorf("stored %d, dlq %v", f.count(t), f.dlq.messages)
	}
}

func TestHandleDeadLettersAfterMaxRetries(t *testing.T) {
	f := newFixture(t, 100, 2)
	raw := body(t, validPayload("req-1"))
	ctx := context.Background()

	var requeued int
	for i := 0; i < 5; i++ {
		if err := f.handler.Handle(ctx, raw); err != nil {
			requeued++
			continue
		}
		break
	}
	if requeued != 2 {
		t.Errorf("requeued %d times, want 2", requeued)
	}
	if len(f.dlq.messages) != 1 {
		t.Errorf("dlq = %v, want one message", f.dlq.messages)
	}
}

func TestHandlePublishFailureStillAcks(t *testing.T) {
	f := newFixture(t, 0, 3)
	f.publisher.err = errors.New("channel closed")

	if err := f.handler.Handle(context.Background(), body(t, validPayload("req-1"))); err != nil {
		t.Fatalf("Handle() = %v, want nil", err)
	}
	if f.count(t) != 1 {
		t.Errorf("stored %d, want 1", f.count(t))
	}
}
