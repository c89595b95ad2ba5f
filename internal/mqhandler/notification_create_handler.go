package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	mqcontracts "backoffice/contracts/mq"
	"backoffice/internal/model"
	"backoffice/pkg/logger"
	"backoffice/pkg/metrics"
	"backoffice/pkg/mq"
	"backoffice/pkg/trace"
	"backoffice/pkg/util"
)

const handlerName = "notification_create"

// Creator is the part of the notification store used here.
type Creator interface {
	Create(ctx context.Context, in model.NewNotification) (*model.Notification, error)
}

type Deduper interface {
	AcquireOnce(ctx context.Context, handler, key string) bool
	Release(ctx context.Context, handler, key string)
}

type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// NotificationCreateHandler consumes notification.create commands.
// Returning nil acks the message, returning an error requeues it.
type NotificationCreateHandler struct {
	store      Creator
	deduper    Deduper
	retries    RetryCounter
	dlq        mq.DeadLetterer
	publisher  EventPublisher
	maxRetries int64
	logger     *zap.Logger
}

func NewNotificationCreateHandler(
	store Creator,
	deduper Deduper,
	retries RetryCounter,
	dlq mq.DeadLetterer,
	publisher EventPublisher,
	maxRetries int64,
	logger *zap.Logger,
) *NotificationCreateHandler {
	return &NotificationCreateHandler{
		store:      store,
		deduper:    deduper,
		retries:    retries,
		dlq:        dlq,
		publisher:  publisher,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

func (h *NotificationCreateHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	ctx = trace.Ensure(ctx)
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.NotificationCreatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal notification.create payload (non-retryable)", zap.Error(err))
		metrics.IngressCount.WithLabelValues("invalid").Inc()
		h.deadLetter(ctx, log, raw, err)
		return nil
	}

	if p.RequestID != "" && !h.deduper.AcquireOnce(ctx, handlerName, p.RequestID) {
		metrics.IngressCount.WithLabelValues("duplicate").Inc()
		return nil
	}

	n, err := h.store.Create(ctx, p.NewNotification)
	if err != nil {
		return h.fail(ctx, log, p, raw, err)
	}

	if p.RequestID != "" {
		if err := h.retries.Reset(ctx, util.FormatRetryKey(handlerName, p.RequestID)); err != nil {
			log.Warn("Failed to reset retry counter", zap.String("request_id", p.RequestID), zap.Error(err))
		}
	}
	metrics.IngressCount.WithLabelValues("created").Inc()

	log.Info("Notification created from MQ",
		zap.String("request_id", p.RequestID),
		zap.String("notification_id", n.ID),
		zap.String("type", n.Type),
	)

	if err := h.publisher.Publish(ctx, mqcontracts.RoutingKeyNotificationCreated, mqcontracts.NewNotificationCreated(p.RequestID, n)); err != nil {
		// the record is committed either way
		log.Warn("Failed to publish notification.created", zap.String("notification_id", n.ID), zap.Error(err))
	}
	return nil
}

func (h *NotificationCreateHandler) fail(ctx context.Context, log *zap.Logger, p mqcontracts.NotificationCreatePayload, raw []byte, err error) error {
	retryable, errType := util.IsRetryableError(err)
	log = log.With(
		zap.String("request_id", p.RequestID),
		zap.String("error_type", errType),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)

	if !retryable {
		log.Error("Notification create failed (non-retryable)")
		outcome := "dead_lettered"
		if errType == "validation_error" {
			outcome = "invalid"
		}
		metrics.IngressCount.WithLabelValues(outcome).Inc()
		h.deadLetter(ctx, log, raw, err)
		return nil
	}

	// without a request id there is no key to count attempts against
	if p.RequestID == "" {
		log.Warn("Notification create failed, requeueing")
		metrics.IngressCount.WithLabelValues("retry").Inc()
		return err
	}

	count, cerr := h.retries.IncrementAndGet(ctx, util.FormatRetryKey(handlerName, p.RequestID))
	if cerr != nil {
		log.Warn("Failed to increment retry counter", zap.NamedError("counter_error", cerr))
	}
	if cerr == nil && !util.ShouldRetry(count, h.maxRetries, true) {
		log.Error("Notification create exhausted retries", zap.Int64("attempts", count))
		metrics.IngressCount.WithLabelValues("dead_lettered").Inc()
		h.deadLetter(ctx, log, raw, err)
		return nil
	}

	// let the redelivery through the deduper
	h.deduper.Release(ctx, handlerName, p.RequestID)
	log.Warn("Notification create failed, requeueing", zap.Int64("attempt", count))
	metrics.IngressCount.WithLabelValues("retry").Inc()
	return err
}

func (h *NotificationCreateHandler) deadLetter(ctx context.Context, log *zap.Logger, raw []byte, cause error) {
	if err := h.dlq.PublishToDLQ(ctx, mqcontracts.RoutingKeyNotificationCreate, raw, cause.Error()); err != nil {
		log.Error("Failed to publish to DLQ", zap.Error(err))
	}
}
