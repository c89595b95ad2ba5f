package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"backoffice/internal/changefeed"
	"backoffice/internal/model"
)

// PostgresSource streams changes published by PostgresStore through
// LISTEN on NotifyChannel. Each subscription holds one dedicated
// connection taken out of the pool.
type PostgresSource struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresSource(db *pgxpool.Pool, logger *zap.Logger) *PostgresSource {
	return &PostgresSource{
		db:     db,
		logger: logger,
	}
}

func (s *PostgresSource) Subscribe(ctx context.Context) (changefeed.Subscription, error) {
	pooled, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, &model.FeedTransportError{Op: "subscribe", Err: err}
	}
	conn := pooled.Hijack()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, &model.FeedTransportError{Op: "subscribe", Err: err}
	}

	s.logger.Info("Listening for notification changes", zap.String("channel", NotifyChannel))
	return &postgresSubscription{conn: conn, logger: s.logger}, nil
}

type postgresSubscription struct {
	conn   *pgx.Conn
	logger *zap.Logger
}

func (p *postgresSubscription) Next(ctx context.Context) (changefeed.Change, error) {
	for {
		n, err := p.conn.WaitForNotification(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return changefeed.Change{}, ctxErr
			}
			return changefeed.Change{}, &model.FeedTransportError{Op: "next", Err: err}
		}

		c, err := changefeed.DecodeChange(n.Payload)
		if err != nil {
			p.logger.Warn("Skipping malformed change payload",
				zap.String("payload", n.Payload),
				zap.Error(err),
			)
			continue
		}
		return c, nil
	}
}

func (p *postgresSubscription) Close() error {
	if err := p.conn.Close(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close listen connection: %w", err)
	}
	return nil
}
