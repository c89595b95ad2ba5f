package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"backoffice/internal/changefeed"
	"backoffice/internal/model"
	"backoffice/internal/targeting"
	"backoffice/pkg/otel"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying committed changes.
const NotifyChannel = "admin_notifications"

const schema = `
CREATE TABLE IF NOT EXISTS admin_notifications (
    id                 TEXT PRIMARY KEY,
    type               TEXT NOT NULL,
    title              TEXT NOT NULL,
    message            TEXT NOT NULL,
    priority           TEXT NOT NULL DEFAULT 'normal'
                       CHECK (priority IN ('low', 'normal', 'high', 'urgent')),
    related_id         TEXT,
    target_admin_id    TEXT,
    target_roles       TEXT[] NOT NULL DEFAULT '{}',
    target_permissions TEXT[] NOT NULL DEFAULT '{}',
    is_read            BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS admin_notifications_unread_idx
    ON admin_notifications (created_at DESC) WHERE NOT is_read;
`

const selectColumns = `
    id, type, title, message, priority, related_id, target_admin_id,
    target_roles, target_permissions, is_read, created_at, updated_at
`

type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the notifications table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, in model.NewNotification) (*model.Notification, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	n := in.Build(uuid.NewString(), time.Now().UTC())

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        INSERT INTO admin_notifications (
            id, type, title, message, priority, related_id, target_admin_id,
            target_roles, target_permissions, is_read, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10, $10)
        RETURNING ` + selectColumns

	created, err := scanNotification(tx.QueryRow(ctx, query,
		n.ID, n.Type, n.Title, n.Message, string(n.Priority), n.RelatedID, n.TargetAdminID,
		n.TargetRoles, n.TargetPermissions, n.CreatedAt,
	))
	if err != nil {
		s.logger.Error("Failed to insert notification", zap.Error(err))
		return nil, fmt.Errorf("failed to insert notification: %w", err)
	}

	if err := notify(ctx, tx, changefeed.Change{Op: changefeed.OpCreate, ID: created.ID}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit notification: %w", err)
	}

	s.logger.Info("Notification inserted successfully",
		zap.String("id", created.ID),
		zap.String("type", created.Type),
	)
	return created, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, id string) (*model.Notification, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
        UPDATE admin_notifications
        SET is_read = TRUE, updated_at = NOW()
        WHERE id = $1 AND NOT is_read
        RETURNING ` + selectColumns

	n, err := scanNotification(tx.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		// already read, or missing
		return s.GetByID(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification read: %w", err)
	}

	if err := notify(ctx, tx, changefeed.Change{Op: changefeed.OpUpdate, ID: id}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit mark read: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context) (int64, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE admin_notifications SET is_read = TRUE, updated_at = NOW() WHERE NOT is_read`)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all read: %w", err)
	}

	flipped := tag.RowsAffected()
	if flipped > 0 {
		if err := notify(ctx, tx, changefeed.Change{Op: changefeed.OpUpdate, Bulk: true}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit mark all read: %w", err)
	}

	s.logger.Info("Marked all notifications read", zap.Int64("count", flipped))
	return flipped, nil
}

func (s *PostgresStore) ListUnread(ctx context.Context, identity *model.Identity) ([]model.Notification, error) {
	query := `SELECT ` + selectColumns + `
        FROM admin_notifications
        WHERE NOT is_read
        ORDER BY created_at DESC, id DESC`

	all, err := s.query(ctx, "list_unread", query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread: %w", err)
	}
	if identity == nil {
		return all, nil
	}
	return targeting.Filter(all, *identity), nil
}

func (s *PostgresStore) List(ctx context.Context) ([]model.Notification, error) {
	query := `SELECT ` + selectColumns + `
        FROM admin_notifications
        ORDER BY created_at DESC, id DESC`

	all, err := s.query(ctx, "list", query)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return all, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*model.Notification, error) {
	query := `SELECT ` + selectColumns + ` FROM admin_notifications WHERE id = $1`

	var n *model.Notification
	err := otel.WithDBSpan(ctx, "get_by_id", query, func(ctx context.Context) error {
		var err error
		n, err = scanNotification(s.db.QueryRow(ctx, query, id))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) query(ctx context.Context, operation, query string, args ...any) ([]model.Notification, error) {
	out := make([]model.Notification, 0)
	err := otel.WithDBSpan(ctx, operation, query, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			n, err := scanNotification(rows)
			if err != nil {
				return err
			}
			out = append(out, *n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func notify(ctx context.Context, tx pgx.Tx, c changefeed.Change) error {
	payload, err := c.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, payload); err != nil {
		return fmt.Errorf("failed to publish change: %w", err)
	}
	return nil
}

func scanNotification(row pgx.Row) (*model.Notification, error) {
	var (
		n        model.Notification
		priority string
	)
	err := row.Scan(
		&n.ID,
		&n.Type,
		&n.Title,
		&n.Message,
		&priority,
		&n.RelatedID,
		&n.TargetAdminID,
		&n.TargetRoles,
		&n.TargetPermissions,
		&n.IsRead,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Priority = model.Priority(priority)
	if n.TargetRoles == nil {
		n.TargetRoles = []string{}
	}
	if n.TargetPermissions == nil {
		n.TargetPermissions = []string{}
	}
	return &n, nil
}
