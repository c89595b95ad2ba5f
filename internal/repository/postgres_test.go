package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap/zaptest"

	"backoffice/internal/changefeed"
	"backoffice/internal/model"
)

// Runs against a real database when NOTIFY_TEST_DATABASE_URL is set.
func newPostgres(t *testing.T) (*PostgresStore, *PostgresSource) {
	t.Helper()
	dsn := os.Getenv("NOTIFY_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("NOTIFY_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	logger := zaptest.NewLogger(t)
	store := NewPostgresStore(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if _, err := pool.Exec(ctx, `TRUNCATE admin_notifications`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return store, NewPostgresSource(pool, logger)
}

func TestPostgresStoreRoundTrip(t *testing.T) {
	store, source := newPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub, err := source.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	n, err := store.Create(ctx, model.NewNotification{
		Type:        "purchase",
		Title:       "Order",
		Message:     "paid",
		Priority:    model.PriorityHigh,
		TargetRoles: []string{"DEFAULT_ADMIN_ROLE"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	c, err := sub.Next(ctx)
	if err != nil || c.Op != changefeed.OpCreate || c.ID != n.ID {
		t.Fatalf("Next = %+v, %v", c, err)
	}

	got, err := store.GetByID(ctx, n.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Priority != model.PriorityHigh || len(got.TargetRoles) != 1 || got.TargetAdminID != nil {
		t.Errorf("GetByID = %+v", got)
	}

	unread, err := store.ListUnread(ctx, &model.Identity{AdminID: "x", Roles: []string{"SUPPLY_CONTROLLER_ROLE"}})
	if err != nil || len(unread) != 0 {
		t.Errorf("ListUnread(supply controller) = %d, %v", len(unread), err)
	}

	if _, err := store.MarkRead(ctx, n.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if c, err := sub.Next(ctx); err != nil || c.Op != changefeed.OpUpdate || c.ID != n.ID {
		t.Fatalf("Next = %+v, %v", c, err)
	}

	if count, err := store.MarkAllRead(ctx); err != nil || count != 0 {
		t.Errorf("MarkAllRead = %d, %v; want 0", count, err)
	}

	if _, err := store.GetByID(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetByID(missing) = %v", err)
	}
}
