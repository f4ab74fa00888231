package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cornermart/pickup/internal/domain/notify"
)

const (
	insertNotificationSQL = `INSERT INTO notifications (id, user_id, type, title, message, order_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`

	listNotificationsSQL = `SELECT id, user_id, type, title, message, COALESCE(order_id, ''), created_at
		FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
)

// NotificationRepository stores in-app notifications.
type NotificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository returns a NotificationRepository that uses the given pool.
func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

// Insert stores n.
func (r *NotificationRepository) Insert(ctx context.Context, n notify.Notification) error {
	_, err := conn(ctx, r.pool).Exec(ctx, insertNotificationSQL,
		n.ID, n.UserID, string(n.Type), n.Title, n.Message, n.OrderID, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting notification for %q: %w", n.UserID, err)
	}
	return nil
}

// ListByUser returns the latest limit notifications of userID, newest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]notify.Notification, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listNotificationsSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications of %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (notify.Notification, error) {
		var (
			n     notify.Notification
			ntype string
		)
		err := row.Scan(&n.ID, &n.UserID, &ntype, &n.Title, &n.Message, &n.OrderID, &n.CreatedAt)
		n.Type = notify.Type(ntype)
		return n, err
	})
}
