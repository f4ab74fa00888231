// Package notifier implements notify.Notifier sinks: a zap log, a persisted
// inbox and a Kafka topic, plus a fan-out over several of them.
package notifier

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cornermart/pickup/internal/domain/notify"
)

// Log writes notifications to the request logger.
type Log struct{}

// Notify implements notify.Notifier.
func (Log) Notify(ctx context.Context, n notify.Notification) error {
	zctx.From(ctx).Info("Notification",
		zap.String("notification.id", n.ID),
		zap.String("user.id", n.UserID),
		zap.String("type", string(n.Type)),
		zap.String("title", n.Title),
		zap.String("order.id", n.OrderID),
	)
	return nil
}

// Store persists notifications.
type Store interface {
	Insert(ctx context.Context, n notify.Notification) error
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context, n notify.Notification) error

// Insert implements Store.
func (f StoreFunc) Insert(ctx context.Context, n notify.Notification) error {
	return f(ctx, n)
}

// Inbox stores notifications for later reading by the recipient.
type Inbox struct {
	store Store
}

// NewInbox returns an Inbox writing to store.
func NewInbox(store Store) *Inbox {
	return &Inbox{store: store}
}

// Notify implements notify.Notifier.
func (i *Inbox) Notify(ctx context.Context, n notify.Notification) error {
	if err := i.store.Insert(ctx, n); err != nil {
		return errors.Wrap(err, "inbox")
	}
	return nil
}

// Multi delivers to every sink and joins their errors. A failing sink does
// not stop delivery to the others.
type Multi []notify.Notifier

// Notify implements notify.Notifier.
func (m Multi) Notify(ctx context.Context, n notify.Notification) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Notify(ctx, n))
	}
	return err
}
