// Package notify defines the fire-and-forget notification sink used by the
// fulfillment core. Delivery failures never affect the operation that
// produced the notification.
package notify

import (
	"context"
	"time"
)

// Type classifies a notification.
type Type string

const (
	TypeNewOrder        Type = "NEW_ORDER"
	TypeOrderStatus     Type = "ORDER_STATUS"
	TypeLowStock        Type = "LOW_STOCK"
	TypeCustomerArrived Type = "CUSTOMER_ARRIVED"
	TypeOrderETA        Type = "ORDER_ETA"
)

// Notification is a message addressed to one user.
type Notification struct {
	ID        string
	UserID    string
	Type      Type
	Title     string
	Message   string
	OrderID   string
	CreatedAt time.Time
}

// Notifier dispatches notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
