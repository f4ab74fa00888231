package order

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cornermart/pickup/internal/domain/auth"
	"github.com/cornermart/pickup/internal/domain/notify"
)

// MaxEstimatedMinutes bounds SetEstimatedTime to one day ahead.
const MaxEstimatedMinutes = 24 * 60

var checkInStatuses = []Status{StatusConfirmed, StatusPreparing, StatusReady}

// UpdateStatus moves the order to status on behalf of the store owner.
// Cancelling returns every item's quantity to stock after the status change
// has committed.
func (s *Service) UpdateStatus(ctx context.Context, caller auth.Identity, orderID string, status Status) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus",
		trace.WithAttributes(
			attribute.String("order.id", orderID),
			attribute.String("order.status", string(status)),
		),
	)
	defer span.End()

	if !status.Valid() {
		return nil, invalidRequest("unknown order status %q", status)
	}

	var o *Order
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.lockOrder(ctx, orderID); err != nil {
			return err
		}
		if _, err := s.ownedStore(ctx, caller, o); err != nil {
			return err
		}
		if err := o.transition(status, s.now()); err != nil {
			return err
		}
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.transitions.Add(ctx, 1, statusAttr(o.Status))

	if o.Status == StatusCancelled {
		s.restoreStock(ctx, o)
	}
	s.notifyCustomer(ctx, o)
	return o, nil
}

// restoreStock adds each item's quantity back to stock, one item at a time.
// Failures are logged and do not affect the cancellation.
func (s *Service) restoreStock(ctx context.Context, o *Order) {
	for _, item := range o.Items {
		if err := s.catalog.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			zctx.From(ctx).Warn("Failed to restore stock for cancelled order",
				zap.String("order_id", o.ID),
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}

// CheckIn records that the customer has arrived at the store.
func (s *Service) CheckIn(ctx context.Context, caller auth.Identity, orderID string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.CheckIn",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	var o *Order
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.lockOrder(ctx, orderID); err != nil {
			return err
		}
		if err := requireCustomer(caller, o); err != nil {
			return err
		}
		if !slices.Contains(checkInStatuses, o.Status) {
			return invalidRequest("cannot check in for an order with status %s", o.Status)
		}
		if o.CustomerCheckedIn {
			return ErrAlreadyCheckedIn
		}
		now := s.now()
		o.CustomerCheckedIn = true
		o.CheckedInAt = &now
		o.UpdatedAt = now
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	st, err := s.stores.Get(ctx, o.StoreID)
	if err != nil {
		zctx.From(ctx).Warn("Lookup store for arrival notification", zap.String("order_id", o.ID), zap.Error(err))
		return o, nil
	}
	s.notify(ctx, notify.Notification{
		UserID:  st.OwnerID,
		Type:    notify.TypeCustomerArrived,
		Title:   "Customer arrived",
		Message: fmt.Sprintf("The customer for order %s has arrived for pickup", o.Number),
		OrderID: o.ID,
	})
	return o, nil
}

// VerifyPickup completes a READY order when code matches its pickup code.
// A mismatch leaves the order untouched.
func (s *Service) VerifyPickup(ctx context.Context, caller auth.Identity, orderID, code string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.VerifyPickup",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	var o *Order
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.lockOrder(ctx, orderID); err != nil {
			return err
		}
		if _, err := s.ownedStore(ctx, caller, o); err != nil {
			return err
		}
		if o.Status != StatusReady {
			return invalidRequest("order is not ready for pickup (status %s)", o.Status)
		}
		if !MatchPickupCode(o.PickupCode, code) {
			return ErrInvalidPickupCode
		}
		if err := o.transition(StatusPickedUp, s.now()); err != nil {
			return err
		}
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.transitions.Add(ctx, 1, statusAttr(o.Status))

	s.notifyCustomer(ctx, o)
	return o, nil
}

// SetEstimatedTime sets the estimated ready time to now plus minutes.
func (s *Service) SetEstimatedTime(ctx context.Context, caller auth.Identity, orderID string, minutes int) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.SetEstimatedTime",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer span.End()

	if minutes < 1 || minutes > MaxEstimatedMinutes {
		return nil, invalidRequest("estimated minutes must be between 1 and %d", MaxEstimatedMinutes)
	}

	var o *Order
	err := s.uow.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if o, err = s.lockOrder(ctx, orderID); err != nil {
			return err
		}
		if _, err := s.ownedStore(ctx, caller, o); err != nil {
			return err
		}
		if o.Status.Terminal() {
			return errors.Wrapf(ErrOrderClosed, "order is %s", o.Status)
		}
		now := s.now()
		eta := now.Add(time.Duration(minutes) * time.Minute)
		o.EstimatedReadyTime = &eta
		o.UpdatedAt = now
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, notify.Notification{
		UserID:  o.CustomerID,
		Type:    notify.TypeOrderETA,
		Title:   "Order " + o.Number,
		Message: fmt.Sprintf("Your order will be ready in about %d minutes", minutes),
		OrderID: o.ID,
	})
	return o, nil
}
