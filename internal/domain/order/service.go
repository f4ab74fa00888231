package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/cornermart/pickup/internal/domain/auth"
	"github.com/cornermart/pickup/internal/domain/notify"
	"github.com/cornermart/pickup/internal/domain/product"
	"github.com/cornermart/pickup/internal/domain/promotion"
	"github.com/cornermart/pickup/internal/domain/store"
)

const instrumentationName = "github.com/cornermart/pickup/internal/domain/order"

// Deps bundles the collaborators of the fulfillment Service.
type Deps struct {
	Orders     Repository
	Catalog    product.Catalog
	Stores     store.Reader
	Promotions promotion.Repository
	UnitOfWork UnitOfWork
	Notifier   notify.Notifier

	// TaxRate defaults to DefaultTaxRate when nil. Zero disables tax.
	TaxRate *decimal.Decimal
	Clock   func() time.Time

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

// Service is the fulfillment orchestrator: it validates intents, performs
// the transactional ledger mutation and emits notifications after commit.
type Service struct {
	orders     Repository
	catalog    product.Catalog
	stores     store.Reader
	promotions *promotion.Evaluator
	uow        UnitOfWork
	notifier   notify.Notifier
	taxRate    decimal.Decimal
	now        func() time.Time
	newCode    func() (string, error)

	metrics *metrics
	tracer  trace.Tracer
}

// NewService validates deps and builds a Service.
func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order repository is required")
	case deps.Catalog == nil:
		return nil, errors.New("catalog is required")
	case deps.Stores == nil:
		return nil, errors.New("store reader is required")
	case deps.Promotions == nil:
		return nil, errors.New("promotion repository is required")
	case deps.UnitOfWork == nil:
		return nil, errors.New("unit of work is required")
	}

	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NotifierFunc(func(context.Context, notify.Notification) error { return nil })
	}
	taxRate := DefaultTaxRate
	if deps.TaxRate != nil {
		taxRate = *deps.TaxRate
	}
	if taxRate.IsNegative() {
		return nil, errors.Errorf("tax rate must not be negative: %s", taxRate)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	mp := deps.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	tp := deps.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}

	m, err := newMetrics(mp.Meter(instrumentationName))
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}

	return &Service{
		orders:     deps.Orders,
		catalog:    deps.Catalog,
		stores:     deps.Stores,
		promotions: promotion.NewEvaluator(deps.Promotions).WithClock(clock),
		uow:        deps.UnitOfWork,
		notifier:   notifier,
		taxRate:    taxRate,
		now:        clock,
		newCode:    NewPickupCode,
		metrics:    m,
		tracer:     tp.Tracer(instrumentationName),
	}, nil
}

// notify delivers n, logging instead of failing. It must only be called
// after the transaction that produced n has committed.
func (s *Service) notify(ctx context.Context, n notify.Notification) {
	if n.UserID == "" {
		return
	}
	n.ID = uuid.NewString()
	n.CreatedAt = s.now()
	if err := s.notifier.Notify(ctx, n); err != nil {
		zctx.From(ctx).Warn("Notification dispatch failed",
			zap.String("user_id", n.UserID),
			zap.String("type", string(n.Type)),
			zap.String("order_id", n.OrderID),
			zap.Error(err),
		)
	}
}

func (s *Service) notifyCustomer(ctx context.Context, o *Order) {
	s.notify(ctx, notify.Notification{
		UserID:  o.CustomerID,
		Type:    notify.TypeOrderStatus,
		Title:   "Order " + o.Number,
		Message: CustomerMessage(o.Status),
		OrderID: o.ID,
	})
}

// ownedStore returns the order's store when caller owns it.
func (s *Service) ownedStore(ctx context.Context, caller auth.Identity, o *Order) (*store.Store, error) {
	st, err := s.stores.Get(ctx, o.StoreID)
	if err != nil {
		return nil, errors.Wrap(err, "get store")
	}
	if caller.UserID == "" || st.OwnerID != caller.UserID {
		return nil, ErrForbidden
	}
	return st, nil
}

func requireCustomer(caller auth.Identity, o *Order) error {
	if caller.UserID == "" || o.CustomerID != caller.UserID {
		return ErrForbidden
	}
	return nil
}

// lockOrder loads the order for update inside a transaction.
func (s *Service) lockOrder(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetForUpdate(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}
