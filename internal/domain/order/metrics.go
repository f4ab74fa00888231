package order

import (
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	created       metric.Int64Counter
	transitions   metric.Int64Counter
	stockConflict metric.Int64Counter
	redeemed      metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*metrics, error) {
	var (
		m   metrics
		err error
	)
	if m.created, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders committed by create and reorder"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created")
	}
	if m.transitions, err = meter.Int64Counter("orders.transitions",
		metric.WithDescription("Committed order status transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.transitions")
	}
	if m.stockConflict, err = meter.Int64Counter("orders.stock_conflicts",
		metric.WithDescription("Orders rejected for insufficient stock"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.stock_conflicts")
	}
	if m.redeemed, err = meter.Int64Counter("promotions.redeemed",
		metric.WithDescription("Promotions applied to orders"),
	); err != nil {
		return nil, errors.Wrap(err, "promotions.redeemed")
	}
	return &m, nil
}

func statusAttr(s Status) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("status", string(s)))
}
