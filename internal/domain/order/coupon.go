package order

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cornermart/pickup/internal/domain/auth"
)

// ApplyCoupon applies the store promotion matching code to a pending order.
// The promotion use counter and the order update commit together.
func (s *Service) ApplyCoupon(ctx context.Context, caller auth.Identity, orderID, code string) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.ApplyCoupon",
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
		if o.Status != StatusPending {
			return invalidRequest("promotions can only be applied to pending orders")
		}
		if o.PromotionID != "" {
			return ErrDuplicatePromotion
		}

		p, discount, err := s.promotions.Evaluate(ctx, o.StoreID, code, o.Subtotal)
		if err != nil {
			return err
		}
		if err := s.promotions.Redeem(ctx, p); err != nil {
			return err
		}

		o.PromotionID = p.ID
		o.DiscountAmount = &discount
		o.Total = CalculateTotal(o.Subtotal, o.Tax, discount)
		o.UpdatedAt = s.now()
		return s.orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.redeemed.Add(ctx, 1)
	span.SetAttributes(attribute.String("promotion.id", o.PromotionID))
	return o, nil
}
