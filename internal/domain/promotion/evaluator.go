package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Evaluator resolves coupon codes into promotions and computes discounts.
type Evaluator struct {
	repo Repository
	now  func() time.Time
}

// NewEvaluator creates an Evaluator backed by repo.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo, now: time.Now}
}

// WithClock replaces the time source used for the active window check.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate looks up code for storeID, checks the active window, usage limit
// and minimum order amount, and returns the promotion with the discount it
// grants on subtotal. It does not redeem the promotion.
func (e *Evaluator) Evaluate(ctx context.Context, storeID, code string, subtotal decimal.Decimal) (*Promotion, decimal.Decimal, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, decimal.Zero, ErrInvalidOrExpiredCoupon
	}

	p, err := e.repo.FindActiveByCode(ctx, storeID, code)
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpiredCoupon) {
			return nil, decimal.Zero, ErrInvalidOrExpiredCoupon
		}
		return nil, decimal.Zero, errors.Wrap(err, "lookup promotion")
	}

	if !p.Active || !p.InRange(e.now()) {
		return nil, decimal.Zero, ErrInvalidOrExpiredCoupon
	}
	if p.Exhausted() {
		return nil, decimal.Zero, ErrCouponExhausted
	}
	if p.MinOrderAmount != nil && subtotal.LessThan(*p.MinOrderAmount) {
		return nil, decimal.Zero, &MinimumNotMetError{Minimum: *p.MinOrderAmount, Subtotal: subtotal}
	}

	amount, err := Discount(p, subtotal)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return p, amount, nil
}

// Redeem consumes one use of p. It must run in the same transaction as the
// order update that records the promotion.
func (e *Evaluator) Redeem(ctx context.Context, p *Promotion) error {
	if err := e.repo.IncrementUses(ctx, p.ID); err != nil {
		if errors.Is(err, ErrCouponExhausted) {
			return ErrCouponExhausted
		}
		return errors.Wrap(err, "increment promotion uses")
	}
	p.CurrentUses++
	return nil
}
