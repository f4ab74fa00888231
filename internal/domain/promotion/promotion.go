package promotion

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypePercentage discounts a percentage of the subtotal.
	TypePercentage Type = "PERCENTAGE"
	// TypeFixedAmount discounts a fixed amount capped at the subtotal.
	TypeFixedAmount Type = "FIXED_AMOUNT"
	// TypeBuyXGetY discounts the configured value capped at the subtotal.
	TypeBuyXGetY Type = "BUY_X_GET_Y"
)

// Valid reports whether t is a known promotion type.
func (t Type) Valid() bool {
	switch t {
	case TypePercentage, TypeFixedAmount, TypeBuyXGetY:
		return true
	default:
		return false
	}
}

var (
	// ErrInvalidOrExpiredCoupon is returned when no active, in-range
	// promotion matches the code for the store.
	ErrInvalidOrExpiredCoupon = errors.New("invalid or expired coupon code")
	// ErrCouponExhausted is returned when a promotion has reached its max uses.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
	// ErrMinimumNotMet is returned when the order subtotal is below the
	// promotion's minimum order amount.
	ErrMinimumNotMet = errors.New("minimum order amount not met")
	// ErrInvalidPromotion is returned when a promotion definition breaks one
	// of its invariants.
	ErrInvalidPromotion = errors.New("invalid promotion")
)

// Promotion is a discount rule scoped to one store.
type Promotion struct {
	ID             string
	StoreID        string
	Code           string
	Type           Type
	Value          decimal.Decimal
	MinOrderAmount *decimal.Decimal
	MaxUses        *int
	CurrentUses    int
	StartDate      time.Time
	EndDate        time.Time
	Active         bool
	Description    string
}

// Exhausted reports whether the promotion has no uses left.
func (p *Promotion) Exhausted() bool {
	return p.MaxUses != nil && p.CurrentUses >= *p.MaxUses
}

// InRange reports whether now falls within the promotion's active window.
func (p *Promotion) InRange(now time.Time) bool {
	return !now.Before(p.StartDate) && !now.After(p.EndDate)
}

// Validate checks the promotion definition invariants.
func (p *Promotion) Validate() error {
	switch {
	case p.StoreID == "":
		return errors.Wrap(ErrInvalidPromotion, "store id is required")
	case !p.Type.Valid():
		return errors.Wrapf(ErrInvalidPromotion, "unknown type %q", p.Type)
	case !p.Value.IsPositive():
		return errors.Wrap(ErrInvalidPromotion, "value must be positive")
	case p.Type == TypePercentage && p.Value.GreaterThan(hundred):
		return errors.Wrap(ErrInvalidPromotion, "percentage cannot exceed 100")
	case !p.EndDate.After(p.StartDate):
		return errors.Wrap(ErrInvalidPromotion, "end date must be after start date")
	case p.MinOrderAmount != nil && p.MinOrderAmount.IsNegative():
		return errors.Wrap(ErrInvalidPromotion, "minimum order amount cannot be negative")
	case p.MaxUses != nil && *p.MaxUses < 0:
		return errors.Wrap(ErrInvalidPromotion, "max uses cannot be negative")
	case p.CurrentUses < 0, p.MaxUses != nil && p.CurrentUses > *p.MaxUses:
		return errors.Wrap(ErrInvalidPromotion, "current uses out of range")
	}
	return nil
}

// MinimumNotMetError reports the minimum a promotion requires. It matches
// ErrMinimumNotMet with errors.Is.
type MinimumNotMetError struct {
	Minimum  decimal.Decimal
	Subtotal decimal.Decimal
}

func (e *MinimumNotMetError) Error() string {
	return "minimum order amount not met. Minimum: " + e.Minimum.StringFixed(2) +
		", Subtotal: " + e.Subtotal.StringFixed(2)
}

// Is makes MinimumNotMetError match ErrMinimumNotMet.
func (e *MinimumNotMetError) Is(target error) bool {
	return target == ErrMinimumNotMet
}

// NormalizeCode returns the canonical form of a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup and redemption of promotions.
type Repository interface {
	// FindActiveByCode returns the active promotion with the code for the
	// store, or ErrInvalidOrExpiredCoupon.
	FindActiveByCode(ctx context.Context, storeID, code string) (*Promotion, error)
	// IncrementUses adds one use, failing with ErrCouponExhausted when the
	// promotion is capped and already at its limit.
	IncrementUses(ctx context.Context, id string) error
}
