package promotion

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount calculates the discount p grants on subtotal. The result is never
// negative and never exceeds the subtotal.
func Discount(p *Promotion, subtotal decimal.Decimal) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch p.Type {
	case TypePercentage:
		amount = subtotal.Mul(p.Value).Div(hundred).Round(2)
	case TypeFixedAmount, TypeBuyXGetY:
		amount = decimal.Min(p.Value, subtotal)
	default:
		return decimal.Zero, errors.Errorf("unsupported promotion type: %q", p.Type)
	}
	return clamp(amount, subtotal), nil
}

// clamp bounds d to [0, ceiling].
func clamp(d, ceiling decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(ceiling) {
		return ceiling
	}
	return d
}
