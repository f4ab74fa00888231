package order

import "github.com/shopspring/decimal"

// DefaultTaxRate is applied to order subtotals when no rate is configured.
var DefaultTaxRate = decimal.RequireFromString("0.085")

// CalculateTax returns subtotal * rate rounded half-up to cents.
func CalculateTax(subtotal, rate decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(rate).Round(2)
}

// CalculateTotal returns subtotal + tax - discount, floored at zero.
func CalculateTotal(subtotal, tax, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(tax).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total.Round(2)
}
