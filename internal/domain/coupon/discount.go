package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Compute returns the discount c grants on amount.
//
// Percentage coupons take amount*value/100, capped by MaxDiscount when set;
// fixed coupons take value. The result is rounded half-up to whole currency
// units unless that would exceed amount or the cap, and is never negative.
func Compute(c *Coupon, amount decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}

	var raw decimal.Decimal
	limit := amount
	switch c.Type {
	case DiscountPercentage:
		raw = amount.Mul(c.Value).Div(hundred)
		if c.MaxDiscount.Valid {
			limit = decimal.Min(limit, floorAtZero(c.MaxDiscount.Decimal))
		}
	case DiscountFixed:
		raw = c.Value
	default:
		return decimal.Zero
	}

	discount := floorAtZero(decimal.Min(raw, limit)).Round(0)
	// Rounding up can overshoot a fractional amount or cap.
	if discount.GreaterThan(limit) {
		discount = limit
	}
	return discount
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
