package coupon

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Reason is the single outcome reported by Validate. Checks run in a fixed
// order and the first failing one wins.
type Reason string

const (
	ReasonApproved           Reason = "APPROVED"
	ReasonCodeNotFound       Reason = "CODE_NOT_FOUND"
	ReasonInactive           Reason = "INACTIVE"
	ReasonOutOfWindow        Reason = "OUT_OF_WINDOW"
	ReasonBelowMinimum       Reason = "BELOW_MINIMUM"
	ReasonGlobalLimitReached Reason = "GLOBAL_LIMIT_REACHED"
	ReasonUserLimitReached   Reason = "USER_LIMIT_REACHED"
	ReasonCategoryRestricted Reason = "CATEGORY_RESTRICTED"
	ReasonProductRestricted  Reason = "PRODUCT_RESTRICTED"
)

func (r Reason) String() string {
	return string(r)
}

// Result is the outcome of validating a coupon against an order.
//
// FinalAmount always equals the order amount minus Discount, and Discount is
// zero whenever Valid is false.
type Result struct {
	Valid       bool
	Discount    decimal.Decimal
	FinalAmount decimal.Decimal
	Reason      Reason
	Message     string
	Coupon      *Coupon
}

func rejected(reason Reason, amount decimal.Decimal, c *Coupon, msg string) Result {
	return Result{
		Discount:    decimal.Zero,
		FinalAmount: amount,
		Reason:      reason,
		Message:     msg,
		Coupon:      c,
	}
}

func approved(c *Coupon, amount, discount decimal.Decimal) Result {
	return Result{
		Valid:       true,
		Discount:    discount,
		FinalAmount: amount.Sub(discount),
		Reason:      ReasonApproved,
		Message:     fmt.Sprintf("coupon %s applied: you save %s", c.Code, discount.StringFixed(0)),
		Coupon:      c,
	}
}

func belowMinimumMessage(minimum, amount decimal.Decimal) string {
	return fmt.Sprintf("minimum purchase amount is %s, current amount is %s",
		minimum.String(), amount.String())
}

func reasonMessage(r Reason) string {
	switch r {
	case ReasonCodeNotFound:
		return "coupon code not found"
	case ReasonInactive:
		return "coupon is not active"
	case ReasonOutOfWindow:
		return "coupon is not valid at this time"
	case ReasonCategoryRestricted:
		return "coupon does not apply to the categories in this order"
	case ReasonProductRestricted:
		return "coupon does not apply to the products in this order"
	default:
		return string(r)
	}
}
