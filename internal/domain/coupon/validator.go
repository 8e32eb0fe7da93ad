package coupon

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Validate checks whether code may be used for order and computes the
// resulting discount. It has no side effects: with an unchanged catalog and
// ledger it returns identical results.
//
// Business rule failures are reported through Result.Reason. The error is
// ErrInvalidOrder for a negative amount, or a store failure.
func (e *Engine) Validate(ctx context.Context, code string, order Order) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "coupon.Validate")
	defer span.End()

	res, err := e.validate(ctx, code, order)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	span.SetAttributes(
		attribute.String("coupon.code", NormalizeCode(code)),
		attribute.String("coupon.reason", res.Reason.String()),
	)
	e.recordValidation(ctx, res.Reason)
	return res, nil
}

func (e *Engine) validate(ctx context.Context, code string, order Order) (Result, error) {
	if order.Amount.IsNegative() {
		return Result{}, errors.Wrapf(ErrInvalidOrder, "negative amount %s", order.Amount)
	}
	c, err := e.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rejected(ReasonCodeNotFound, order.Amount, nil, reasonMessage(ReasonCodeNotFound)), nil
		}
		return Result{}, errors.Wrap(err, "lookup coupon")
	}
	return e.evaluate(ctx, c, order)
}

// evaluate runs the eligibility checks in order. The first failing check
// determines the reason.
func (e *Engine) evaluate(ctx context.Context, c *Coupon, order Order) (Result, error) {
	amount := order.Amount

	if c.Status != StatusActive {
		return rejected(ReasonInactive, amount, c, reasonMessage(ReasonInactive)), nil
	}

	now := e.now()
	if now.Before(c.ValidFrom) || now.After(c.ValidUntil) {
		return rejected(ReasonOutOfWindow, amount, c, reasonMessage(ReasonOutOfWindow)), nil
	}

	if c.MinPurchase.Valid && amount.LessThan(c.MinPurchase.Decimal) {
		return rejected(ReasonBelowMinimum, amount, c, belowMinimumMessage(c.MinPurchase.Decimal, amount)), nil
	}

	if c.UsageLimit > 0 || (order.UserID != "" && c.UserLimit > 0) {
		usage, err := e.store.Usage(ctx, c.ID, order.UserID)
		if err != nil {
			return Result{}, errors.Wrap(err, "read usage")
		}
		if c.UsageLimit > 0 && usage.Global >= c.UsageLimit {
			return rejected(ReasonGlobalLimitReached, amount, c,
				fmt.Sprintf("coupon usage limit of %d has been reached", c.UsageLimit)), nil
		}
		if order.UserID != "" && c.UserLimit > 0 && usage.PerUser >= c.UserLimit {
			return rejected(ReasonUserLimitReached, amount, c,
				fmt.Sprintf("coupon can be used at most %d time(s) per customer", c.UserLimit)), nil
		}
	}

	if len(c.ApplicableCategories) > 0 && !lo.Some(c.ApplicableCategories, order.Categories) {
		return rejected(ReasonCategoryRestricted, amount, c, reasonMessage(ReasonCategoryRestricted)), nil
	}

	if len(c.ApplicableProducts) > 0 && !lo.Some(c.ApplicableProducts, order.ProductIDs) {
		return rejected(ReasonProductRestricted, amount, c, reasonMessage(ReasonProductRestricted)), nil
	}

	return approved(c, amount, Compute(c, amount)), nil
}
