package coupon

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	outcomeRecorded = "recorded"
	outcomeUnknown  = "unknown_code"
	outcomeLimited  = "limit_reached"
	outcomeStale    = "stale"
)

// Apply records a redemption of code by userID (empty for anonymous orders).
//
// Apply does not re-run the eligibility checks; callers validate first. The
// ledger increment is an atomic check-and-increment against the coupon's usage
// limits, so concurrent redemptions can never push the counters past them.
// Apply returns false when the code no longer resolves or a limit was hit
// in the meantime, and the caller must treat the discount as not recorded.
func (e *Engine) Apply(ctx context.Context, code, userID string) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "coupon.Apply")
	defer span.End()

	c, err := e.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.recordRedemption(ctx, outcomeUnknown)
			zctx.From(ctx).Warn("Redemption for unknown coupon code",
				zap.String("code", code),
				zap.String("user_id", userID),
			)
			return false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, errors.Wrap(err, "lookup coupon")
	}

	span.SetAttributes(attribute.String("coupon.id", c.ID))
	return e.commit(ctx, c, userID)
}

// ValidateAndApply validates code for order and, when approved, records the
// redemption in the same call. A valid result means the redemption was
// recorded. If a concurrent redemption exhausted a limit between the check and
// the increment, the result reports that limit instead.
func (e *Engine) ValidateAndApply(ctx context.Context, code string, order Order) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "coupon.ValidateAndApply")
	defer span.End()

	res, err := e.validate(ctx, code, order)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	if !res.Valid {
		e.recordValidation(ctx, res.Reason)
		return res, nil
	}

	ok, err := e.commit(ctx, res.Coupon, order.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	if !ok {
		res, err = e.limitResult(ctx, res.Coupon, order)
		if err != nil {
			return Result{}, err
		}
	}

	span.SetAttributes(attribute.String("coupon.reason", res.Reason.String()))
	e.recordValidation(ctx, res.Reason)
	return res, nil
}

// commit performs the atomic ledger increment for c.
func (e *Engine) commit(ctx context.Context, c *Coupon, userID string) (bool, error) {
	lg := zctx.From(ctx).With(
		zap.String("coupon_id", c.ID),
		zap.String("code", c.Code),
		zap.String("user_id", userID),
	)

	usage, err := e.store.Redeem(ctx, Redemption{
		CouponID:   c.ID,
		UserID:     userID,
		UsageLimit: c.UsageLimit,
		UserLimit:  c.UserLimit,
	})
	if err != nil {
		if errors.Is(err, ErrLimitReached) {
			e.recordRedemption(ctx, outcomeLimited)
			lg.Warn("Redemption rejected by usage limit")
			return false, nil
		}
		return false, errors.Wrap(err, "redeem")
	}

	e.recordRedemption(ctx, outcomeRecorded)
	lg.Info("Redemption recorded",
		zap.Int("global_count", usage.Global),
		zap.Int("user_count", usage.PerUser),
	)
	return true, nil
}

// limitResult builds the rejection for a redemption that lost a race for the
// last remaining use.
func (e *Engine) limitResult(ctx context.Context, c *Coupon, order Order) (Result, error) {
	res, err := e.evaluate(ctx, c, order)
	if err != nil {
		return Result{}, err
	}
	if res.Valid {
		res = rejected(ReasonGlobalLimitReached, order.Amount, c,
			fmt.Sprintf("coupon usage limit of %d has been reached", c.UsageLimit))
	}
	return res, nil
}
