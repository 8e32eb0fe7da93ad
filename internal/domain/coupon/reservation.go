package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ErrReservationNotFound is returned when a reservation token is unknown,
// expired or already used.
var ErrReservationNotFound = errors.New("reservation not found or expired")

// Reservation is a short-lived claim that an approved validation may be
// committed. It pins the coupon version it was validated against.
type Reservation struct {
	Token     string
	CouponID  string
	Code      string
	UserID    string
	Version   int
	ExpiresAt time.Time
}

// Reserve validates code for order and, when approved, issues a reservation
// token that Commit redeems. Rejected validations return a nil reservation.
func (e *Engine) Reserve(ctx context.Context, code string, order Order) (Result, *Reservation, error) {
	res, err := e.Validate(ctx, code, order)
	if err != nil {
		return Result{}, nil, err
	}
	if !res.Valid {
		return res, nil, nil
	}

	r := &Reservation{
		Token:     uuid.New().String(),
		CouponID:  res.Coupon.ID,
		Code:      res.Coupon.Code,
		UserID:    order.UserID,
		Version:   res.Coupon.Version,
		ExpiresAt: e.now().Add(e.reservationTTL),
	}
	e.reservations.Set(r.Token, r, e.reservationTTL)

	zctx.From(ctx).Debug("Reservation issued",
		zap.String("coupon_id", r.CouponID),
		zap.String("user_id", r.UserID),
		zap.Time("expires_at", r.ExpiresAt),
	)
	return res, r, nil
}

// Commit redeems a reservation. A token can be committed once.
//
// It returns ErrReservationNotFound for unknown or expired tokens, and false
// without touching the ledger when the coupon was deleted or modified after
// the reservation was issued, or when a usage limit was exhausted meanwhile.
func (e *Engine) Commit(ctx context.Context, token string) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "coupon.Commit")
	defer span.End()

	r, ok := e.takeReservation(token)
	if !ok {
		return false, ErrReservationNotFound
	}

	c, err := e.store.Get(ctx, r.CouponID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.recordRedemption(ctx, outcomeStale)
			return false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, errors.Wrap(err, "get coupon")
	}
	if c.Version != r.Version {
		e.recordRedemption(ctx, outcomeStale)
		zctx.From(ctx).Warn("Reservation is stale",
			zap.String("coupon_id", c.ID),
			zap.Int("reserved_version", r.Version),
			zap.Int("current_version", c.Version),
		)
		return false, nil
	}

	return e.commit(ctx, c, r.UserID)
}

// takeReservation removes and returns the reservation for token.
func (e *Engine) takeReservation(token string) (*Reservation, bool) {
	e.reservationMu.Lock()
	defer e.reservationMu.Unlock()

	v, ok := e.reservations.Get(token)
	if !ok {
		return nil, false
	}
	e.reservations.Delete(token)

	r, ok := v.(*Reservation)
	return r, ok
}
