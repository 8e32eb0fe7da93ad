package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
)

const (
	getGlobalUsageSQL = `SELECT COALESCE((SELECT uses FROM coupon_usage WHERE coupon_id = $1), 0)`

	getUserUsageSQL = `SELECT COALESCE((SELECT uses FROM coupon_user_usage
		WHERE coupon_id = $1 AND user_id = $2), 0)`

	ensureGlobalUsageSQL = `INSERT INTO coupon_usage (coupon_id, uses) VALUES ($1, 0)
		ON CONFLICT (coupon_id) DO NOTHING`

	lockGlobalUsageSQL = `SELECT uses FROM coupon_usage WHERE coupon_id = $1 FOR UPDATE`

	ensureUserUsageSQL = `INSERT INTO coupon_user_usage (coupon_id, user_id, uses) VALUES ($1, $2, 0)
		ON CONFLICT (coupon_id, user_id) DO NOTHING`

	lockUserUsageSQL = `SELECT uses FROM coupon_user_usage
		WHERE coupon_id = $1 AND user_id = $2 FOR UPDATE`

	incrementGlobalUsageSQL = `UPDATE coupon_usage SET uses = uses + 1
		WHERE coupon_id = $1 RETURNING uses`

	incrementUserUsageSQL = `UPDATE coupon_user_usage SET uses = uses + 1
		WHERE coupon_id = $1 AND user_id = $2 RETURNING uses`
)

// Usage returns the ledger counters for couponID.
func (s *Store) Usage(ctx context.Context, couponID, userID string) (coupon.Usage, error) {
	var u coupon.Usage
	if !validID(couponID) {
		return u, nil
	}
	if err := s.pool.QueryRow(ctx, getGlobalUsageSQL, couponID).Scan(&u.Global); err != nil {
		return coupon.Usage{}, fmt.Errorf("reading usage of coupon %q: %w", couponID, err)
	}
	if userID == "" {
		return u, nil
	}
	if err := s.pool.QueryRow(ctx, getUserUsageSQL, couponID, userID).Scan(&u.PerUser); err != nil {
		return coupon.Usage{}, fmt.Errorf("reading usage of coupon %q by %q: %w", couponID, userID, err)
	}
	return u, nil
}

// Redeem locks the counter rows, checks the limits and increments inside a
// single transaction. The global row is always locked before the per-user
// row.
func (s *Store) Redeem(ctx context.Context, r coupon.Redemption) (coupon.Usage, error) {
	var u coupon.Usage
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureGlobalUsageSQL, r.CouponID); err != nil {
			return errors.Wrap(err, "ensure usage row")
		}
		if err := tx.QueryRow(ctx, lockGlobalUsageSQL, r.CouponID).Scan(&u.Global); err != nil {
			return errors.Wrap(err, "lock usage row")
		}
		if r.UsageLimit > 0 && u.Global >= r.UsageLimit {
			return coupon.ErrLimitReached
		}

		if r.UserID != "" {
			if _, err := tx.Exec(ctx, ensureUserUsageSQL, r.CouponID, r.UserID); err != nil {
				return errors.Wrap(err, "ensure user usage row")
			}
			if err := tx.QueryRow(ctx, lockUserUsageSQL, r.CouponID, r.UserID).Scan(&u.PerUser); err != nil {
				return errors.Wrap(err, "lock user usage row")
			}
			if r.UserLimit > 0 && u.PerUser >= r.UserLimit {
				return coupon.ErrLimitReached
			}
			if err := tx.QueryRow(ctx, incrementUserUsageSQL, r.CouponID, r.UserID).Scan(&u.PerUser); err != nil {
				return errors.Wrap(err, "increment user usage")
			}
		}

		if err := tx.QueryRow(ctx, incrementGlobalUsageSQL, r.CouponID).Scan(&u.Global); err != nil {
			return errors.Wrap(err, "increment usage")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, coupon.ErrLimitReached) {
			return coupon.Usage{}, coupon.ErrLimitReached
		}
		return coupon.Usage{}, fmt.Errorf("redeeming coupon %q: %w", r.CouponID, err)
	}
	return u, nil
}
