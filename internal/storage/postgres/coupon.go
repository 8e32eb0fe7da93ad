package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
)

// uniqueViolation is the SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

const couponColumns = `id, code, discount_type, value, min_purchase, max_discount,
	valid_from, valid_until, usage_limit, user_limit,
	applicable_categories, applicable_products, status, description,
	version, created_at, updated_at`

const (
	insertCouponSQL = `INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	getCouponSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`

	updateCouponSQL = `UPDATE coupons SET
		discount_type = $2, value = $3, min_purchase = $4, max_discount = $5,
		valid_from = $6, valid_until = $7, usage_limit = $8, user_limit = $9,
		applicable_categories = $10, applicable_products = $11, status = $12,
		description = $13, version = $14, updated_at = $15
		WHERE id = $1 AND version = $14 - 1`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons ORDER BY code`
)

// Insert adds c. A code clash on the case-insensitive unique index is
// reported as coupon.ErrDuplicateCode.
func (s *Store) Insert(ctx context.Context, c *coupon.Coupon) error {
	_, err := s.pool.Exec(ctx, insertCouponSQL,
		c.ID, c.Code, string(c.Type), c.Value, c.MinPurchase, c.MaxDiscount,
		c.ValidFrom, c.ValidUntil, c.UsageLimit, c.UserLimit,
		nonNil(c.ApplicableCategories), nonNil(c.ApplicableProducts),
		string(c.Status), c.Description, c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return coupon.ErrDuplicateCode
		}
		return fmt.Errorf("inserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// Get returns the coupon with the given id.
func (s *Store) Get(ctx context.Context, id string) (*coupon.Coupon, error) {
	if !validID(id) {
		return nil, coupon.ErrNotFound
	}
	return s.getOne(ctx, getCouponSQL, id)
}

// FindByCode looks up a coupon by its code (case-insensitive) regardless of
// status.
func (s *Store) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return s.getOne(ctx, getCouponByCodeSQL, coupon.NormalizeCode(code))
}

func (s *Store) getOne(ctx context.Context, query, arg string) (*coupon.Coupon, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("querying coupon %q: %w", arg, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("querying coupon %q: %w", arg, err)
	}
	return &c, nil
}

// Save overwrites the mutable fields of an existing coupon if its stored
// version is c.Version-1.
func (s *Store) Save(ctx context.Context, c *coupon.Coupon) error {
	if !validID(c.ID) {
		return coupon.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, updateCouponSQL,
		c.ID, string(c.Type), c.Value, c.MinPurchase, c.MaxDiscount,
		c.ValidFrom, c.ValidUntil, c.UsageLimit, c.UserLimit,
		nonNil(c.ApplicableCategories), nonNil(c.ApplicableProducts),
		string(c.Status), c.Description, c.Version, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating coupon %q: %w", c.ID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, couponExistsSQL, c.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking coupon %q: %w", c.ID, err)
	}
	if exists {
		return coupon.ErrVersionConflict
	}
	return coupon.ErrNotFound
}

// Remove deletes the coupon row. Ledger rows are left in place.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return false, fmt.Errorf("deleting coupon %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns all coupons ordered by code.
func (s *Store) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := s.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}

	coupons, err := pgx.CollectRows(rows, scanCoupon)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return coupons, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		status       string
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.Value, &c.MinPurchase, &c.MaxDiscount,
		&c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.UserLimit,
		&c.ApplicableCategories, &c.ApplicableProducts, &status, &c.Description,
		&c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	c.Type = coupon.DiscountType(discountType)
	c.Status = coupon.Status(status)
	return c, err
}

// nonNil keeps NOT NULL array columns from receiving SQL NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
