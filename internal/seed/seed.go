// Package seed provides the demo coupon catalog of the artisan marketplace.
package seed

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
)

func money(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

// Coupons returns the demo coupon definitions, valid from now for the
// following months.
func Coupons(now time.Time) []coupon.Spec {
	now = now.UTC().Truncate(time.Second)
	month := 30 * 24 * time.Hour

	return []coupon.Spec{
		{
			Code:        "WELCOME10",
			Type:        coupon.DiscountPercentage,
			Value:       decimal.NewFromInt(10),
			MinPurchase: money(500),
			MaxDiscount: money(200),
			ValidFrom:   now,
			ValidUntil:  now.Add(12 * month),
			UserLimit:   1,
			Description: "10% off your first order",
		},
		{
			Code:        "ARTISAN50",
			Type:        coupon.DiscountFixed,
			Value:       decimal.NewFromInt(50),
			MinPurchase: money(1000),
			ValidFrom:   now,
			ValidUntil:  now.Add(6 * month),
			Description: "50 off orders above 1000",
		},
		{
			Code:                 "POTTERY20",
			Type:                 coupon.DiscountPercentage,
			Value:                decimal.NewFromInt(20),
			MaxDiscount:          money(500),
			ValidFrom:            now,
			ValidUntil:           now.Add(3 * month),
			ApplicableCategories: []string{"pottery"},
			Description:          "20% off handmade pottery",
		},
		{
			Code:        "FESTIVE25",
			Type:        coupon.DiscountPercentage,
			Value:       decimal.NewFromInt(25),
			MinPurchase: money(2000),
			MaxDiscount: money(1000),
			ValidFrom:   now,
			ValidUntil:  now.Add(month),
			UsageLimit:  100,
			UserLimit:   1,
			Description: "Festive season sale",
		},
		{
			Code:                 "TEXTILE15",
			Type:                 coupon.DiscountPercentage,
			Value:                decimal.NewFromInt(15),
			MinPurchase:          money(800),
			ValidFrom:            now,
			ValidUntil:           now.Add(2 * month),
			ApplicableCategories: []string{"textiles", "handloom"},
			Description:          "15% off textiles and handloom",
		},
		{
			Code:        "FLAT100",
			Type:        coupon.DiscountFixed,
			Value:       decimal.NewFromInt(100),
			MinPurchase: money(1500),
			ValidFrom:   now,
			ValidUntil:  now.Add(6 * month),
			UsageLimit:  500,
			UserLimit:   2,
			Description: "100 off orders above 1500",
		},
	}
}

// Load creates the demo coupons through cat. Codes that already exist are
// skipped. It returns the number of coupons created.
func Load(ctx context.Context, cat *coupon.Catalog, now time.Time) (int, error) {
	created := 0
	for _, s := range Coupons(now) {
		if _, err := cat.Create(ctx, s); err != nil {
			if errors.Is(err, coupon.ErrDuplicateCode) {
				continue
			}
			return created, errors.Wrapf(err, "create %s", s.Code)
		}
		created++
	}
	return created, nil
}
