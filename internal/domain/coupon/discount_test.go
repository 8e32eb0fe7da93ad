package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCompute(t *testing.T) {
	d := decimal.RequireFromString

	tests := []struct {
		name   string
		coupon Coupon
		amount string
		want   string
	}{
		{
			name:   "percentage",
			coupon: Coupon{Type: DiscountPercentage, Value: d("10")},
			amount: "1500",
			want:   "150",
		},
		{
			name: "percentage capped by max discount",
			coupon: Coupon{
				Type:        DiscountPercentage,
				Value:       d("10"),
				MaxDiscount: decimal.NewNullDecimal(d("200")),
			},
			amount: "3000",
			want:   "200",
		},
		{
			name: "cap above raw discount has no effect",
			coupon: Coupon{
				Type:        DiscountPercentage,
				Value:       d("10"),
				MaxDiscount: decimal.NewNullDecimal(d("500")),
			},
			amount: "3000",
			want:   "300",
		},
		{
			name:   "percentage rounds half up",
			coupon: Coupon{Type: DiscountPercentage, Value: d("15")},
			amount: "10",
			want:   "2",
		},
		{
			name:   "percentage rounds down below half",
			coupon: Coupon{Type: DiscountPercentage, Value: d("12")},
			amount: "10",
			want:   "1",
		},
		{
			name:   "fixed",
			coupon: Coupon{Type: DiscountFixed, Value: d("50")},
			amount: "1200",
			want:   "50",
		},
		{
			name:   "fixed larger than amount",
			coupon: Coupon{Type: DiscountFixed, Value: d("500")},
			amount: "300",
			want:   "300",
		},
		{
			name:   "hundred percent",
			coupon: Coupon{Type: DiscountPercentage, Value: d("100")},
			amount: "750",
			want:   "750",
		},
		{
			name:   "rounding never exceeds fractional amount",
			coupon: Coupon{Type: DiscountFixed, Value: d("100")},
			amount: "0.6",
			want:   "0.6",
		},
		{
			name: "rounding never exceeds fractional cap",
			coupon: Coupon{
				Type:        DiscountPercentage,
				Value:       d("50"),
				MaxDiscount: decimal.NewNullDecimal(d("10.5")),
			},
			amount: "100",
			want:   "10.5",
		},
		{
			name: "fractional cap above rounded discount",
			coupon: Coupon{
				Type:        DiscountPercentage,
				Value:       d("10"),
				MaxDiscount: decimal.NewNullDecimal(d("10.5")),
			},
			amount: "99",
			want:   "10",
		},
		{
			name:   "zero amount",
			coupon: Coupon{Type: DiscountFixed, Value: d("50")},
			amount: "0",
			want:   "0",
		},
		{
			name:   "negative amount",
			coupon: Coupon{Type: DiscountPercentage, Value: d("10")},
			amount: "-100",
			want:   "0",
		},
		{
			name:   "unknown type",
			coupon: Coupon{Type: "bogus", Value: d("10")},
			amount: "100",
			want:   "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(&tt.coupon, d(tt.amount))
			assert.True(t, got.Equal(d(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestCompute_Bounds(t *testing.T) {
	types := []DiscountType{DiscountPercentage, DiscountFixed}
	values := []int64{1, 5, 33, 50, 99, 100, 250, 10000}
	amounts := []string{"0", "0.4", "1", "7.5", "99.99", "100", "1234.56", "1000000"}

	for _, typ := range types {
		for _, v := range values {
			if typ == DiscountPercentage && v > 100 {
				continue
			}
			for _, a := range amounts {
				amount := decimal.RequireFromString(a)
				c := &Coupon{Type: typ, Value: decimal.NewFromInt(v)}

				got := Compute(c, amount)
				assert.False(t, got.IsNegative(), "%s %d on %s", typ, v, a)
				assert.True(t, got.LessThanOrEqual(amount), "%s %d on %s gave %s", typ, v, a, got)

				if typ == DiscountPercentage {
					limit := decimal.RequireFromString("10.5")
					c.MaxDiscount = decimal.NewNullDecimal(limit)
					got = Compute(c, amount)
					assert.True(t, got.LessThanOrEqual(limit), "%d%% capped at %s on %s gave %s", v, limit, a, got)
				}
			}
		}
	}
}
