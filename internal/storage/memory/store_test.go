package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
)

func TestStore_Catalog(t *testing.T) {
	ctx := context.Background()
	s := New()

	c := &coupon.Coupon{ID: "c1", Code: "Welcome10", ApplicableCategories: []string{"pottery"}}
	require.NoError(t, s.Insert(ctx, c))
	require.ErrorIs(t, s.Insert(ctx, &coupon.Coupon{ID: "c2", Code: " welcome10 "}), coupon.ErrDuplicateCode)

	got, err := s.FindByCode(ctx, "WELCOME10")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)

	// Returned coupons are copies.
	got.ApplicableCategories[0] = "textiles"
	again, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pottery"}, again.ApplicableCategories)

	require.ErrorIs(t, s.Save(ctx, &coupon.Coupon{ID: "missing"}), coupon.ErrNotFound)

	// Saves are accepted only on top of the stored version.
	next := again.Clone()
	next.Version = again.Version + 1
	require.NoError(t, s.Save(ctx, next))
	require.ErrorIs(t, s.Save(ctx, next), coupon.ErrVersionConflict)
	stale := again.Clone()
	stale.Version = again.Version + 5
	require.ErrorIs(t, s.Save(ctx, stale), coupon.ErrVersionConflict)

	removed, err := s.Remove(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = s.FindByCode(ctx, "welcome10")
	require.ErrorIs(t, err, coupon.ErrNotFound)

	// The code is free again after deletion.
	require.NoError(t, s.Insert(ctx, &coupon.Coupon{ID: "c3", Code: "WELCOME10"}))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStore_Redeem(t *testing.T) {
	ctx := context.Background()
	s := New()

	r := coupon.Redemption{CouponID: "c1", UserID: "u1", UsageLimit: 3, UserLimit: 2}

	u, err := s.Redeem(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, coupon.Usage{Global: 1, PerUser: 1}, u)

	_, err = s.Redeem(ctx, r)
	require.NoError(t, err)

	_, err = s.Redeem(ctx, r)
	require.ErrorIs(t, err, coupon.ErrLimitReached)

	anon := r
	anon.UserID = ""
	u, err = s.Redeem(ctx, anon)
	require.NoError(t, err)
	assert.Equal(t, coupon.Usage{Global: 3}, u)

	_, err = s.Redeem(ctx, anon)
	require.ErrorIs(t, err, coupon.ErrLimitReached)

	u, err = s.Usage(ctx, "c1", "u1")
	require.NoError(t, err)
	assert.Equal(t, coupon.Usage{Global: 3, PerUser: 2}, u)

	u, err = s.Usage(ctx, "unknown", "u1")
	require.NoError(t, err)
	assert.Zero(t, u)
}

func TestStore_RedeemConcurrent(t *testing.T) {
	ctx := context.Background()
	s := New()

	const limit = 10
	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Redeem(ctx, coupon.Redemption{CouponID: "c1", UsageLimit: limit}); err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(limit), success.Load())
	u, err := s.Usage(ctx, "c1", "")
	require.NoError(t, err)
	assert.Equal(t, limit, u.Global)
}
