package coupon_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
	"github.com/xenking/artisan-coupons/internal/storage/memory"
)

func validSpec(code string) coupon.Spec {
	return coupon.Spec{
		Code:       code,
		Type:       coupon.DiscountPercentage,
		Value:      dec(10),
		ValidFrom:  fixedNow,
		ValidUntil: fixedNow.Add(time.Hour),
	}
}

func TestCatalog_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	c, err := f.catalog.Create(ctx, validSpec(" summer_sale-1 "))
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "SUMMER_SALE-1", c.Code)
	assert.Equal(t, coupon.StatusActive, c.Status)
	assert.Equal(t, 1, c.Version)

	_, err = f.catalog.Create(ctx, validSpec("Summer_Sale-1"))
	require.ErrorIs(t, err, coupon.ErrDuplicateCode)

	// Disabled coupons still hold their code.
	_, err = f.catalog.ToggleStatus(ctx, c.ID)
	require.NoError(t, err)
	_, err = f.catalog.Create(ctx, validSpec("SUMMER_SALE-1"))
	require.ErrorIs(t, err, coupon.ErrDuplicateCode)
}

func TestCatalog_CreateInvalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*coupon.Spec)
		field  string
	}{
		{"empty code", func(s *coupon.Spec) { s.Code = "" }, "Code"},
		{"short code", func(s *coupon.Spec) { s.Code = "AB" }, "Code"},
		{"code with spaces", func(s *coupon.Spec) { s.Code = "TWO WORDS" }, "Code"},
		{"unknown type", func(s *coupon.Spec) { s.Type = "bogo" }, "Type"},
		{"zero value", func(s *coupon.Spec) { s.Value = decimal.Zero }, "Value"},
		{"percentage above hundred", func(s *coupon.Spec) { s.Value = dec(101) }, "Value"},
		{"negative minimum", func(s *coupon.Spec) { s.MinPurchase = nullDec(-1) }, "MinPurchase"},
		{"negative cap", func(s *coupon.Spec) { s.MaxDiscount = nullDec(-1) }, "MaxDiscount"},
		{"window reversed", func(s *coupon.Spec) { s.ValidUntil = s.ValidFrom.Add(-time.Second) }, "ValidUntil"},
		{"missing window start", func(s *coupon.Spec) { s.ValidFrom = time.Time{} }, "ValidFrom"},
		{"negative usage limit", func(s *coupon.Spec) { s.UsageLimit = -1 }, "UsageLimit"},
		{"negative user limit", func(s *coupon.Spec) { s.UserLimit = -1 }, "UserLimit"},
		{"empty category", func(s *coupon.Spec) { s.ApplicableCategories = []string{""} }, "ApplicableCategories[0]"},
		{"unknown status", func(s *coupon.Spec) { s.Status = "expired" }, "Status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			s := validSpec("VALID")
			tt.mutate(&s)

			_, err := f.catalog.Create(context.Background(), s)
			require.ErrorIs(t, err, coupon.ErrInvalidSpec)

			var specErr *coupon.SpecError
			require.ErrorAs(t, err, &specErr)
			assert.Equal(t, tt.field, specErr.Field)
		})
	}
}

func TestCatalog_FixedAboveHundred(t *testing.T) {
	f := newFixture(t)
	s := validSpec("FLAT500")
	s.Type = coupon.DiscountFixed
	s.Value = dec(500)

	_, err := f.catalog.Create(context.Background(), s)
	require.NoError(t, err)
}

func TestCatalog_Update(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c, err := f.catalog.Create(ctx, validSpec("PATCHME"))
	require.NoError(t, err)

	value := dec(25)
	limit := 10
	cats := []string{"pottery", "pottery", "jewelry"}
	updated, err := f.catalog.Update(ctx, c.ID, coupon.Patch{
		Value:                &value,
		UsageLimit:           &limit,
		ApplicableCategories: &cats,
	})
	require.NoError(t, err)
	assert.True(t, updated.Value.Equal(value))
	assert.Equal(t, 10, updated.UsageLimit)
	assert.Equal(t, []string{"pottery", "jewelry"}, updated.ApplicableCategories)
	assert.Equal(t, c.Version+1, updated.Version)
	assert.Equal(t, c.Code, updated.Code)

	// The merged result is validated.
	typ := coupon.DiscountPercentage
	tooMuch := dec(150)
	_, err = f.catalog.Update(ctx, c.ID, coupon.Patch{Type: &typ, Value: &tooMuch})
	require.ErrorIs(t, err, coupon.ErrInvalidSpec)

	stored, err := f.catalog.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.Value.Equal(value))

	_, err = f.catalog.Update(ctx, "missing", coupon.Patch{Value: &value})
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

// racingStore runs edit once right before the first Save, as if another
// admin saved the coupon in between.
type racingStore struct {
	*memory.Store
	once  sync.Once
	edit  func()
	saves int
}

func (s *racingStore) Save(ctx context.Context, c *coupon.Coupon) error {
	s.saves++
	s.once.Do(s.edit)
	return s.Store.Save(ctx, c)
}

func TestCatalog_UpdateKeepsConcurrentEdit(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	store := &racingStore{Store: base}
	catalog := coupon.NewCatalog(store)

	c, err := catalog.Create(ctx, validSpec("RACE"))
	require.NoError(t, err)

	store.edit = func() {
		other, err := base.Get(ctx, c.ID)
		require.NoError(t, err)
		other.Description = "edited elsewhere"
		other.Version++
		require.NoError(t, base.Save(ctx, other))
	}

	value := dec(30)
	updated, err := catalog.Update(ctx, c.ID, coupon.Patch{Value: &value})
	require.NoError(t, err)
	assert.Equal(t, 2, store.saves)
	assert.Equal(t, c.Version+2, updated.Version)

	stored, err := catalog.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.Value.Equal(value))
	assert.Equal(t, "edited elsewhere", stored.Description)
	assert.Equal(t, c.Version+2, stored.Version)
}

// conflictStore rejects every save.
type conflictStore struct {
	*memory.Store
}

func (conflictStore) Save(context.Context, *coupon.Coupon) error {
	return coupon.ErrVersionConflict
}

func TestCatalog_VersionConflict(t *testing.T) {
	ctx := context.Background()
	catalog := coupon.NewCatalog(conflictStore{memory.New()})

	c, err := catalog.Create(ctx, validSpec("BUSY"))
	require.NoError(t, err)

	value := dec(30)
	_, err = catalog.Update(ctx, c.ID, coupon.Patch{Value: &value})
	require.ErrorIs(t, err, coupon.ErrVersionConflict)

	_, err = catalog.ToggleStatus(ctx, c.ID)
	require.ErrorIs(t, err, coupon.ErrVersionConflict)
}

func TestCatalog_ConcurrentToggles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c, err := f.catalog.Create(ctx, validSpec("FLIP"))
	require.NoError(t, err)

	const workers = 2
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.catalog.ToggleStatus(ctx, c.ID)
		}()
	}
	wg.Wait()

	got, err := f.catalog.Get(ctx, c.ID)
	require.NoError(t, err)
	// Every successful toggle bumps the version exactly once.
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, coupon.ErrVersionConflict)
		}
	}
	assert.Equal(t, c.Version+succeeded, got.Version)
	if succeeded%2 == 0 {
		assert.Equal(t, coupon.StatusActive, got.Status)
	} else {
		assert.Equal(t, coupon.StatusDisabled, got.Status)
	}
}

func TestCatalog_DeleteAndToggle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c, err := f.catalog.Create(ctx, validSpec("BYEBYE"))
	require.NoError(t, err)

	ok, err := f.catalog.ToggleStatus(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := f.catalog.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, coupon.StatusDisabled, got.Status)

	ok, err = f.catalog.ToggleStatus(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err = f.catalog.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, coupon.StatusActive, got.Status)
	assert.Equal(t, 3, got.Version)

	removed, err := f.catalog.Delete(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = f.catalog.Delete(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	ok, err = f.catalog.ToggleStatus(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.catalog.Get(ctx, c.ID)
	require.ErrorIs(t, err, coupon.ErrNotFound)
}

func TestCatalog_ListActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	mk := func(code string, typ coupon.DiscountType, value int64, status coupon.Status) {
		s := validSpec(code)
		s.Type = typ
		s.Value = dec(value)
		s.Status = status
		_, err := f.catalog.Create(ctx, s)
		require.NoError(t, err)
	}
	mk("FIXED50", coupon.DiscountFixed, 50, coupon.StatusActive)
	mk("PCT10", coupon.DiscountPercentage, 10, coupon.StatusActive)
	mk("FIXED200", coupon.DiscountFixed, 200, coupon.StatusActive)
	mk("PCT25", coupon.DiscountPercentage, 25, coupon.StatusActive)
	mk("PCT99", coupon.DiscountPercentage, 99, coupon.StatusDisabled)
	mk("APCT10", coupon.DiscountPercentage, 10, coupon.StatusActive)

	active, err := f.catalog.ListActive(ctx)
	require.NoError(t, err)

	codes := make([]string, 0, len(active))
	for _, c := range active {
		codes = append(codes, c.Code)
	}
	assert.Equal(t, []string{"PCT25", "APCT10", "PCT10", "FIXED200", "FIXED50"}, codes)

	all, err := f.catalog.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}
