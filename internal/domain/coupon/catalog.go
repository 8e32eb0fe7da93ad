package coupon

import (
	"cmp"
	"context"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Spec is the definition of a new coupon.
type Spec struct {
	Code                 string       `validate:"required,min=3,max=32,couponcode"`
	Type                 DiscountType `validate:"required,oneof=percentage fixed"`
	Value                decimal.Decimal
	MinPurchase          decimal.NullDecimal
	MaxDiscount          decimal.NullDecimal
	ValidFrom            time.Time `validate:"required"`
	ValidUntil           time.Time `validate:"required,gtefield=ValidFrom"`
	UsageLimit           int       `validate:"gte=0"`
	UserLimit            int       `validate:"gte=0"`
	ApplicableCategories []string  `validate:"dive,required"`
	ApplicableProducts   []string  `validate:"dive,required"`
	Status               Status    `validate:"omitempty,oneof=active disabled"`
	Description          string    `validate:"max=500"`
}

// Patch describes a partial coupon update. Nil fields are left unchanged.
// Code and ID are immutable.
type Patch struct {
	Type                 *DiscountType
	Value                *decimal.Decimal
	MinPurchase          *decimal.NullDecimal
	MaxDiscount          *decimal.NullDecimal
	ValidFrom            *time.Time
	ValidUntil           *time.Time
	UsageLimit           *int
	UserLimit            *int
	ApplicableCategories *[]string
	ApplicableProducts   *[]string
	Status               *Status
	Description          *string
}

// SpecError describes why a coupon definition was rejected.
type SpecError struct {
	Field   string
	Message string
}

func (e *SpecError) Error() string {
	return "invalid coupon definition: " + e.Field + ": " + e.Message
}

// Unwrap allows errors.Is(err, ErrInvalidSpec).
func (e *SpecError) Unwrap() error {
	return ErrInvalidSpec
}

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Catalog manages coupon definitions.
type Catalog struct {
	store    CatalogStore
	validate *validator.Validate
	now      func() time.Time
}

// NewCatalog creates a Catalog backed by the given store.
func NewCatalog(store CatalogStore) *Catalog {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("couponcode", func(fl validator.FieldLevel) bool {
		return codePattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(validateAmounts, Spec{})

	return &Catalog{
		store:    store,
		validate: v,
		now:      time.Now,
	}
}

// validateAmounts checks the decimal fields the tag validators cannot express.
func validateAmounts(sl validator.StructLevel) {
	s := sl.Current().Interface().(Spec)

	if !s.Value.IsPositive() {
		sl.ReportError(s.Value, "Value", "Value", "gt0", "")
	}
	if s.Type == DiscountPercentage && s.Value.GreaterThan(hundred) {
		sl.ReportError(s.Value, "Value", "Value", "lte100", "")
	}
	if s.MinPurchase.Valid && s.MinPurchase.Decimal.IsNegative() {
		sl.ReportError(s.MinPurchase, "MinPurchase", "MinPurchase", "gte0", "")
	}
	if s.MaxDiscount.Valid && s.MaxDiscount.Decimal.IsNegative() {
		sl.ReportError(s.MaxDiscount, "MaxDiscount", "MaxDiscount", "gte0", "")
	}
}

func (cat *Catalog) check(s Spec) error {
	err := cat.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &SpecError{Field: fe.Field(), Message: "failed " + fe.Tag() + " rule"}
	}
	return errors.Wrap(err, "validate coupon")
}

// Create validates s and adds a new coupon to the catalog. It returns
// ErrDuplicateCode when a coupon with the same code exists, regardless of
// its status.
func (cat *Catalog) Create(ctx context.Context, s Spec) (*Coupon, error) {
	s.Code = strings.TrimSpace(s.Code)
	if err := cat.check(s); err != nil {
		return nil, err
	}

	now := cat.now().UTC()
	status := s.Status
	if status == "" {
		status = StatusActive
	}
	c := &Coupon{
		ID:                   uuid.New().String(),
		Code:                 NormalizeCode(s.Code),
		Type:                 s.Type,
		Value:                s.Value,
		MinPurchase:          s.MinPurchase,
		MaxDiscount:          s.MaxDiscount,
		ValidFrom:            s.ValidFrom,
		ValidUntil:           s.ValidUntil,
		UsageLimit:           s.UsageLimit,
		UserLimit:            s.UserLimit,
		ApplicableCategories: lo.Uniq(s.ApplicableCategories),
		ApplicableProducts:   lo.Uniq(s.ApplicableProducts),
		Status:               status,
		Description:          s.Description,
		Version:              1,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := cat.store.Insert(ctx, c); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, ErrDuplicateCode
		}
		return nil, errors.Wrap(err, "insert coupon")
	}

	zctx.From(ctx).Info("Coupon created",
		zap.String("coupon_id", c.ID),
		zap.String("code", c.Code),
		zap.String("type", string(c.Type)),
	)
	return c, nil
}

// Update applies p to the coupon with the given id. It returns ErrNotFound
// when the id does not exist.
func (cat *Catalog) Update(ctx context.Context, id string, p Patch) (*Coupon, error) {
	c, err := cat.modify(ctx, id, func(c *Coupon) error {
		applyPatch(c, p)
		return cat.check(specOf(c))
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Coupon updated",
		zap.String("coupon_id", c.ID),
		zap.Int("version", c.Version),
	)
	return c, nil
}

// maxSaveAttempts bounds how often a read-modify-write is retried after
// losing a version race.
const maxSaveAttempts = 3

// modify reads the coupon, applies fn to a copy and saves it with the next
// version. The save only succeeds against the version that was read, so a
// concurrent edit forces a fresh read instead of being overwritten.
func (cat *Catalog) modify(ctx context.Context, id string, fn func(c *Coupon) error) (*Coupon, error) {
	for attempt := 1; ; attempt++ {
		current, err := cat.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, errors.Wrap(err, "get coupon")
		}

		c := current.Clone()
		if err := fn(c); err != nil {
			return nil, err
		}
		c.Version = current.Version + 1
		c.UpdatedAt = cat.now().UTC()

		err = cat.store.Save(ctx, c)
		switch {
		case err == nil:
			return c, nil
		case errors.Is(err, ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, ErrVersionConflict) && attempt < maxSaveAttempts:
			zctx.From(ctx).Debug("Coupon changed concurrently, retrying",
				zap.String("coupon_id", id),
				zap.Int("attempt", attempt),
			)
		case errors.Is(err, ErrVersionConflict):
			return nil, ErrVersionConflict
		default:
			return nil, errors.Wrap(err, "save coupon")
		}
	}
}

// Delete removes the coupon with the given id. It reports whether a coupon
// was removed. Ledger history of the coupon is kept.
func (cat *Catalog) Delete(ctx context.Context, id string) (bool, error) {
	removed, err := cat.store.Remove(ctx, id)
	if err != nil {
		return false, errors.Wrap(err, "remove coupon")
	}
	if removed {
		zctx.From(ctx).Info("Coupon deleted", zap.String("coupon_id", id))
	}
	return removed, nil
}

// ToggleStatus flips a coupon between active and disabled. It reports false
// when the id does not exist.
func (cat *Catalog) ToggleStatus(ctx context.Context, id string) (bool, error) {
	c, err := cat.modify(ctx, id, func(c *Coupon) error {
		if c.Status == StatusActive {
			c.Status = StatusDisabled
		} else {
			c.Status = StatusActive
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	zctx.From(ctx).Info("Coupon status changed",
		zap.String("coupon_id", c.ID),
		zap.String("status", string(c.Status)),
	)
	return true, nil
}

// Get returns the coupon with the given id.
func (cat *Catalog) Get(ctx context.Context, id string) (*Coupon, error) {
	c, err := cat.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get coupon")
	}
	return c, nil
}

// List returns every coupon ordered by code.
func (cat *Catalog) List(ctx context.Context) ([]Coupon, error) {
	all, err := cat.store.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	slices.SortFunc(all, func(a, b Coupon) int {
		return cmp.Compare(a.Code, b.Code)
	})
	return all, nil
}

// ListActive returns active coupons for display: percentage coupons first,
// then fixed, each group by descending value.
func (cat *Catalog) ListActive(ctx context.Context) ([]Coupon, error) {
	all, err := cat.List(ctx)
	if err != nil {
		return nil, err
	}

	active := lo.Filter(all, func(c Coupon, _ int) bool {
		return c.Status == StatusActive
	})
	slices.SortStableFunc(active, func(a, b Coupon) int {
		if r := cmp.Compare(typeRank(a.Type), typeRank(b.Type)); r != 0 {
			return r
		}
		return b.Value.Cmp(a.Value)
	})
	return active, nil
}

func typeRank(t DiscountType) int {
	if t == DiscountPercentage {
		return 0
	}
	return 1
}

func applyPatch(c *Coupon, p Patch) {
	if p.Type != nil {
		c.Type = *p.Type
	}
	if p.Value != nil {
		c.Value = *p.Value
	}
	if p.MinPurchase != nil {
		c.MinPurchase = *p.MinPurchase
	}
	if p.MaxDiscount != nil {
		c.MaxDiscount = *p.MaxDiscount
	}
	if p.ValidFrom != nil {
		c.ValidFrom = *p.ValidFrom
	}
	if p.ValidUntil != nil {
		c.ValidUntil = *p.ValidUntil
	}
	if p.UsageLimit != nil {
		c.UsageLimit = *p.UsageLimit
	}
	if p.UserLimit != nil {
		c.UserLimit = *p.UserLimit
	}
	if p.ApplicableCategories != nil {
		c.ApplicableCategories = lo.Uniq(*p.ApplicableCategories)
	}
	if p.ApplicableProducts != nil {
		c.ApplicableProducts = lo.Uniq(*p.ApplicableProducts)
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
}

func specOf(c *Coupon) Spec {
	return Spec{
		Code:                 c.Code,
		Type:                 c.Type,
		Value:                c.Value,
		MinPurchase:          c.MinPurchase,
		MaxDiscount:          c.MaxDiscount,
		ValidFrom:            c.ValidFrom,
		ValidUntil:           c.ValidUntil,
		UsageLimit:           c.UsageLimit,
		UserLimit:            c.UserLimit,
		ApplicableCategories: c.ApplicableCategories,
		ApplicableProducts:   c.ApplicableProducts,
		Status:               c.Status,
		Description:          c.Description,
	}
}
