package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes a percentage of the order amount, optionally capped.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed takes a fixed amount, never more than the order amount.
	DiscountFixed DiscountType = "fixed"
)

// Status is the administrative state of a coupon. Expiry is not a status:
// it is evaluated against the validity window on every validation.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

var (
	// ErrNotFound is returned when a coupon id or code does not exist.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when a coupon with the same code
	// (case-insensitive) already exists.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrInvalidSpec is returned when a coupon definition fails validation.
	ErrInvalidSpec = errors.New("invalid coupon definition")
	// ErrLimitReached is returned by a Ledger when an atomic redemption
	// would exceed the global or per-user usage limit.
	ErrLimitReached = errors.New("coupon usage limit reached")
	// ErrVersionConflict is returned by CatalogStore.Save when the stored
	// coupon no longer has the version the update was based on.
	ErrVersionConflict = errors.New("coupon was modified concurrently")
	// ErrInvalidOrder is returned when an order cannot be evaluated, such as
	// one with a negative amount.
	ErrInvalidOrder = errors.New("invalid order")
)

// Coupon is a named discount rule with its own eligibility constraints and
// validity window.
type Coupon struct {
	ID          string
	Code        string
	Type        DiscountType
	Value       decimal.Decimal
	MinPurchase decimal.NullDecimal
	MaxDiscount decimal.NullDecimal
	ValidFrom   time.Time
	ValidUntil  time.Time
	// UsageLimit caps total redemptions; zero means unlimited.
	UsageLimit int
	// UserLimit caps redemptions per user; zero means unlimited.
	UserLimit            int
	ApplicableCategories []string
	ApplicableProducts   []string
	Status               Status
	Description          string

	// Version is bumped by every update so reservations can detect
	// coupons that changed after they were validated.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of c.
func (c *Coupon) Clone() *Coupon {
	if c == nil {
		return nil
	}
	cp := *c
	cp.ApplicableCategories = append([]string(nil), c.ApplicableCategories...)
	cp.ApplicableProducts = append([]string(nil), c.ApplicableProducts...)
	return &cp
}

// NormalizeCode returns the canonical form used for case-insensitive code
// lookups and uniqueness.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Order is the purchase context a coupon is validated against.
type Order struct {
	Amount decimal.Decimal
	// UserID is empty for anonymous checkouts; per-user limits are skipped.
	UserID     string
	Categories []string
	ProductIDs []string
}

// Usage holds ledger counters for a coupon.
type Usage struct {
	Global  int
	PerUser int
}

// Redemption describes an atomic check-and-increment request against the
// ledger. Limits are copied from the coupon at validation time.
type Redemption struct {
	CouponID   string
	UserID     string
	UsageLimit int
	UserLimit  int
}

// CatalogStore persists coupon definitions. Implementations must enforce
// case-insensitive code uniqueness in Insert.
//
// Save replaces an existing coupon only when the stored version is
// c.Version-1. It returns ErrNotFound for unknown ids and
// ErrVersionConflict when the stored version differs.
type CatalogStore interface {
	Insert(ctx context.Context, c *Coupon) error
	Get(ctx context.Context, id string) (*Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	Save(ctx context.Context, c *Coupon) error
	Remove(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]Coupon, error)
}

// Ledger is the authoritative record of redemptions. It is the only writer
// of usage counters.
type Ledger interface {
	// Usage returns the global count and, when userID is non-empty, the
	// per-user count for the coupon. Unknown coupons report zero usage.
	Usage(ctx context.Context, couponID, userID string) (Usage, error)
	// Redeem increments the counters if and only if doing so does not exceed
	// the limits in r. It returns ErrLimitReached otherwise. The check and the
	// increment must happen atomically.
	Redeem(ctx context.Context, r Redemption) (Usage, error)
}

// Store combines catalog and ledger persistence.
type Store interface {
	CatalogStore
	Ledger
}
