// Package memory implements coupon.Store in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
)

var _ coupon.Store = (*Store)(nil)

type userKey struct {
	couponID string
	userID   string
}

// Store keeps coupons and ledger counters behind a single mutex, which makes
// Redeem's check-and-increment atomic. Ledger counters outlive the coupons
// they belong to.
type Store struct {
	mu      sync.RWMutex
	coupons map[string]*coupon.Coupon
	byCode  map[string]string
	global  map[string]int
	perUser map[userKey]int
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		coupons: make(map[string]*coupon.Coupon),
		byCode:  make(map[string]string),
		global:  make(map[string]int),
		perUser: make(map[userKey]int),
	}
}

// Insert adds c. It returns coupon.ErrDuplicateCode when the normalized code
// is taken.
func (s *Store) Insert(_ context.Context, c *coupon.Coupon) error {
	key := coupon.NormalizeCode(c.Code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byCode[key]; ok {
		return coupon.ErrDuplicateCode
	}
	s.coupons[c.ID] = c.Clone()
	s.byCode[key] = c.ID
	return nil
}

// Get returns a copy of the coupon with the given id.
func (s *Store) Get(_ context.Context, id string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.coupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c.Clone(), nil
}

// FindByCode returns a copy of the coupon with the given code, compared
// case-insensitively.
func (s *Store) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byCode[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return s.coupons[id].Clone(), nil
}

// Save replaces an existing coupon. The code cannot change.
func (s *Store) Save(_ context.Context, c *coupon.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.coupons[c.ID]
	if !ok {
		return coupon.ErrNotFound
	}
	if current.Version != c.Version-1 {
		return coupon.ErrVersionConflict
	}
	s.coupons[c.ID] = c.Clone()
	return nil
}

// Remove deletes the coupon with the given id and reports whether it existed.
func (s *Store) Remove(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.coupons[id]
	if !ok {
		return false, nil
	}
	delete(s.coupons, id)
	delete(s.byCode, coupon.NormalizeCode(c.Code))
	return true, nil
}

// List returns copies of all coupons in no particular order.
func (s *Store) List(_ context.Context) ([]coupon.Coupon, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]coupon.Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		out = append(out, *c.Clone())
	}
	return out, nil
}

// Usage returns the ledger counters for couponID.
func (s *Store) Usage(_ context.Context, couponID, userID string) (coupon.Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := coupon.Usage{Global: s.global[couponID]}
	if userID != "" {
		u.PerUser = s.perUser[userKey{couponID, userID}]
	}
	return u, nil
}

// Redeem increments the counters for r unless a limit would be exceeded.
func (s *Store) Redeem(_ context.Context, r coupon.Redemption) (coupon.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userKey{r.CouponID, r.UserID}
	global := s.global[r.CouponID]
	if r.UsageLimit > 0 && global >= r.UsageLimit {
		return coupon.Usage{}, coupon.ErrLimitReached
	}
	perUser := 0
	if r.UserID != "" {
		perUser = s.perUser[key]
		if r.UserLimit > 0 && perUser >= r.UserLimit {
			return coupon.Usage{}, coupon.ErrLimitReached
		}
	}

	global++
	s.global[r.CouponID] = global
	if r.UserID != "" {
		perUser++
		s.perUser[key] = perUser
	}
	return coupon.Usage{Global: global, PerUser: perUser}, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}
