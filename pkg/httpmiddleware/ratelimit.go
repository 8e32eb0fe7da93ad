package httpmiddleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token bucket limiter.
type RateLimitConfig struct {
	// RPS is the sustained number of requests per second per key.
	RPS float64
	// Burst is the bucket size.
	Burst int
	// IdleTTL evicts buckets of keys that sent nothing for this long.
	// Defaults to ten minutes.
	IdleTTL time.Duration
	// KeyFunc extracts the rate limit key from a request. Defaults to the
	// client IP address.
	KeyFunc func(*http.Request) string
}

type rateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	limiters *cache.Cache
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &rateLimiter{
		cfg:      cfg,
		limiters: cache.New(cfg.IdleTTL, cfg.IdleTTL),
	}
}

// limiter returns the bucket for key and extends its idle deadline.
func (rl *rateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var lim *rate.Limiter
	if v, ok := rl.limiters.Get(key); ok {
		lim = v.(*rate.Limiter)
	} else {
		lim = rate.NewLimiter(rate.Limit(rl.cfg.RPS), rl.cfg.Burst)
	}
	rl.limiters.Set(key, lim, cache.DefaultExpiration)
	return lim
}

// RateLimit returns a middleware that enforces a per-key token bucket. Denied
// requests get 429 with a JSON body and a Retry-After header. Every response
// carries X-RateLimit-Limit and X-RateLimit-Remaining.
func RateLimit(cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lim := rl.limiter(rl.cfg.KeyFunc(r))
			now := time.Now()
			allowed := lim.AllowN(now, 1)

			remaining := int(math.Max(0, math.Floor(lim.TokensAt(now))))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Burst))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !allowed {
				res := lim.ReserveN(now, 1)
				delay := res.DelayFrom(now)
				res.CancelAt(now)
				if !res.OK() || delay == rate.InfDuration {
					delay = time.Minute
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP from X-Forwarded-For, X-Real-IP or
// RemoteAddr, in that order.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
