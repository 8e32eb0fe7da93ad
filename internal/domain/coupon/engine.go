package coupon

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/xenking/artisan-coupons/internal/domain/coupon"

// DefaultReservationTTL is how long a reservation token stays redeemable.
const DefaultReservationTTL = 2 * time.Minute

// Engine validates coupons against orders and commits redemptions to the
// ledger. It holds no persistent state of its own and is safe for
// concurrent use.
type Engine struct {
	store Store
	now   func() time.Time

	reservationMu  sync.Mutex
	reservations   *cache.Cache
	reservationTTL time.Duration

	tracer      trace.Tracer
	validations metric.Int64Counter
	redemptions metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for validity window checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithReservationTTL sets the lifetime of reservation tokens.
func WithReservationTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.reservationTTL = ttl
		}
	}
}

// WithTracerProvider sets the tracer provider used for engine spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the meter provider used for engine counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.initMetrics(mp) }
}

// NewEngine creates an Engine backed by the given Store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		now:            time.Now,
		reservationTTL: DefaultReservationTTL,
		tracer:         tracenoop.NewTracerProvider().Tracer(instrumentationName),
	}
	e.initMetrics(metricnoop.NewMeterProvider())
	for _, opt := range opts {
		opt(e)
	}
	e.reservations = cache.New(e.reservationTTL, 2*e.reservationTTL)
	return e
}

func (e *Engine) initMetrics(mp metric.MeterProvider) {
	meter := mp.Meter(instrumentationName)

	// Instrument creation only fails on invalid names; fall back to no-op.
	validations, err := meter.Int64Counter("coupon.validations",
		metric.WithDescription("Coupon validations by reason"),
	)
	if err != nil {
		validations, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("coupon.validations")
	}
	redemptions, err := meter.Int64Counter("coupon.redemptions",
		metric.WithDescription("Coupon redemption attempts by outcome"),
	)
	if err != nil {
		redemptions, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("coupon.redemptions")
	}
	e.validations = validations
	e.redemptions = redemptions
}

func (e *Engine) recordValidation(ctx context.Context, r Reason) {
	e.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", r.String())))
}

func (e *Engine) recordRedemption(ctx context.Context, outcome string) {
	e.redemptions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Usage returns the ledger counters for a coupon id. Counters of deleted
// coupons remain available.
func (e *Engine) Usage(ctx context.Context, couponID, userID string) (Usage, error) {
	u, err := e.store.Usage(ctx, couponID, userID)
	if err != nil {
		return Usage{}, errors.Wrap(err, "read usage")
	}
	return u, nil
}
