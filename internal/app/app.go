package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
	"github.com/xenking/artisan-coupons/internal/handler"
	"github.com/xenking/artisan-coupons/internal/seed"
	"github.com/xenking/artisan-coupons/internal/storage/memory"
	"github.com/xenking/artisan-coupons/internal/storage/postgres"
	"github.com/xenking/artisan-coupons/pkg/health"
	"github.com/xenking/artisan-coupons/pkg/httpmiddleware"
)

// store is what the service needs from a storage backend.
type store interface {
	coupon.Store
	health.Pinger
}

// openStore returns the configured backend and a function releasing it.
func openStore(ctx context.Context, cfg *Config) (store, func(), error) {
	if cfg.Storage != StoragePostgres {
		return memory.New(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "run migrations")
	}
	return postgres.New(pool), pool.Close, nil
}

// NewHandler builds the HTTP surface over the given store: coupon routes plus
// health endpoints, without the middleware chain.
func NewHandler(
	ctx context.Context,
	st store,
	cfg *Config,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (http.Handler, *health.Health, error) {
	admin, err := handler.NewAdminAuth(cfg.AdminKeyHashes)
	if err != nil {
		return nil, nil, errors.Wrap(err, "admin keys")
	}

	catalog := coupon.NewCatalog(st)
	engine := coupon.NewEngine(st,
		coupon.WithReservationTTL(cfg.Reservation.TTL),
		coupon.WithTracerProvider(tp),
		coupon.WithMeterProvider(mp),
	)

	if cfg.Seed {
		n, err := seed.Load(ctx, catalog, time.Now())
		if err != nil {
			return nil, nil, errors.Wrap(err, "seed catalog")
		}
		zctx.From(ctx).Info("Seeded catalog", zap.Int("created", n))
	}

	hs := health.New()
	hs.AddReadinessCheck("store", 5*time.Second, health.PingCheck(st))
	hs.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	hs.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", hs.LiveEndpoint)
	mux.HandleFunc("GET /readyz", hs.ReadyEndpoint)
	handler.New(catalog, engine, admin).Register(mux)

	return mux, hs, nil
}

// withMiddleware wraps h with the server middleware chain, outermost first.
func withMiddleware(
	h http.Handler,
	lg *zap.Logger,
	cfg *Config,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) http.Handler {
	return httpmiddleware.Wrap(h,
		httpmiddleware.Recovery(),
		httpmiddleware.RateLimit(httpmiddleware.RateLimitConfig{
			RPS:   cfg.RateLimit.RPS,
			Burst: cfg.RateLimit.Burst,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.Instrument("coupons", tp, mp),
		httpmiddleware.LogRequests(),
	)
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)
	ctx = zctx.Base(ctx, lg)

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	mux, hs, err := NewHandler(ctx, st, cfg, m.TracerProvider(), m.MeterProvider())
	if err != nil {
		return err
	}
	hs.Start(ctx, 10*time.Second)
	hs.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           withMiddleware(mux, lg, cfg, m.TracerProvider(), m.MeterProvider()),
	}

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		hs.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		hs.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
