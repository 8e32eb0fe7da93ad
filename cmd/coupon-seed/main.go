// Command coupon-seed loads the demo coupons into a PostgreSQL catalog.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
	"github.com/xenking/artisan-coupons/internal/seed"
	"github.com/xenking/artisan-coupons/internal/storage/postgres"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx = zctx.Base(ctx, lg)

	n, err := run(ctx, databaseURL)
	if err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed", zap.Int("created", n))
}

func run(ctx context.Context, databaseURL string) (int, error) {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return 0, errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return 0, errors.Wrap(err, "run migrations")
	}

	return seed.Load(ctx, coupon.NewCatalog(postgres.New(pool)), time.Now())
}
