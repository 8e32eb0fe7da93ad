// Command coupon-import loads coupon definitions from gzip-compressed NDJSON
// files into the PostgreSQL catalog.
//
// Each line is one coupon in the admin API JSON form. Codes repeated across
// lines or files are imported once, first occurrence wins. Codes already in
// the catalog are left untouched: a bloom filter of the catalog's codes
// decides which entries need a lookup before insertion.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
	"github.com/xenking/artisan-coupons/internal/storage/postgres"
)

const progressEvery = 1000

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
	files := flag.Args()
	if len(files) == 0 {
		lg.Fatal("Usage: coupon-import [--database-url URL] FILE.ndjson.gz...")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	st, err := run(ctx, lg, databaseURL, files)
	if err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
	lg.Info("Coupon import completed",
		zap.Int("created", st.created),
		zap.Int("existing", st.existing),
		zap.Int("rejected", st.rejected),
		zap.Int("malformed", st.malformed),
	)
}

type stats struct {
	created   int
	existing  int
	rejected  int
	malformed int
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, files []string) (stats, error) {
	var st stats
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return st, errors.Wrapf(err, "check file %s", f)
		}
	}

	results, err := readFiles(ctx, lg, files)
	if err != nil {
		return st, errors.Wrap(err, "read files")
	}
	for _, r := range results {
		st.malformed += r.invalid
	}

	entries := unique(lg, results)
	lg.Info("Unique coupons found", zap.Int("count", len(entries)))
	if len(entries) == 0 {
		return st, nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return st, errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return st, errors.Wrap(err, "run migrations")
	}

	return load(ctx, lg, postgres.New(pool), entries, st)
}

// load creates each entry through the catalog so imported coupons get the
// same validation and normalization as ones created over the API.
func load(ctx context.Context, lg *zap.Logger, store coupon.CatalogStore, entries []entry, st stats) (stats, error) {
	known, err := knownCodes(ctx, store)
	if err != nil {
		return st, errors.Wrap(err, "load existing codes")
	}
	cat := coupon.NewCatalog(store)

	for i, e := range entries {
		if err := importEntry(ctx, lg, cat, store, known, e, &st); err != nil {
			return st, err
		}
		if (i+1)%progressEvery == 0 || i+1 == len(entries) {
			lg.Info("Import progress", zap.Int("processed", i+1), zap.Int("total", len(entries)))
		}
	}
	return st, nil
}

// knownCodes returns a bloom filter of the codes already in the catalog.
func knownCodes(ctx context.Context, store coupon.CatalogStore) (*bloom.BloomFilter, error) {
	existing, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	filter := bloom.NewWithEstimates(uint(max(len(existing), 1)), 0.001)
	for _, c := range existing {
		filter.AddString(coupon.NormalizeCode(c.Code))
	}
	return filter, nil
}

func importEntry(
	ctx context.Context,
	lg *zap.Logger,
	cat *coupon.Catalog,
	store coupon.CatalogStore,
	known *bloom.BloomFilter,
	e entry,
	st *stats,
) error {
	// Only filter hits can be existing codes; confirm them before inserting.
	if known.TestString(coupon.NormalizeCode(e.spec.Code)) {
		_, err := store.FindByCode(ctx, e.spec.Code)
		switch {
		case err == nil:
			st.existing++
			return nil
		case !errors.Is(err, coupon.ErrNotFound):
			return errors.Wrapf(err, "look up %s", e.spec.Code)
		}
	}

	_, err := cat.Create(ctx, e.spec)
	switch {
	case err == nil:
		st.created++
	case errors.Is(err, coupon.ErrDuplicateCode):
		st.existing++
	case errors.Is(err, coupon.ErrInvalidSpec):
		st.rejected++
		lg.Warn("Rejected coupon",
			zap.String("code", e.spec.Code),
			zap.String("file", e.file),
			zap.Int("line", e.line),
			zap.Error(err),
		)
	default:
		return errors.Wrapf(err, "create %s (%s:%d)", e.spec.Code, e.file, e.line)
	}
	return nil
}
