package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
	"github.com/xenking/artisan-coupons/internal/storage/memory"
)

func line(code, typ, value string) string {
	return `{"code":"` + code + `","type":"` + typ + `","value":` + value +
		`,"validFrom":"2025-01-01T00:00:00Z","validUntil":"2025-12-31T23:59:59Z"}`
}

func writeGz(t *testing.T, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestReadFiles(t *testing.T) {
	lg := zaptest.NewLogger(t)
	a := writeGz(t, "a.ndjson.gz",
		line("POTTERY20", "percentage", "20"),
		"",
		"{not json",
		line("FLAT100", "fixed", "100"),
	)
	b := writeGz(t, "b.ndjson.gz", line("TEXTILE15", "percentage", "15"))

	results, err := readFiles(context.Background(), lg, []string{a, b})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Len(t, results[0].entries, 2)
	assert.Equal(t, 1, results[0].invalid)
	assert.Equal(t, 4, results[0].entries[1].line)
	assert.Equal(t, "FLAT100", results[0].entries[1].spec.Code)
	assert.Equal(t, coupon.DiscountFixed, results[0].entries[1].spec.Type)

	assert.Len(t, results[1].entries, 1)
}

func TestReadFiles_MissingFile(t *testing.T) {
	_, err := readFiles(context.Background(), zaptest.NewLogger(t), []string{"/nonexistent.gz"})
	require.Error(t, err)
}

func TestUnique(t *testing.T) {
	results := []fileResult{
		{entries: []entry{
			{file: "a", line: 1, spec: coupon.Spec{Code: "SAVE10"}},
			{file: "a", line: 2, spec: coupon.Spec{Code: "save10"}},
			{file: "a", line: 3, spec: coupon.Spec{Code: "CLAY5"}},
		}},
		{entries: []entry{
			{file: "b", line: 1, spec: coupon.Spec{Code: " SAVE10 "}},
			{file: "b", line: 2, spec: coupon.Spec{Code: "GLAZE"}},
		}},
	}

	out := unique(zaptest.NewLogger(t), results)
	codes := make([]string, 0, len(out))
	for _, e := range out {
		codes = append(codes, e.spec.Code)
	}
	assert.Equal(t, []string{"SAVE10", "CLAY5", "GLAZE"}, codes)
	assert.Equal(t, 1, out[0].line)
}

func TestDedup_Empty(t *testing.T) {
	d := newDedup(0)
	assert.True(t, d.add("A"))
	assert.False(t, d.add("a"))
}

// countingStore counts code lookups.
type countingStore struct {
	*memory.Store
	lookups int
}

func (s *countingStore) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	s.lookups++
	return s.Store.FindByCode(ctx, code)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	lg := zaptest.NewLogger(t)
	store := &countingStore{Store: memory.New()}

	path := writeGz(t, "c.ndjson.gz",
		line("POTTERY20", "percentage", "20"),
		line("BROKEN", "percentage", "150"),
		line("FLAT100", "fixed", "100"),
	)
	results, err := readFiles(ctx, lg, []string{path})
	require.NoError(t, err)
	entries := unique(lg, results)

	st, err := load(ctx, lg, store, entries, stats{})
	require.NoError(t, err)
	assert.Equal(t, stats{created: 2, rejected: 1}, st)
	// An empty catalog needs no lookups.
	assert.Zero(t, store.lookups)

	// Re-importing leaves existing codes alone and confirms them by lookup.
	st, err = load(ctx, lg, store, entries, stats{})
	require.NoError(t, err)
	assert.Equal(t, stats{existing: 2, rejected: 1}, st)
	assert.GreaterOrEqual(t, store.lookups, 2)

	all, err := coupon.NewCatalog(store).List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestKnownCodes(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	empty, err := knownCodes(ctx, store)
	require.NoError(t, err)
	assert.False(t, empty.TestString("GLAZE5"))

	cat := coupon.NewCatalog(store)
	for _, code := range []string{"glaze5", "KILN10"} {
		_, err := cat.Create(ctx, coupon.Spec{
			Code: code, Type: coupon.DiscountFixed, Value: decimal.NewFromInt(5),
			ValidFrom: time.Now(), ValidUntil: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
	}

	filter, err := knownCodes(ctx, store)
	require.NoError(t, err)
	assert.True(t, filter.TestString("GLAZE5"))
	assert.True(t, filter.TestString("KILN10"))
}
