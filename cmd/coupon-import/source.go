package main

import (
	"bufio"
	"bytes"
	"context"
	"os"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/artisan-coupons/internal/domain/coupon"
	"github.com/xenking/artisan-coupons/internal/handler"
)

const maxLineSize = 1 << 20

// entry is one parsed coupon definition and where it came from.
type entry struct {
	file string
	line int
	spec coupon.Spec
}

// fileResult holds the definitions read from a single file.
type fileResult struct {
	entries []entry
	invalid int
}

// readFiles parses every file concurrently and returns the results in file
// order.
func readFiles(ctx context.Context, lg *zap.Logger, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			res, err := readFile(ctx, lg, path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// readFile streams a gzip-compressed NDJSON file. Lines that do not parse are
// logged and counted, not fatal.
func readFile(ctx context.Context, lg *zap.Logger, path string) (fileResult, error) {
	var res fileResult

	f, err := os.Open(path)
	if err != nil {
		return res, errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return res, errors.Wrap(err, "gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line++

		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		spec, err := handler.DecodeSpec(b)
		if err != nil {
			res.invalid++
			lg.Warn("Skipping malformed line",
				zap.String("file", path),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}
		res.entries = append(res.entries, entry{file: path, line: line, spec: spec})
	}
	if err := scanner.Err(); err != nil {
		return res, errors.Wrap(err, "scan")
	}

	lg.Info("File parsed",
		zap.String("file", path),
		zap.Int("coupons", len(res.entries)),
		zap.Int("invalid", res.invalid),
	)
	return res, nil
}

// dedup tracks codes already seen across all files.
type dedup struct {
	seen map[string]struct{}
}

func newDedup(expected int) *dedup {
	return &dedup{seen: make(map[string]struct{}, expected)}
}

// add records code and reports whether it was new.
func (d *dedup) add(code string) bool {
	code = coupon.NormalizeCode(code)
	if _, ok := d.seen[code]; ok {
		return false
	}
	d.seen[code] = struct{}{}
	return true
}

// unique flattens results in file order, keeping the first definition of
// each code.
func unique(lg *zap.Logger, results []fileResult) []entry {
	total := 0
	for _, r := range results {
		total += len(r.entries)
	}

	d := newDedup(total)
	out := make([]entry, 0, total)
	for _, r := range results {
		for _, e := range r.entries {
			if !d.add(e.spec.Code) {
				lg.Debug("Skipping duplicate code",
					zap.String("code", e.spec.Code),
					zap.String("file", e.file),
					zap.Int("line", e.line),
				)
				continue
			}
			out = append(out, e)
		}
	}
	return out
}
