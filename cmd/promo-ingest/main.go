// Command promo-ingest loads discount definitions from bulk promo code dumps.
// The dumps are gzip-compressed line files too large to intersect in memory,
// so membership across files is approximated with per-dump bloom filters: a
// code counts as valid when it occurs in at least two dumps.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pagecraft/commerce/internal/domain/discount"
	"github.com/pagecraft/commerce/internal/postgres"
)

const (
	filterCapacity = 120_000_000
	filterFPR      = 0.001
	minRequired    = 2
	minCodeLen     = 8
	maxCodeLen     = 10
	logEvery       = 10_000_000
)

// rule maps a well-known code to the definition it should produce. Codes
// outside the table get fallbackRule.
type rule struct {
	kind   discount.Type
	amount string
	title  string
}

var knownRules = map[string]rule{
	"FIFTYOFF": {kind: discount.TypePercentage, amount: "50", title: "50% off entire order"},
	"SIXTYOFF": {kind: discount.TypePercentage, amount: "60", title: "60% off entire order"},
	"GNULINUX": {kind: discount.TypePercentage, amount: "15", title: "Open source discount: 15% off"},
	"OVER9000": {kind: discount.TypeFixed, amount: "9", title: "$9 off your order"},
	"HAPPYHRS": {kind: discount.TypePercentage, amount: "18", title: "Happy Hours: 18% off"},
}

var fallbackRule = rule{
	kind:   discount.TypePercentage,
	amount: "10",
	title:  "Valid promo code: 10% off",
}

func main() {
	var (
		pattern     string
		databaseURL string
	)

	flag.StringVar(&pattern, "dumps", "data/promocode*.gz", "glob of promo code dump files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, pattern, databaseURL); err != nil {
		slog.Error("promo ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo ingest completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string) error {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrapf(err, "glob %s", pattern)
	}
	if len(paths) < minRequired {
		return errors.Errorf("need at least %d dump files, %q matched %d", minRequired, pattern, len(paths))
	}
	sort.Strings(paths)

	dumps := &dumpSet{paths: paths}

	slog.Info("pass 1: building bloom filters", slog.Int("dumps", len(paths)))
	if err := dumps.buildFilters(ctx); err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: intersecting dumps")
	codes, err := dumps.validCodes(ctx)
	if err != nil {
		return errors.Wrap(err, "intersect dumps")
	}
	slog.Info("valid codes found", slog.Int("count", len(codes)))

	if len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeDefinitions(ctx, postgres.NewDiscountRepository(pool), codes)
}

// dumpSet is the set of code dumps plus one bloom filter per dump.
type dumpSet struct {
	paths   []string
	filters []*bloom.BloomFilter
}

// buildFilters streams every dump once and fills one filter per dump.
func (ds *dumpSet) buildFilters(ctx context.Context) error {
	ds.filters = make([]*bloom.BloomFilter, len(ds.paths))

	g, ctx := errgroup.WithContext(ctx)
	for i := range ds.paths {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(filterCapacity, filterFPR)
			n, err := ds.scan(ctx, i, "pass 1", func(code string) {
				filter.AddString(code)
			})
			if err != nil {
				return err
			}
			slog.Info("pass 1 complete", slog.String("dump", ds.paths[i]), slog.Uint64("codes", n))
			ds.filters[i] = filter
			return nil
		})
	}
	return g.Wait()
}

// validCodes streams every dump a second time, testing each code against the
// other dumps' filters, and keeps codes present in minRequired dumps. Each
// dump contributes one bit to a per-code mask so a code crossing many dumps
// is counted once per dump, not once per filter hit.
func (ds *dumpSet) validCodes(ctx context.Context) ([]string, error) {
	masks := make([]map[string]uint, len(ds.paths))

	g, ctx := errgroup.WithContext(ctx)
	for i := range ds.paths {
		g.Go(func() error {
			seen := make(map[string]uint)
			bit := uint(1) << uint(i)

			n, err := ds.scan(ctx, i, "pass 2", func(code string) {
				for j, f := range ds.filters {
					if j == i {
						continue
					}
					if f.TestString(code) {
						seen[code] |= bit
						break
					}
				}
			})
			if err != nil {
				return err
			}
			slog.Info("pass 2 complete",
				slog.String("dump", ds.paths[i]),
				slog.Uint64("codes", n),
				slog.Int("candidates", len(seen)),
			)
			masks[i] = seen
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, m := range masks {
		for code, mask := range m {
			merged[code] |= mask
		}
	}

	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= minRequired {
			valid = append(valid, code)
		}
	}
	return valid, nil
}

// scan streams one dump line by line, forwarding only codes of plausible
// length, and returns the number of codes seen.
func (ds *dumpSet) scan(ctx context.Context, idx int, pass string, fn func(code string)) (uint64, error) {
	f, err := os.Open(ds.paths[idx])
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", ds.paths[idx])
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "gzip reader for %s", ds.paths[idx])
	}
	defer func() { _ = gz.Close() }()

	var n uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		code := scanner.Text()
		if len(code) < minCodeLen || len(code) > maxCodeLen {
			continue
		}
		n++
		if n%logEvery == 0 {
			slog.Info(pass+" progress", slog.String("dump", ds.paths[idx]), slog.Uint64("codes", n))
		}
		fn(code)
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrapf(err, "scan %s", ds.paths[idx])
	}
	return n, nil
}

// writeDefinitions upserts every valid code as a discount definition.
func writeDefinitions(ctx context.Context, repo *postgres.DiscountRepository, codes []string) error {
	slog.Info("writing discount definitions", slog.Int("count", len(codes)))

	for i, code := range codes {
		r, ok := knownRules[code]
		if !ok {
			r = fallbackRule
		}

		amount, err := decimal.NewFromString(r.amount)
		if err != nil {
			return errors.Wrapf(err, "parse amount for code %s", code)
		}

		if err := repo.Upsert(ctx, &discount.Definition{
			Code:   code,
			Title:  r.title,
			Type:   r.kind,
			Amount: amount,
		}); err != nil {
			return errors.Wrapf(err, "upsert definition %s", code)
		}

		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}
	return nil
}
