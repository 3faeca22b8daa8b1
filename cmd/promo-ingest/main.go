// Command promo-ingest publishes promo codes listed by partner feeds.
//
// Each feed is a gzip file with one "CODE[,PERCENT]" entry per line. A code
// is published only when at least --min-feeds feeds list it. Feeds are
// scanned twice: the first pass builds one bloom filter per feed, the second
// keeps the codes that other feeds' filters report and confirms them exactly.
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
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/reboul/storefront/internal/domain/cart"
	"github.com/reboul/storefront/internal/storage/postgres"
)

const (
	bloomCapacity  = 10_000_000
	bloomFPR       = 0.001
	progressEvery  = 1_000_000
	minCodeLen     = 4
	maxCodeLen     = 32
	defaultPercent = 10
	maxFeeds       = 64
)

// entry is one parsed feed line.
type entry struct {
	code    string
	percent int
}

// parseLine reads "CODE" or "CODE,PERCENT". Blank lines, comments and
// malformed entries report false.
func parseLine(line string) (entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return entry{}, false
	}
	raw, pctText, hasPct := strings.Cut(line, ",")
	code := cart.NormalizeCode(raw)
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return entry{}, false
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return entry{}, false
		}
	}

	pct := defaultPercent
	if hasPct {
		n, err := strconv.Atoi(strings.TrimSpace(pctText))
		if err != nil || !cart.ValidPercent(n) {
			return entry{}, false
		}
		pct = n
	}
	return entry{code: code, percent: pct}, true
}

// candidate tracks which feeds list a code and the lowest percent offered.
type candidate struct {
	feeds   uint64
	percent int
}

func main() {
	var (
		pattern     string
		databaseURL string
		minFeeds    int
		dryRun      bool
	)

	flag.StringVar(&pattern, "feeds", "data/promos*.gz", "glob matching the gzip feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&minFeeds, "min-feeds", 2, "number of feeds that must list a code")
	flag.BoolVar(&dryRun, "dry-run", false, "print accepted codes instead of writing them")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, pattern, databaseURL, minFeeds, dryRun); err != nil {
		slog.Error("promo ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo ingest completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, minFeeds int, dryRun bool) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "match feeds")
	}
	sort.Strings(files)

	promos, err := collect(ctx, files, minFeeds)
	if err != nil {
		return err
	}
	slog.Info("accepted codes", slog.Int("count", len(promos)))

	if dryRun {
		codes := make([]string, 0, len(promos))
		for code := range promos {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			slog.Info("promo", slog.String("code", code), slog.Int("percent", promos[code]))
		}
		return nil
	}
	if len(promos) == 0 {
		slog.Info("no codes to write")
		return nil
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.NewPromoRepository(pool).Upsert(ctx, promos); err != nil {
		return errors.Wrap(err, "write promo codes")
	}
	return nil
}

// collect returns the codes listed by at least minFeeds of files.
func collect(ctx context.Context, files []string, minFeeds int) (cart.Static, error) {
	switch {
	case len(files) == 0:
		return nil, errors.New("no feed files matched")
	case len(files) > maxFeeds:
		return nil, errors.Errorf("at most %d feeds are supported, got %d", maxFeeds, len(files))
	case minFeeds < 1 || minFeeds > len(files):
		return nil, errors.Errorf("min-feeds must be between 1 and %d", len(files))
	}

	slog.Info("pass 1: building bloom filters", slog.Int("feeds", len(files)))
	filters, err := buildFilters(ctx, files)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: confirming codes")
	perFeed, err := scanCandidates(ctx, files, filters, minFeeds)
	if err != nil {
		return nil, errors.Wrap(err, "scan candidates")
	}

	merged := make(map[string]candidate)
	for _, feed := range perFeed {
		for code, c := range feed {
			m, ok := merged[code]
			if !ok || c.percent < m.percent {
				m.percent = c.percent
			}
			m.feeds |= c.feeds
			merged[code] = m
		}
	}

	out := make(cart.Static)
	for code, c := range merged {
		if bits.OnesCount64(c.feeds) >= minFeeds {
			out[code] = c.percent
		}
	}
	return out, nil
}

// buildFilters creates one bloom filter per feed, concurrently.
func buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count uint64
			err := streamFeed(ctx, path, func(e entry) {
				filter.AddString(e.code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("feed", path), slog.Uint64("codes", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "filter feed %s", path)
			}
			slog.Info("pass 1 complete", slog.String("feed", path), slog.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// scanCandidates re-reads each feed and keeps the codes that enough other
// feeds may list. Bloom false positives are removed by the exact merge.
func scanCandidates(ctx context.Context, files []string, filters []*bloom.BloomFilter, minFeeds int) ([]map[string]candidate, error) {
	results := make([]map[string]candidate, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]candidate)
			bit := uint64(1) << uint(i)
			err := streamFeed(ctx, path, func(e entry) {
				others := 0
				for j, f := range filters {
					if j != i && f.TestString(e.code) {
						others++
					}
				}
				if others+1 < minFeeds {
					return
				}
				c, ok := found[e.code]
				if !ok || e.percent < c.percent {
					c.percent = e.percent
				}
				c.feeds |= bit
				found[e.code] = c
			})
			if err != nil {
				return errors.Wrapf(err, "scan feed %s", path)
			}
			slog.Info("pass 2 complete", slog.String("feed", path), slog.Int("candidates", len(found)))
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// streamFeed calls fn for each valid entry of a gzip feed.
func streamFeed(ctx context.Context, path string, fn func(e entry)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e, ok := parseLine(scanner.Text()); ok {
			fn(e)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
