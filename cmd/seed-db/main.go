package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/reboul/storefront/internal/domain/cart"
	"github.com/reboul/storefront/internal/domain/product"
	"github.com/reboul/storefront/internal/domain/stock"
	"github.com/reboul/storefront/internal/storage/postgres"
)

// seedFile is the layout of the seed document.
type seedFile struct {
	Categories []string       `json:"categories"`
	Promos     map[string]int `json:"promos"`
	Products   []seedProduct  `json:"products"`
}

type seedProduct struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	Categories  []string        `json:"categories"`
	SizeStock   map[string]any  `json:"sizeStock"`
	Status      string          `json:"status"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/catalog.json", "path to the seed JSON file, optionally .gz")
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

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	seed, err := readSeed(seedPath)
	if err != nil {
		return err
	}

	slog.Info("running migrations")
	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	categoryIDs, err := seedCategories(ctx, postgres.NewCategoryRepository(pool), seed)
	if err != nil {
		return errors.Wrap(err, "seed categories")
	}
	if err := seedProducts(ctx, postgres.NewProductRepository(pool), seed.Products, categoryIDs); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := postgres.NewPromoRepository(pool).Upsert(ctx, cart.Static(seed.Promos)); err != nil {
		return errors.Wrap(err, "seed promo codes")
	}
	slog.Info("upserted promo codes", slog.Int("count", len(seed.Promos)))
	return nil
}

// readSeed decodes the seed document. Files ending in .gz are decompressed.
func readSeed(path string) (*seedFile, error) {
	slog.Info("reading seed file", slog.String("path", path))

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open seed file")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "create gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var seed seedFile
	if err := dec.Decode(&seed); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}
	return &seed, nil
}

// seedCategories ensures every category named by the document exists and
// returns the ids by name.
func seedCategories(ctx context.Context, repo *postgres.CategoryRepository, seed *seedFile) (map[string]int64, error) {
	names := append([]string(nil), seed.Categories...)
	for _, p := range seed.Products {
		names = append(names, p.Categories...)
	}

	ids := make(map[string]int64, len(names))
	for _, name := range names {
		if _, ok := ids[name]; ok {
			continue
		}
		id, err := repo.Ensure(ctx, name)
		if err != nil {
			return nil, err
		}
		ids[name] = id
	}
	slog.Info("ensured categories", slog.Int("count", len(ids)))
	return ids, nil
}

// seedProducts creates the products whose name is not in the catalog yet.
func seedProducts(ctx context.Context, repo *postgres.ProductRepository, products []seedProduct, categoryIDs map[string]int64) error {
	existing, err := repo.List(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, p := range existing {
		known[p.Name] = true
	}

	for _, p := range products {
		if known[p.Name] {
			slog.Info("skipping existing product", slog.String("name", p.Name))
			continue
		}
		if !stock.Validate(p.SizeStock) {
			return errors.Errorf("product %q: stock must hold non-negative integers", p.Name)
		}
		status := product.Status(p.Status)
		if status == "" {
			status = product.StatusActive
		}
		if !status.Valid() {
			return errors.Errorf("product %q: unknown status %q", p.Name, p.Status)
		}

		ids := make([]int64, 0, len(p.Categories))
		for _, name := range p.Categories {
			ids = append(ids, categoryIDs[name])
		}

		created, err := repo.Create(ctx, product.Fields{
			Name:        p.Name,
			Price:       p.Price,
			Description: p.Description,
			Images:      p.Images,
			Categories:  ids,
			SizeStock:   stock.Sanitize(p.SizeStock),
			Status:      status,
		})
		if err != nil {
			return errors.Wrapf(err, "create product %q", p.Name)
		}
		known[p.Name] = true
		slog.Info("created product", slog.String("id", created.ID), slog.String("name", created.Name))
	}
	return nil
}
