// Command seed-db loads a development catalog: products of every kind, tax
// rate rules, and currency conversion rates.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/pagecraft/commerce/internal/domain/product"
	"github.com/pagecraft/commerce/internal/domain/tax"
	"github.com/pagecraft/commerce/internal/postgres"
)

type productJSON struct {
	ID       int64           `json:"id"`
	Kind     string          `json:"kind"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	TaxClass int64           `json:"tax_class_id"`
	Physical bool            `json:"is_physical"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
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

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedTaxRates(ctx, postgres.NewTaxRepository(pool)); err != nil {
		return errors.Wrap(err, "seed tax rates")
	}

	if err := seedCurrencyRates(ctx, postgres.NewRateRepository(pool)); err != nil {
		return errors.Wrap(err, "seed currency rates")
	}

	return nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, &product.Row{
			ID:        p.ID,
			Kind:      product.Kind(p.Kind),
			Name:      p.Name,
			UnitPrice: p.Price,
			TaxClass:  p.TaxClass,
			Physical:  p.Physical,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %d", p.ID)
		}

		slog.Info("upserted product",
			slog.Int64("id", p.ID),
			slog.String("kind", p.Kind),
			slog.String("name", p.Name),
		)
	}

	return nil
}

func seedTaxRates(ctx context.Context, repo *postgres.TaxRepository) error {
	slog.Info("seeding tax rates")

	rates := []tax.Rate{
		{WebsiteID: 1, TaxClassID: 1, Country: "US", Percent: decimal.NewFromFloat(8.25)},
		{WebsiteID: 1, TaxClassID: 1, Country: "DE", Percent: decimal.NewFromInt(19)},
		{WebsiteID: 1, TaxClassID: 1, Country: tax.WildcardCountry, Percent: decimal.NewFromInt(10)},
		{WebsiteID: 1, TaxClassID: 2, Country: tax.WildcardCountry, Percent: decimal.Zero},
	}

	for i := range rates {
		if err := repo.Upsert(ctx, &rates[i]); err != nil {
			return errors.Wrapf(err, "upsert tax rate for %s", rates[i].Country)
		}
	}

	return nil
}

func seedCurrencyRates(ctx context.Context, repo *postgres.RateRepository) error {
	slog.Info("seeding currency rates")

	pairs := []struct {
		from, to string
		rate     decimal.Decimal
	}{
		{"EUR", "USD", decimal.NewFromFloat(1.08)},
		{"USD", "EUR", decimal.NewFromFloat(0.93)},
		{"GBP", "USD", decimal.NewFromFloat(1.27)},
		{"USD", "GBP", decimal.NewFromFloat(0.79)},
	}

	for _, p := range pairs {
		if err := repo.SetRate(ctx, p.from, p.to, p.rate); err != nil {
			return errors.Wrapf(err, "set rate %s/%s", p.from, p.to)
		}
	}

	return nil
}
