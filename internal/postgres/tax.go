package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagecraft/commerce/internal/domain/tax"
)

var _ tax.Repository = (*TaxRepository)(nil)

// TaxRepository implements tax.Repository backed by PostgreSQL.
type TaxRepository struct {
	pool *pgxpool.Pool
}

// NewTaxRepository returns a TaxRepository that uses the given pool.
func NewTaxRepository(pool *pgxpool.Pool) *TaxRepository {
	return &TaxRepository{pool: pool}
}

const findTaxRateSQL = `SELECT id, website_id, tax_class_id, country, percent
	FROM tax_rates WHERE website_id = $1 AND tax_class_id = $2 AND country = $3`

// Find returns the rate for the exact triple, or tax.ErrNoRate. The wildcard
// fallback is the resolver's job, not the repository's.
func (r *TaxRepository) Find(ctx context.Context, websiteID, taxClassID int64, country string) (*tax.Rate, error) {
	rate := &tax.Rate{}
	err := r.pool.QueryRow(ctx, findTaxRateSQL, websiteID, taxClassID, country).Scan(
		&rate.ID, &rate.WebsiteID, &rate.TaxClassID, &rate.Country, &rate.Percent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tax.ErrNoRate
		}
		return nil, fmt.Errorf("finding tax rate: %w", err)
	}
	return rate, nil
}

const upsertTaxRateSQL = `INSERT INTO tax_rates (website_id, tax_class_id, country, percent)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (website_id, tax_class_id, country) DO UPDATE SET percent = EXCLUDED.percent
	RETURNING id`

// Upsert inserts or replaces a rate rule.
func (r *TaxRepository) Upsert(ctx context.Context, rate *tax.Rate) error {
	err := r.pool.QueryRow(ctx, upsertTaxRateSQL,
		rate.WebsiteID, rate.TaxClassID, rate.Country, rate.Percent,
	).Scan(&rate.ID)
	if err != nil {
		return fmt.Errorf("upserting tax rate: %w", err)
	}
	return nil
}
