package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pagecraft/commerce/internal/currency"
	"github.com/pagecraft/commerce/internal/domain/money"
)

var _ currency.RateSource = (*RateRepository)(nil)

// RateRepository reads and writes the currency rate table.
type RateRepository struct {
	pool *pgxpool.Pool
}

// NewRateRepository returns a RateRepository that uses the given pool.
func NewRateRepository(pool *pgxpool.Pool) *RateRepository {
	return &RateRepository{pool: pool}
}

// Rate returns the multiplier for a currency pair, or money.ErrNoRate.
func (r *RateRepository) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := r.pool.QueryRow(ctx,
		`SELECT rate FROM currency_rates WHERE from_code = $1 AND to_code = $2`,
		from, to,
	).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, money.ErrNoRate
		}
		return decimal.Zero, fmt.Errorf("getting currency rate: %w", err)
	}
	return rate, nil
}

const upsertRateSQL = `INSERT INTO currency_rates (from_code, to_code, rate, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (from_code, to_code) DO UPDATE SET rate = EXCLUDED.rate, updated_at = now()`

// SetRate inserts or replaces the rate of a pair. Used by seeding tools.
func (r *RateRepository) SetRate(ctx context.Context, from, to string, rate decimal.Decimal) error {
	if _, err := r.pool.Exec(ctx, upsertRateSQL, from, to, rate); err != nil {
		return fmt.Errorf("upserting currency rate: %w", err)
	}
	return nil
}
