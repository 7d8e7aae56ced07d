// Package currency implements money.Converter over a persisted rate table.
package currency

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pagecraft/commerce/internal/domain/money"
)

// RateSource looks up the multiplier for a currency pair. It returns
// money.ErrNoRate when the pair has no rate.
type RateSource interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// Converter converts amounts through a RateSource. Same-currency conversion
// is the identity and never hits the source.
type Converter struct {
	rates RateSource
}

var _ money.Converter = (*Converter)(nil)

// NewConverter returns a Converter over the given source.
func NewConverter(rates RateSource) *Converter {
	return &Converter{rates: rates}
}

// Convert multiplies amount by the pair's rate. A missing rate is an error;
// there is no fallback.
func (c *Converter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	rate, err := c.rates.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("converting %s to %s: %w", from, to, err)
	}
	return amount.Mul(rate), nil
}
