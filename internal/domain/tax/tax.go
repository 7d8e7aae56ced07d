// Package tax resolves the tax rate applicable to a line item. Rates are
// keyed by website, tax class, and billing country, with a wildcard country
// rule as fallback.
package tax

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// WildcardCountry matches any country in a rate rule.
const WildcardCountry = "*"

// ErrNoRate is returned by Repository.Find when no rule matches exactly.
// The resolver treats it as "try the wildcard", never as a failure.
var ErrNoRate = errors.New("no tax rate")

// Rate is one tax rule.
type Rate struct {
	ID         int64
	WebsiteID  int64
	TaxClassID int64
	Country    string
	Percent    decimal.Decimal
}

// Repository provides exact rate lookup and rule maintenance.
type Repository interface {
	// Find returns the rate for the exact (website, taxClass, country)
	// triple, or ErrNoRate.
	Find(ctx context.Context, websiteID, taxClassID int64, country string) (*Rate, error)
	// Upsert inserts or replaces a rule. Used by seeding tools.
	Upsert(ctx context.Context, rate *Rate) error
}

// Resolver performs the two-step rate lookup.
type Resolver struct {
	repo Repository
}

// NewResolver returns a Resolver backed by repo.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the applicable percentage rate. An exact country match
// takes priority over the wildcard rule; absence of any match yields a zero
// rate, not an error.
func (r *Resolver) Resolve(ctx context.Context, websiteID, taxClassID int64, country string) (decimal.Decimal, error) {
	rate, err := r.repo.Find(ctx, websiteID, taxClassID, country)
	if err == nil {
		return rate.Percent, nil
	}
	if !errors.Is(err, ErrNoRate) {
		return decimal.Zero, errors.Wrap(err, "find tax rate")
	}

	rate, err = r.repo.Find(ctx, websiteID, taxClassID, WildcardCountry)
	if err == nil {
		return rate.Percent, nil
	}
	if !errors.Is(err, ErrNoRate) {
		return decimal.Zero, errors.Wrap(err, "find wildcard tax rate")
	}

	return decimal.Zero, nil
}
