package tax

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ruleKey struct {
	websiteID  int64
	taxClassID int64
	country    string
}

type mockTaxRepo struct {
	rules   map[ruleKey]decimal.Decimal
	findErr error
}

func (m *mockTaxRepo) Find(_ context.Context, websiteID, taxClassID int64, country string) (*Rate, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	pct, ok := m.rules[ruleKey{websiteID, taxClassID, country}]
	if !ok {
		return nil, ErrNoRate
	}
	return &Rate{WebsiteID: websiteID, TaxClassID: taxClassID, Country: country, Percent: pct}, nil
}

func (m *mockTaxRepo) Upsert(context.Context, *Rate) error { return nil }

func TestResolve_ExactMatchWins(t *testing.T) {
	repo := &mockTaxRepo{rules: map[ruleKey]decimal.Decimal{
		{1, 1, "DE"}:            decimal.NewFromInt(19),
		{1, 1, WildcardCountry}: decimal.NewFromInt(10),
	}}
	r := NewResolver(repo)

	rate, err := r.Resolve(context.Background(), 1, 1, "DE")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(19).Equal(rate))
}

func TestResolve_WildcardFallback(t *testing.T) {
	repo := &mockTaxRepo{rules: map[ruleKey]decimal.Decimal{
		{1, 1, WildcardCountry}: decimal.NewFromInt(10),
	}}
	r := NewResolver(repo)

	rate, err := r.Resolve(context.Background(), 1, 1, "FR")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(rate))
}

func TestResolve_NoMatchYieldsZero(t *testing.T) {
	r := NewResolver(&mockTaxRepo{rules: map[ruleKey]decimal.Decimal{}})

	rate, err := r.Resolve(context.Background(), 1, 1, "FR")
	require.NoError(t, err)
	assert.True(t, rate.IsZero())
}

func TestResolve_RepoErrorPropagates(t *testing.T) {
	r := NewResolver(&mockTaxRepo{findErr: errors.New("db down")})

	_, err := r.Resolve(context.Background(), 1, 1, "DE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
