// Package money holds the dual-currency amount primitives shared by every
// priced aggregate. Each monetary field is carried in the transaction
// currency (customer-facing) and the admin currency (back-office reporting),
// summed independently and never derived from each other after the fact.
package money

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNoRate is returned by converters that have no rate for a currency pair.
var ErrNoRate = errors.New("no conversion rate for currency pair")

// Converter converts an amount between two currency codes. Conversion
// failures have no fallback and are fatal to the calculation step that
// needs them.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// Currencies names the two currency codes an aggregate is priced in.
type Currencies struct {
	Transaction string
	Admin       string
}

// Pair is one monetary value in both currencies.
type Pair struct {
	Transaction decimal.Decimal
	Admin       decimal.Decimal
}

// Zero returns a zero pair.
func Zero() Pair {
	return Pair{Transaction: decimal.Zero, Admin: decimal.Zero}
}

// New builds a pair from the two amounts.
func New(txn, admin decimal.Decimal) Pair {
	return Pair{Transaction: txn, Admin: admin}
}

// Add sums two pairs per currency.
func (p Pair) Add(o Pair) Pair {
	return Pair{
		Transaction: p.Transaction.Add(o.Transaction),
		Admin:       p.Admin.Add(o.Admin),
	}
}

// Sub subtracts o from p per currency.
func (p Pair) Sub(o Pair) Pair {
	return Pair{
		Transaction: p.Transaction.Sub(o.Transaction),
		Admin:       p.Admin.Sub(o.Admin),
	}
}

// Neg negates both amounts.
func (p Pair) Neg() Pair {
	return Pair{Transaction: p.Transaction.Neg(), Admin: p.Admin.Neg()}
}

// Abs returns the absolute value of both amounts.
func (p Pair) Abs() Pair {
	return Pair{Transaction: p.Transaction.Abs(), Admin: p.Admin.Abs()}
}

// MulInt scales both amounts by an integer quantity.
func (p Pair) MulInt(n int) Pair {
	q := decimal.NewFromInt(int64(n))
	return Pair{Transaction: p.Transaction.Mul(q), Admin: p.Admin.Mul(q)}
}

// Round rounds both amounts to the given number of decimal places.
func (p Pair) Round(places int32) Pair {
	return Pair{Transaction: p.Transaction.Round(places), Admin: p.Admin.Round(places)}
}

// IsZero reports whether both amounts are zero.
func (p Pair) IsZero() bool {
	return p.Transaction.IsZero() && p.Admin.IsZero()
}

// Equal reports amount equality per currency.
func (p Pair) Equal(o Pair) bool {
	return p.Transaction.Equal(o.Transaction) && p.Admin.Equal(o.Admin)
}
