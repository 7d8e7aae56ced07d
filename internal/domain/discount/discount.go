// Package discount materializes reusable discount definitions into concrete,
// immutable amounts attached to a cart or a single cart line.
package discount

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/pagecraft/commerce/internal/domain/money"
)

// Type enumerates the supported discount strategies.
type Type string

const (
	// TypeFixed subtracts a fixed amount.
	TypeFixed Type = "fixed"
	// TypePercentage subtracts a percentage of the target's base amount.
	TypePercentage Type = "percentage"
)

var (
	// ErrNotFound is returned when a discount code does not exist or is inactive.
	ErrNotFound = errors.New("discount code not found")
	// ErrUsageLimitReached is returned when a definition has exhausted its uses.
	ErrUsageLimitReached = errors.New("discount usage limit reached")
)

// InvalidTypeError indicates a definition carries a type outside the closed
// set. This is a caller contract violation, not a default-to-zero case.
type InvalidTypeError struct {
	Type Type
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("invalid discount type %q", e.Type)
}

// Definition is immutable reference data describing a discount.
type Definition struct {
	ID      int64
	Code    string
	Title   string
	Type    Type
	Amount  decimal.Decimal
	MaxUses int
	Uses    int
}

// Exhausted reports whether the usage cap is reached. MaxUses of zero means
// unlimited.
func (d *Definition) Exhausted() bool {
	return d.MaxUses > 0 && d.Uses >= d.MaxUses
}

// Applied is a materialized discount attached to exactly one of a cart or a
// cart line item. Its amount is frozen at materialization time and never
// re-derived, even if conversion rates change later.
type Applied struct {
	ID           int64
	DefinitionID int64
	// CartID and CartItemID are mutually exclusive; the zero value means unset.
	CartID     int64
	CartItemID int64
	Amount     money.Pair
}

// Repository provides definition lookup and applied-discount persistence.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Definition, error)
	IncrementUses(ctx context.Context, id int64) error
	// Upsert inserts or replaces a definition by code. Used by ingest tooling.
	Upsert(ctx context.Context, def *Definition) error

	SaveApplied(ctx context.Context, a *Applied) error
	ListForCart(ctx context.Context, cartID int64) ([]Applied, error)
	ListForItems(ctx context.Context, cartItemIDs []int64) (map[int64][]Applied, error)
}
