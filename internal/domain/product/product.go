// Package product defines the capability interface priced aggregates use to
// reach a product, and the closed set of product kinds a cart or order line
// can reference.
package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a product reference cannot be resolved.
var ErrNotFound = errors.New("product not found")

// Kind tags the product variant a Ref points at. The set is closed; new
// kinds require a registry entry.
type Kind string

const (
	// KindGoods is a physical product that requires shipping and stock.
	KindGoods Kind = "goods"
	// KindDigital is a downloadable product with no shipping.
	KindDigital Kind = "digital"
	// KindGiftCard is a non-physical product redeemable into store credit.
	KindGiftCard Kind = "giftcard"
)

// Ref is the polymorphic product reference stored on cart and order items.
type Ref struct {
	Kind Kind
	ID   int64
}

// Product is the capability surface the pricing pipeline needs. Everything
// else about a product is out of scope for this core.
type Product interface {
	Price() decimal.Decimal
	TaxClassID() int64
	IsPhysical() bool
}

// Loader resolves one product kind by id.
type Loader func(ctx context.Context, id int64) (Product, error)

// Registry dispatches a Ref to the Loader registered for its kind.
type Registry struct {
	loaders map[Kind]Loader
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{loaders: make(map[Kind]Loader)}
}

// Register binds a kind to its loader, replacing any previous binding.
func (r *Registry) Register(kind Kind, load Loader) {
	r.loaders[kind] = load
}

// Resolve loads the product behind ref. An unregistered kind resolves to
// ErrNotFound so callers can degrade the same way as for a missing row.
func (r *Registry) Resolve(ctx context.Context, ref Ref) (Product, error) {
	load, ok := r.loaders[ref.Kind]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "unregistered product kind %q", ref.Kind)
	}
	return load(ctx, ref.ID)
}

// Row is a catalog row. It implements Product directly; the gift-card and
// digital kinds differ from goods only in physicality.
type Row struct {
	ID        int64
	Kind      Kind
	Name      string
	UnitPrice decimal.Decimal
	TaxClass  int64
	Physical  bool
}

// Price implements Product.
func (r *Row) Price() decimal.Decimal { return r.UnitPrice }

// TaxClassID implements Product.
func (r *Row) TaxClassID() int64 { return r.TaxClass }

// IsPhysical implements Product.
func (r *Row) IsPhysical() bool { return r.Physical }

// Repository provides catalog row lookup per kind.
type Repository interface {
	// GetByID returns the row with the given id and kind, or ErrNotFound.
	GetByID(ctx context.Context, kind Kind, id int64) (*Row, error)
	// Upsert inserts or updates a catalog row. Used by seeding tools.
	Upsert(ctx context.Context, row *Row) error
}

// RegisterRepository binds the standard kinds to loaders backed by repo.
func RegisterRepository(reg *Registry, repo Repository) {
	for _, kind := range []Kind{KindGoods, KindDigital, KindGiftCard} {
		reg.Register(kind, func(ctx context.Context, id int64) (Product, error) {
			row, err := repo.GetByID(ctx, kind, id)
			if err != nil {
				return nil, err
			}
			return row, nil
		})
	}
}
