// Package cart owns the mutable basket aggregate and its calculation
// pipeline. Totals are never trusted as stale: every mutation path goes
// through a full recomputation from the current line items and discounts.
package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/pagecraft/commerce/internal/domain/discount"
	"github.com/pagecraft/commerce/internal/domain/money"
	"github.com/pagecraft/commerce/internal/domain/product"
)

var (
	// ErrNotFound is returned when a cart id does not exist.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when a cart item id does not exist in the cart.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Totals is the computed money summary of a cart, per currency.
// Invariant: Grand = Subtotal + Discount + Tax + Shipping, with Discount ≤ 0.
type Totals struct {
	Subtotal money.Pair
	Discount money.Pair
	Tax      money.Pair
	Shipping money.Pair
	Grand    money.Pair
}

// ZeroTotals returns an all-zero totals value.
func ZeroTotals() Totals {
	return Totals{
		Subtotal: money.Zero(),
		Discount: money.Zero(),
		Tax:      money.Zero(),
		Shipping: money.Zero(),
		Grand:    money.Zero(),
	}
}

// ItemTotals is the computed money summary of a single line item.
type ItemTotals struct {
	Subtotal money.Pair
	Discount money.Pair
	Tax      money.Pair
	Total    money.Pair
}

// Cart is the basket aggregate. Ownership edges are id-typed fields resolved
// through repositories, never embedded live references.
type Cart struct {
	ID                int64
	UserID            int64
	WebsiteID         int64
	Active            bool
	Currencies        money.Currencies
	BillingAddressID  int64
	ShippingAddressID int64
	Totals            Totals
}

// Item is one product quantity association within a cart. The unit price is
// frozen in both currencies when the product is added.
type Item struct {
	ID        int64
	CartID    int64
	Product   product.Ref
	Qty       int
	UnitPrice money.Pair
}

// Loaded is a fully hydrated cart: items and all applied discounts fetched
// eagerly, keyed for the calculation pipeline.
type Loaded struct {
	Cart          *Cart
	Items         []Item
	CartDiscounts []discount.Applied
	// ItemDiscounts maps cart item id to its line-scoped discounts.
	ItemDiscounts map[int64][]discount.Applied
}

// Repository provides cart and cart item persistence.
type Repository interface {
	Create(ctx context.Context, c *Cart) error
	GetByID(ctx context.Context, id int64) (*Cart, error)
	SetAddress(ctx context.Context, cartID, addressID int64, addressType string) error
	SaveTotals(ctx context.Context, cartID int64, t Totals) error
	SetActive(ctx context.Context, cartID int64, active bool) error

	AddItem(ctx context.Context, item *Item) error
	UpdateItemQty(ctx context.Context, itemID int64, qty int) error
	GetItem(ctx context.Context, cartID, itemID int64) (*Item, error)
	ListItems(ctx context.Context, cartID int64) ([]Item, error)
	// DeleteItem removes the item together with its line-scoped discounts.
	DeleteItem(ctx context.Context, itemID int64) error
}
