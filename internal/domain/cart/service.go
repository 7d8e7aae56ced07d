package cart

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/pagecraft/commerce/internal/domain/address"
	"github.com/pagecraft/commerce/internal/domain/discount"
	"github.com/pagecraft/commerce/internal/domain/money"
	"github.com/pagecraft/commerce/internal/domain/product"
)

// Service exposes the cart operations the CMS and admin callers use. All
// collaborators are injected; nothing reaches for globals.
type Service struct {
	carts     Repository
	addresses address.Repository
	discounts discount.Repository
	products  *product.Registry
	converter money.Converter
	calc      *Calculator
}

// NewService wires a cart Service.
func NewService(
	carts Repository,
	addresses address.Repository,
	discounts discount.Repository,
	products *product.Registry,
	converter money.Converter,
	calc *Calculator,
) *Service {
	return &Service{
		carts:     carts,
		addresses: addresses,
		discounts: discounts,
		products:  products,
		converter: converter,
		calc:      calc,
	}
}

// Create opens an empty active cart for the given owner.
func (s *Service) Create(ctx context.Context, userID, websiteID int64, curr money.Currencies) (*Cart, error) {
	c := &Cart{
		UserID:     userID,
		WebsiteID:  websiteID,
		Active:     true,
		Currencies: curr,
		Totals:     ZeroTotals(),
	}
	if err := s.carts.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// AddProduct adds qty units of the referenced product to the cart, freezing
// the unit price in both currencies at add time. Adding a product already in
// the cart increments its quantity. Totals are recomputed before returning.
func (s *Service) AddProduct(ctx context.Context, cartID int64, ref product.Ref, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}

	items, err := s.carts.ListItems(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}

	var existing *Item
	for i := range items {
		if items[i].Product == ref {
			existing = &items[i]
			break
		}
	}

	if existing != nil {
		if err := s.carts.UpdateItemQty(ctx, existing.ID, existing.Qty+qty); err != nil {
			return nil, errors.Wrap(err, "update cart item quantity")
		}
		return s.Calculate(ctx, cartID)
	}

	p, err := s.products.Resolve(ctx, ref)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve product %s/%d", ref.Kind, ref.ID)
	}

	txnPrice := p.Price()
	adminPrice, err := s.converter.Convert(ctx, txnPrice, c.Currencies.Transaction, c.Currencies.Admin)
	if err != nil {
		return nil, errors.Wrap(err, "convert unit price")
	}

	item := &Item{
		CartID:    cartID,
		Product:   ref,
		Qty:       qty,
		UnitPrice: money.New(txnPrice, adminPrice.Round(2)),
	}
	if err := s.carts.AddItem(ctx, item); err != nil {
		return nil, errors.Wrap(err, "add cart item")
	}

	return s.Calculate(ctx, cartID)
}

// RemoveProduct deletes a cart item and recomputes totals.
func (s *Service) RemoveProduct(ctx context.Context, cartID, itemID int64) (*Cart, error) {
	if _, err := s.carts.GetItem(ctx, cartID, itemID); err != nil {
		return nil, err
	}
	if err := s.carts.DeleteItem(ctx, itemID); err != nil {
		return nil, errors.Wrap(err, "delete cart item")
	}
	return s.Calculate(ctx, cartID)
}

// GetCartItem returns one item of the cart.
func (s *Service) GetCartItem(ctx context.Context, cartID, itemID int64) (*Item, error) {
	return s.carts.GetItem(ctx, cartID, itemID)
}

// SetBillingAddress tags the address as the cart's billing address.
func (s *Service) SetBillingAddress(ctx context.Context, cartID, addressID int64) (*Cart, error) {
	return s.setAddress(ctx, cartID, addressID, address.TypeBilling)
}

// SetShippingAddress tags the address as the cart's shipping address.
func (s *Service) SetShippingAddress(ctx context.Context, cartID, addressID int64) (*Cart, error) {
	return s.setAddress(ctx, cartID, addressID, address.TypeShipping)
}

func (s *Service) setAddress(ctx context.Context, cartID, addressID int64, t address.Type) (*Cart, error) {
	if _, err := s.addresses.GetByID(ctx, addressID); err != nil {
		return nil, err
	}
	if err := s.carts.SetAddress(ctx, cartID, addressID, string(t)); err != nil {
		return nil, errors.Wrapf(err, "set %s address", t)
	}
	return s.Calculate(ctx, cartID)
}

// GetBillingAddress resolves the cart's billing address, or nil when unset.
func (s *Service) GetBillingAddress(ctx context.Context, c *Cart) (*address.Address, error) {
	if c.BillingAddressID == 0 {
		return nil, nil
	}
	return s.addresses.GetByID(ctx, c.BillingAddressID)
}

// ApplyCode materializes a cart-scoped discount from a promo code, enforcing
// the definition's usage cap. Totals are recomputed before returning.
func (s *Service) ApplyCode(ctx context.Context, cartID int64, code string) (*Cart, error) {
	def, err := s.discounts.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if def.Exhausted() {
		return nil, discount.ErrUsageLimitReached
	}

	loaded, err := s.FullLoad(ctx, cartID)
	if err != nil {
		return nil, err
	}

	subtotal := money.Zero()
	for _, item := range loaded.Items {
		subtotal = subtotal.Add(item.UnitPrice.MulInt(item.Qty))
	}

	applied, err := discount.MaterializeForCart(ctx, def, cartID, subtotal.Transaction, s.converter, loaded.Cart.Currencies)
	if err != nil {
		return nil, err
	}
	if err := s.discounts.SaveApplied(ctx, applied); err != nil {
		return nil, errors.Wrap(err, "save applied discount")
	}
	if err := s.discounts.IncrementUses(ctx, def.ID); err != nil {
		return nil, errors.Wrap(err, "increment discount uses")
	}

	return s.Calculate(ctx, cartID)
}

// ApplyCodeToItem materializes a line-scoped discount from a promo code.
func (s *Service) ApplyCodeToItem(ctx context.Context, cartID, itemID int64, code string) (*Cart, error) {
	def, err := s.discounts.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if def.Exhausted() {
		return nil, discount.ErrUsageLimitReached
	}

	item, err := s.carts.GetItem(ctx, cartID, itemID)
	if err != nil {
		return nil, err
	}
	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}

	applied, err := discount.MaterializeForLine(ctx, def, itemID, item.UnitPrice.Transaction, item.Qty, s.converter, c.Currencies)
	if err != nil {
		return nil, err
	}
	if err := s.discounts.SaveApplied(ctx, applied); err != nil {
		return nil, errors.Wrap(err, "save applied discount")
	}
	if err := s.discounts.IncrementUses(ctx, def.ID); err != nil {
		return nil, errors.Wrap(err, "increment discount uses")
	}

	return s.Calculate(ctx, cartID)
}

// FullLoad hydrates the cart with its items and all applied discounts in one
// pass, the shape the calculation pipeline consumes.
func (s *Service) FullLoad(ctx context.Context, cartID int64) (*Loaded, error) {
	c, err := s.carts.GetByID(ctx, cartID)
	if err != nil {
		return nil, err
	}

	items, err := s.carts.ListItems(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart items")
	}

	cartDiscounts, err := s.discounts.ListForCart(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart discounts")
	}

	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	itemDiscounts, err := s.discounts.ListForItems(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "list item discounts")
	}

	return &Loaded{
		Cart:          c,
		Items:         items,
		CartDiscounts: cartDiscounts,
		ItemDiscounts: itemDiscounts,
	}, nil
}

// Calculate recomputes the cart totals from its current state, persists
// them, and returns the cart carrying the fresh totals. Safe to call
// repeatedly.
func (s *Service) Calculate(ctx context.Context, cartID int64) (*Cart, error) {
	loaded, _, err := s.CalculateFull(ctx, cartID)
	if err != nil {
		return nil, err
	}
	return loaded.Cart, nil
}

// CalculateFull recomputes and persists the cart totals and additionally
// returns the hydrated cart and the per-item totals keyed by cart item id.
// The order factory snapshots from this shape.
func (s *Service) CalculateFull(ctx context.Context, cartID int64) (*Loaded, map[int64]ItemTotals, error) {
	loaded, err := s.FullLoad(ctx, cartID)
	if err != nil {
		return nil, nil, err
	}

	var billing *address.Address
	if loaded.Cart.BillingAddressID != 0 {
		billing, err = s.addresses.GetByID(ctx, loaded.Cart.BillingAddressID)
		if err != nil && !errors.Is(err, address.ErrNotFound) {
			return nil, nil, err
		}
	}

	totals, perItem, err := s.calc.Calculate(ctx, Input{
		Cart:          loaded.Cart,
		Items:         loaded.Items,
		CartDiscounts: toAmounts(loaded.CartDiscounts),
		ItemDiscounts: toAmountsByItem(loaded.ItemDiscounts),
		Billing:       billing,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.carts.SaveTotals(ctx, cartID, totals); err != nil {
		return nil, nil, errors.Wrap(err, "save cart totals")
	}

	loaded.Cart.Totals = totals
	return loaded, perItem, nil
}

// Deactivate marks the cart inactive once an order has been created from it.
// The cart itself is never deleted.
func (s *Service) Deactivate(ctx context.Context, cartID int64) error {
	return s.carts.SetActive(ctx, cartID, false)
}

// Address resolves an address book entry for snapshotting.
func (s *Service) Address(ctx context.Context, id int64) (*address.Address, error) {
	return s.addresses.GetByID(ctx, id)
}

func toAmounts(ds []discount.Applied) []AppliedAmount {
	out := make([]AppliedAmount, len(ds))
	for i, d := range ds {
		out[i] = AppliedAmount{Amount: d.Amount}
	}
	return out
}

func toAmountsByItem(m map[int64][]discount.Applied) map[int64][]AppliedAmount {
	out := make(map[int64][]AppliedAmount, len(m))
	for id, ds := range m {
		out[id] = toAmounts(ds)
	}
	return out
}
