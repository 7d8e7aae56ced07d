package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/pagecraft/commerce/internal/domain/address"
	"github.com/pagecraft/commerce/internal/domain/money"
	"github.com/pagecraft/commerce/internal/domain/product"
	"github.com/pagecraft/commerce/internal/domain/tax"
)

var hundred = decimal.NewFromInt(100)

// ShippingRater computes a shipping amount for a cart that requires physical
// delivery. Carrier integrations plug in here; the core only fixes when
// shipping is zero versus required.
type ShippingRater interface {
	Rate(ctx context.Context, c *Cart, items []Item) (money.Pair, error)
}

// NoShipping is the default rater: shipping owed, amount zero.
type NoShipping struct{}

// Rate implements ShippingRater.
func (NoShipping) Rate(context.Context, *Cart, []Item) (money.Pair, error) {
	return money.Zero(), nil
}

// Calculator re-derives cart totals from current line items and discounts.
// It returns new values and never mutates its inputs.
type Calculator struct {
	products *product.Registry
	taxes    *tax.Resolver
	shipping ShippingRater
}

// NewCalculator wires the calculation pipeline. A nil rater defaults to
// NoShipping.
func NewCalculator(products *product.Registry, taxes *tax.Resolver, shipping ShippingRater) *Calculator {
	if shipping == nil {
		shipping = NoShipping{}
	}
	return &Calculator{products: products, taxes: taxes, shipping: shipping}
}

// Input carries everything one calculation run reads. Billing may be nil;
// absent data degrades to zero contributions, never to an error.
type Input struct {
	Cart          *Cart
	Items         []Item
	CartDiscounts []AppliedAmount
	// ItemDiscounts maps cart item id to its line-scoped discount amounts.
	ItemDiscounts map[int64][]AppliedAmount
	Billing       *address.Address
}

// AppliedAmount is the money view of an applied discount the pipeline folds.
type AppliedAmount struct {
	Amount money.Pair
}

// Calculate runs the pipeline and returns the cart totals plus per-item
// totals keyed by cart item id. It is idempotent: calling it twice over the
// same input yields identical results.
func (c *Calculator) Calculate(ctx context.Context, in Input) (Totals, map[int64]ItemTotals, error) {
	totals := ZeroTotals()
	perItem := make(map[int64]ItemTotals, len(in.Items))

	// Cart-level discounts reduce the total regardless of stored sign.
	for _, d := range in.CartDiscounts {
		totals.Discount = totals.Discount.Sub(d.Amount.Abs())
	}

	country := ""
	if in.Billing != nil {
		country = in.Billing.Country
	}

	requiresShipping := false
	for _, item := range in.Items {
		it, physical, err := c.calculateItem(ctx, in.Cart, item, in.ItemDiscounts[item.ID], country)
		if err != nil {
			return Totals{}, nil, err
		}
		perItem[item.ID] = it
		requiresShipping = requiresShipping || physical

		totals.Subtotal = totals.Subtotal.Add(it.Subtotal)
		totals.Discount = totals.Discount.Add(it.Discount)
		totals.Tax = totals.Tax.Add(it.Tax)
	}

	// Shipping is zero unless some item is physical and a shipping address
	// is set.
	if requiresShipping && in.Cart.ShippingAddressID != 0 {
		amount, err := c.shipping.Rate(ctx, in.Cart, in.Items)
		if err != nil {
			return Totals{}, nil, errors.Wrap(err, "rate shipping")
		}
		totals.Shipping = amount
	}

	totals.Grand = totals.Subtotal.
		Add(totals.Discount).
		Add(totals.Tax).
		Add(totals.Shipping)

	return totals, perItem, nil
}

// calculateItem computes one line: subtotal = unit price × qty, discount as
// the negative sum of its applied discounts, tax from the billing country.
// The second return reports whether the line requires physical shipping.
func (c *Calculator) calculateItem(
	ctx context.Context,
	cart *Cart,
	item Item,
	discounts []AppliedAmount,
	billingCountry string,
) (ItemTotals, bool, error) {
	it := ItemTotals{
		Subtotal: item.UnitPrice.MulInt(item.Qty),
		Discount: money.Zero(),
		Tax:      money.Zero(),
	}

	for _, d := range discounts {
		it.Discount = it.Discount.Sub(d.Amount.Abs())
	}

	// An unresolvable product contributes no tax and no shipping requirement.
	p, err := c.products.Resolve(ctx, item.Product)
	switch {
	case errors.Is(err, product.ErrNotFound):
		p = nil
	case err != nil:
		return ItemTotals{}, false, errors.Wrapf(err, "resolve product %s/%d", item.Product.Kind, item.Product.ID)
	}

	if p != nil && billingCountry != "" {
		rate, err := c.taxes.Resolve(ctx, cart.WebsiteID, p.TaxClassID(), billingCountry)
		if err != nil {
			return ItemTotals{}, false, err
		}
		if !rate.IsZero() {
			factor := rate.Div(hundred)
			it.Tax = money.New(
				item.UnitPrice.Transaction.Mul(factor),
				item.UnitPrice.Admin.Mul(factor),
			).MulInt(item.Qty).Round(2)
		}
	}

	it.Total = it.Subtotal.Add(it.Discount).Add(it.Tax)

	physical := p != nil && p.IsPhysical()
	return it, physical, nil
}
