package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagecraft/commerce/internal/domain/address"
	"github.com/pagecraft/commerce/internal/domain/discount"
	"github.com/pagecraft/commerce/internal/domain/money"
	"github.com/pagecraft/commerce/internal/domain/product"
	"github.com/pagecraft/commerce/internal/domain/tax"
)

// --- Mock implementations ---

type mockCartRepo struct {
	nextID int64
	carts  map[int64]*Cart
	items  map[int64]*Item
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[int64]*Cart), items: make(map[int64]*Item)}
}

func (m *mockCartRepo) Create(_ context.Context, c *Cart) error {
	m.nextID++
	c.ID = m.nextID
	cp := *c
	m.carts[c.ID] = &cp
	return nil
}

func (m *mockCartRepo) GetByID(_ context.Context, id int64) (*Cart, error) {
	c, ok := m.carts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCartRepo) SetAddress(_ context.Context, cartID, addressID int64, addressType string) error {
	c, ok := m.carts[cartID]
	if !ok {
		return ErrNotFound
	}
	if addressType == "billing" {
		c.BillingAddressID = addressID
	} else {
		c.ShippingAddressID = addressID
	}
	return nil
}

func (m *mockCartRepo) SaveTotals(_ context.Context, cartID int64, t Totals) error {
	c, ok := m.carts[cartID]
	if !ok {
		return ErrNotFound
	}
	c.Totals = t
	return nil
}

func (m *mockCartRepo) SetActive(_ context.Context, cartID int64, active bool) error {
	c, ok := m.carts[cartID]
	if !ok {
		return ErrNotFound
	}
	c.Active = active
	return nil
}

func (m *mockCartRepo) AddItem(_ context.Context, item *Item) error {
	m.nextID++
	item.ID = m.nextID
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *mockCartRepo) UpdateItemQty(_ context.Context, itemID int64, qty int) error {
	item, ok := m.items[itemID]
	if !ok {
		return ErrItemNotFound
	}
	item.Qty = qty
	return nil
}

func (m *mockCartRepo) GetItem(_ context.Context, cartID, itemID int64) (*Item, error) {
	item, ok := m.items[itemID]
	if !ok || item.CartID != cartID {
		return nil, ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *mockCartRepo) ListItems(_ context.Context, cartID int64) ([]Item, error) {
	var out []Item
	for id := int64(1); id <= m.nextID; id++ {
		if item, ok := m.items[id]; ok && item.CartID == cartID {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (m *mockCartRepo) DeleteItem(_ context.Context, itemID int64) error {
	if _, ok := m.items[itemID]; !ok {
		return ErrItemNotFound
	}
	delete(m.items, itemID)
	return nil
}

type mockAddressRepo struct {
	byID map[int64]*address.Address
}

func (m *mockAddressRepo) GetByID(_ context.Context, id int64) (*address.Address, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, address.ErrNotFound
	}
	return a, nil
}

func (m *mockAddressRepo) Save(context.Context, *address.Address) error { return nil }

type mockDiscountRepo struct {
	defs    map[string]*discount.Definition
	applied []discount.Applied
	uses    map[int64]int
}

func newMockDiscountRepo(defs ...*discount.Definition) *mockDiscountRepo {
	byCode := make(map[string]*discount.Definition, len(defs))
	for _, d := range defs {
		byCode[d.Code] = d
	}
	return &mockDiscountRepo{defs: byCode, uses: make(map[int64]int)}
}

func (m *mockDiscountRepo) FindByCode(_ context.Context, code string) (*discount.Definition, error) {
	d, ok := m.defs[code]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return d, nil
}

func (m *mockDiscountRepo) IncrementUses(_ context.Context, id int64) error {
	m.uses[id]++
	return nil
}

func (m *mockDiscountRepo) Upsert(context.Context, *discount.Definition) error { return nil }

func (m *mockDiscountRepo) SaveApplied(_ context.Context, a *discount.Applied) error {
	a.ID = int64(len(m.applied) + 1)
	m.applied = append(m.applied, *a)
	return nil
}

func (m *mockDiscountRepo) ListForCart(_ context.Context, cartID int64) ([]discount.Applied, error) {
	var out []discount.Applied
	for _, a := range m.applied {
		if a.CartID == cartID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockDiscountRepo) ListForItems(_ context.Context, ids []int64) (map[int64][]discount.Applied, error) {
	out := make(map[int64][]discount.Applied)
	for _, a := range m.applied {
		for _, id := range ids {
			if a.CartItemID == id {
				out[id] = append(out[id], a)
			}
		}
	}
	return out, nil
}

// rateConverter multiplies by a fixed rate for differing currencies.
type rateConverter struct {
	rate decimal.Decimal
}

func (c rateConverter) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	return amount.Mul(c.rate), nil
}

// --- Helpers ---

type fixture struct {
	svc   *Service
	carts *mockCartRepo
	disc  *mockDiscountRepo
}

func newFixture(t *testing.T, defs ...*discount.Definition) *fixture {
	t.Helper()

	reg := newRegistry(
		&product.Row{ID: 10, Kind: product.KindGoods, Name: "Widget", UnitPrice: decimal.RequireFromString("10.00"), TaxClass: 1, Physical: true},
		&product.Row{ID: 20, Kind: product.KindDigital, Name: "Download", UnitPrice: decimal.RequireFromString("5.00")},
	)
	conv := rateConverter{rate: decimal.RequireFromString("0.93")}
	carts := newMockCartRepo()
	disc := newMockDiscountRepo(defs...)
	addrs := &mockAddressRepo{byID: map[int64]*address.Address{
		5: {ID: 5, Country: "DE", Street: "Unter den Linden 1", City: "Berlin"},
	}}
	calc := NewCalculator(reg, tax.NewResolver(&mockTaxRepo{}), nil)

	return &fixture{
		svc:   NewService(carts, addrs, disc, reg, conv, calc),
		carts: carts,
		disc:  disc,
	}
}

func (f *fixture) newCart(t *testing.T) *Cart {
	t.Helper()
	c, err := f.svc.Create(context.Background(), 7, 1, money.Currencies{Transaction: "USD", Admin: "EUR"})
	require.NoError(t, err)
	return c
}

// --- Tests ---

func TestAddProduct_InvalidQuantity(t *testing.T) {
	f := newFixture(t)
	c := f.newCart(t)

	_, err := f.svc.AddProduct(context.Background(), c.ID, product.Ref{Kind: product.KindGoods, ID: 10}, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddProduct_FreezesUnitPriceInBothCurrencies(t *testing.T) {
	f := newFixture(t)
	c := f.newCart(t)

	updated, err := f.svc.AddProduct(context.Background(), c.ID, product.Ref{Kind: product.KindGoods, ID: 10}, 2)
	require.NoError(t, err)

	items, err := f.carts.ListItems(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, decimal.RequireFromString("10.00").Equal(items[0].UnitPrice.Transaction))
	assert.True(t, decimal.RequireFromString("9.30").Equal(items[0].UnitPrice.Admin))

	assert.True(t, pair("20.00", "18.60").Equal(updated.Totals.Subtotal))
	assert.True(t, updated.Totals.Subtotal.Equal(updated.Totals.Grand))
}

func TestAddProduct_MergesExistingLine(t *testing.T) {
	f := newFixture(t)
	c := f.newCart(t)
	ref := product.Ref{Kind: product.KindGoods, ID: 10}

	_, err := f.svc.AddProduct(context.Background(), c.ID, ref, 1)
	require.NoError(t, err)
	updated, err := f.svc.AddProduct(context.Background(), c.ID, ref, 2)
	require.NoError(t, err)

	items, err := f.carts.ListItems(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Qty)
	assert.True(t, pair("30.00", "27.90").Equal(updated.Totals.Subtotal))
}

func TestAddProduct_UnknownProduct(t *testing.T) {
	f := newFixture(t)
	c := f.newCart(t)

	_, err := f.svc.AddProduct(context.Background(), c.ID, product.Ref{Kind: product.KindGoods, ID: 999}, 1)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestRemoveProduct_Recalculates(t *testing.T) {
	f := newFixture(t)
	c := f.newCart(t)

	_, err := f.svc.AddProduct(context.Background(), c.ID, product.Ref{Kind: product.KindGoods, ID: 10}, 1)
	require.NoError(t, err)
	updated, err := f.svc.AddProduct(context.Background(), c.ID, product.Ref{Kind: product.KindDigital, ID: 20}, 1)
	require.NoError(t, err)
	assert.True(t, pair("15.00", "13.95").Equal(updated.Totals.Subtotal))

	items, err := f.carts.ListItems(context.Background(), c.ID)
	require.NoError(t, err)
	updated, err = f.svc.RemoveProduct(context.Background(), c.ID, items[0].ID)
	require.NoError(t, err)
	assert.True(t, pair("5.00", "4.65").Equal(updated.Totals.Subtotal))
}

func TestApplyCode_MaterializesCartDiscount(t *testing.T) {
	f := newFixture(t, &discount.Definition{
		ID: 1, Code: "TENOFF", Type: discount.TypePercentage, Amount: decimal.NewFromInt(10),
	})
	c := f.newCart(t)

	_, err := f.svc.AddProduct(context.Background(), c.ID, product.Ref{Kind: product.KindGoods, ID: 10}, 2)
	require.NoError(t, err)

	updated, err := f.svc.ApplyCode(context.Background(), c.ID, "TENOFF")
	require.NoError(t, err)

	// 10% of the 20.00 subtotal, frozen once in both currencies.
	require.Len(t, f.disc.applied, 1)
	assert.True(t, decimal.RequireFromString("2.00").Equal(f.disc.applied[0].Amount.Transaction))
	assert.True(t, decimal.RequireFromString("1.86").Equal(f.disc.applied[0].Amount.Admin))
	assert.Equal(t, 1, f.disc.uses[1])

	assert.True(t, pair("-2.00", "-1.86").Equal(updated.Totals.Discount))
	assert.True(t, pair("18.00", "16.74").Equal(updated.Totals.Grand))
}

func TestApplyCode_UsageLimitReached(t *testing.T) {
	f := newFixture(t, &discount.Definition{
		ID: 1, Code: "CAPPED", Type: discount.TypeFixed, Amount: decimal.NewFromInt(5), MaxUses: 3, Uses: 3,
	})
	c := f.newCart(t)

	_, err := f.svc.ApplyCode(context.Background(), c.ID, "CAPPED")
	require.ErrorIs(t, err, discount.ErrUsageLimitReached)
	assert.Empty(t, f.disc.applied)
}

func TestApplyCode_UnknownCode(t *testing.T) {
	f := newFixture(t)
	c := f.newCart(t)

	_, err := f.svc.ApplyCode(context.Background(), c.ID, "NOPE")
	require.ErrorIs(t, err, discount.ErrNotFound)
}

func TestApplyCodeToItem_ScalesWithQuantity(t *testing.T) {
	f := newFixture(t, &discount.Definition{
		ID: 2, Code: "LINE10", Type: discount.TypePercentage, Amount: decimal.NewFromInt(10),
	})
	c := f.newCart(t)

	_, err := f.svc.AddProduct(context.Background(), c.ID, product.Ref{Kind: product.KindGoods, ID: 10}, 3)
	require.NoError(t, err)
	items, err := f.carts.ListItems(context.Background(), c.ID)
	require.NoError(t, err)

	updated, err := f.svc.ApplyCodeToItem(context.Background(), c.ID, items[0].ID, "LINE10")
	require.NoError(t, err)

	// 10% of 10.00 × 3 units: 3.00 off the line.
	require.Len(t, f.disc.applied, 1)
	assert.Equal(t, items[0].ID, f.disc.applied[0].CartItemID)
	assert.True(t, decimal.RequireFromString("3.00").Equal(f.disc.applied[0].Amount.Transaction))
	assert.True(t, pair("-3.00", "-2.79").Equal(updated.Totals.Discount))
}

func TestSetBillingAddress_UnknownAddress(t *testing.T) {
	f := newFixture(t)
	c := f.newCart(t)

	_, err := f.svc.SetBillingAddress(context.Background(), c.ID, 999)
	require.ErrorIs(t, err, address.ErrNotFound)
}

func TestDeactivate(t *testing.T) {
	f := newFixture(t)
	c := f.newCart(t)

	require.NoError(t, f.svc.Deactivate(context.Background(), c.ID))
	got, err := f.carts.GetByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}
