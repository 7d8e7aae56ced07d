package credit

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagecraft/commerce/internal/domain/money"
	"github.com/pagecraft/commerce/internal/domain/order"
	"github.com/pagecraft/commerce/internal/domain/product"
)

// --- Mock implementations ---

type ownerKey struct {
	userID    int64
	websiteID int64
}

type memCreditRepo struct {
	nextID   int64
	accounts map[ownerKey]*StoreCredit
	txs      map[int64][]Transaction
}

func newMemCreditRepo() *memCreditRepo {
	return &memCreditRepo{accounts: make(map[ownerKey]*StoreCredit), txs: make(map[int64][]Transaction)}
}

func (m *memCreditRepo) GetByOwner(_ context.Context, userID, websiteID int64) (*StoreCredit, error) {
	sc, ok := m.accounts[ownerKey{userID, websiteID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

func (m *memCreditRepo) Create(_ context.Context, sc *StoreCredit) error {
	m.nextID++
	sc.ID = m.nextID
	cp := *sc
	m.accounts[ownerKey{sc.UserID, sc.WebsiteID}] = &cp
	return nil
}

func (m *memCreditRepo) Apply(_ context.Context, creditID int64, t *Transaction) error {
	var sc *StoreCredit
	for _, acc := range m.accounts {
		if acc.ID == creditID {
			sc = acc
			break
		}
	}
	if sc == nil {
		return ErrNotFound
	}
	next := sc.Balance.Add(t.Amount)
	if next.IsNegative() {
		return ErrInsufficientCredit
	}
	sc.Balance = next
	m.nextID++
	t.ID = m.nextID
	t.CreditID = creditID
	m.txs[creditID] = append(m.txs[creditID], *t)
	return nil
}

func (m *memCreditRepo) ListTransactions(_ context.Context, creditID int64) ([]Transaction, error) {
	return append([]Transaction(nil), m.txs[creditID]...), nil
}

type stubOrderItems struct {
	byID map[int64]*order.Item
}

func (s *stubOrderItems) GetItem(_ context.Context, id int64) (*order.Item, error) {
	item, ok := s.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return item, nil
}

// --- Helpers ---

func giftCardItem(id int64, total string) *order.Item {
	return &order.Item{
		ID:      id,
		Product: product.Ref{Kind: product.KindGiftCard, ID: 30},
		Qty:     1,
		Total:   money.New(decimal.RequireFromString(total), decimal.RequireFromString(total)),
	}
}

func testOrder() *order.Order {
	return &order.Order{
		ID:         1,
		UserID:     7,
		WebsiteID:  1,
		Currencies: money.Currencies{Transaction: "USD", Admin: "USD"},
	}
}

// --- Tests ---

func TestMakeTransaction_CreditThenDebit(t *testing.T) {
	repo := newMemCreditRepo()
	svc := NewService(repo, &stubOrderItems{})
	ctx := context.Background()

	_, err := svc.MakeTransaction(ctx, 7, 1, decimal.RequireFromString("50.00"), "USD", "refund")
	require.NoError(t, err)

	_, err = svc.MakeTransaction(ctx, 7, 1, decimal.RequireFromString("-20.00"), "USD", "order payment")
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("30.00").Equal(balance))
}

func TestMakeTransaction_InsufficientCredit(t *testing.T) {
	repo := newMemCreditRepo()
	svc := NewService(repo, &stubOrderItems{})
	ctx := context.Background()

	_, err := svc.MakeTransaction(ctx, 7, 1, decimal.NewFromInt(10), "USD", "gift")
	require.NoError(t, err)

	_, err = svc.MakeTransaction(ctx, 7, 1, decimal.NewFromInt(-11), "USD", "too much")
	require.ErrorIs(t, err, ErrInsufficientCredit)

	// Balance untouched by the rejected debit.
	balance, err := svc.Balance(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(balance))
}

func TestMakeTransaction_RoundsToCents(t *testing.T) {
	repo := newMemCreditRepo()
	svc := NewService(repo, &stubOrderItems{})

	tx, err := svc.MakeTransaction(context.Background(), 7, 1, decimal.RequireFromString("9.999"), "USD", "promo")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10.00").Equal(tx.Amount))
}

func TestRedeemGiftCard(t *testing.T) {
	repo := newMemCreditRepo()
	items := &stubOrderItems{byID: map[int64]*order.Item{
		42: giftCardItem(42, "25.00"),
	}}
	svc := NewService(repo, items)

	tx, err := svc.RedeemGiftCard(context.Background(), testOrder(), 42)
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("25.00").Equal(tx.Amount))
	require.NotNil(t, tx.OrderItemID)
	assert.Equal(t, int64(42), *tx.OrderItemID)

	balance, err := svc.Balance(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("25.00").Equal(balance))
}

func TestRedeemGiftCard_NotGiftCard(t *testing.T) {
	items := &stubOrderItems{byID: map[int64]*order.Item{
		42: {ID: 42, Product: product.Ref{Kind: product.KindGoods, ID: 10}},
	}}
	svc := NewService(newMemCreditRepo(), items)

	_, err := svc.RedeemGiftCard(context.Background(), testOrder(), 42)
	var ngErr *NotGiftCardError
	require.ErrorAs(t, err, &ngErr)
	assert.Equal(t, int64(42), ngErr.OrderItemID)
	assert.Equal(t, product.KindGoods, ngErr.Kind)
}

func TestBalance_NoAccount(t *testing.T) {
	svc := NewService(newMemCreditRepo(), &stubOrderItems{})

	balance, err := svc.Balance(context.Background(), 99, 1)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}
