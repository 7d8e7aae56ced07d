package credit

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/pagecraft/commerce/internal/domain/order"
	"github.com/pagecraft/commerce/internal/domain/product"
)

// OrderItems is the slice of the order repository gift-card redemption needs.
type OrderItems interface {
	GetItem(ctx context.Context, orderItemID int64) (*order.Item, error)
}

// Service is the store credit surface.
type Service struct {
	repo   Repository
	orders OrderItems
}

// NewService wires a credit Service.
func NewService(repo Repository, orders OrderItems) *Service {
	return &Service{repo: repo, orders: orders}
}

// account resolves the credit account for an owner, lazily creating an
// empty one in the given currency.
func (s *Service) account(ctx context.Context, userID, websiteID int64, currency string) (*StoreCredit, error) {
	sc, err := s.repo.GetByOwner(ctx, userID, websiteID)
	if err == nil {
		return sc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "get store credit")
	}

	sc = &StoreCredit{
		UserID:    userID,
		WebsiteID: websiteID,
		Balance:   decimal.Zero,
		Currency:  currency,
	}
	if err := s.repo.Create(ctx, sc); err != nil {
		return nil, errors.Wrap(err, "create store credit")
	}
	return sc, nil
}

// MakeTransaction applies a credit (positive amount) or debit (negative) to
// the owner's balance. The balance update and transaction insert happen
// atomically; a debit below zero fails with ErrInsufficientCredit.
func (s *Service) MakeTransaction(ctx context.Context, userID, websiteID int64, amount decimal.Decimal, currency, note string) (*Transaction, error) {
	sc, err := s.account(ctx, userID, websiteID, currency)
	if err != nil {
		return nil, err
	}

	t := &Transaction{
		CreditID: sc.ID,
		Amount:   amount.Round(2),
		Note:     note,
	}
	if err := s.repo.Apply(ctx, sc.ID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RedeemGiftCard converts a purchased gift card order item into store
// credit for the order's owner, crediting the item's row total. Passing a
// non-gift-card item is a contract violation.
func (s *Service) RedeemGiftCard(ctx context.Context, o *order.Order, orderItemID int64) (*Transaction, error) {
	item, err := s.orders.GetItem(ctx, orderItemID)
	if err != nil {
		return nil, err
	}
	if item.Product.Kind != product.KindGiftCard {
		return nil, &NotGiftCardError{OrderItemID: orderItemID, Kind: item.Product.Kind}
	}

	sc, err := s.account(ctx, o.UserID, o.WebsiteID, o.Currencies.Transaction)
	if err != nil {
		return nil, err
	}

	t := &Transaction{
		CreditID:    sc.ID,
		Amount:      item.Total.Transaction,
		Note:        "gift card redemption",
		OrderItemID: &orderItemID,
	}
	if err := s.repo.Apply(ctx, sc.ID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Balance returns the owner's current balance, zero when no account exists.
func (s *Service) Balance(ctx context.Context, userID, websiteID int64) (decimal.Decimal, error) {
	sc, err := s.repo.GetByOwner(ctx, userID, websiteID)
	if errors.Is(err, ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return sc.Balance, nil
}
