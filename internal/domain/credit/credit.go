// Package credit tracks customer account credit as a balance plus an
// append-only transaction trail. Unlike the stock ledger, transactions are
// retained as an audit log and the balance is updated synchronously on each
// transaction, so a single-row atomic increment suffices.
package credit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/pagecraft/commerce/internal/domain/product"
)

var (
	// ErrNotFound is returned when no credit account exists for the owner.
	ErrNotFound = errors.New("store credit not found")
	// ErrInsufficientCredit is returned when a debit would push the balance
	// below zero.
	ErrInsufficientCredit = errors.New("insufficient store credit")
)

// NotGiftCardError indicates an order item that is not a gift card was
// passed to gift-card redemption. A caller contract violation.
type NotGiftCardError struct {
	OrderItemID int64
	Kind        product.Kind
}

func (e *NotGiftCardError) Error() string {
	return fmt.Sprintf("order item %d is %q, not a gift card", e.OrderItemID, e.Kind)
}

// StoreCredit is the balance row, one per (user, website).
type StoreCredit struct {
	ID        int64
	UserID    int64
	WebsiteID int64
	Balance   decimal.Decimal
	Currency  string
}

// Transaction is one credit or debit, retained permanently.
type Transaction struct {
	ID          int64
	CreditID    int64
	Amount      decimal.Decimal
	Note        string
	OrderItemID *int64
	CreatedAt   time.Time
}

// Repository provides store credit persistence. Apply must perform the
// balance increment and the transaction insert in one transaction, and must
// reject a debit that would take the balance below zero by returning
// ErrInsufficientCredit.
type Repository interface {
	GetByOwner(ctx context.Context, userID, websiteID int64) (*StoreCredit, error)
	Create(ctx context.Context, sc *StoreCredit) error
	Apply(ctx context.Context, creditID int64, t *Transaction) error
	ListTransactions(ctx context.Context, creditID int64) ([]Transaction, error)
}
