// Package stock tracks physical inventory through an append-only movement
// ledger consolidated on demand into a cached balance. The ledger is a
// staging buffer between consolidation runs, not a permanent audit log:
// folded movements are deleted at the moment they enter the balance.
package stock

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/pagecraft/commerce/internal/domain/product"
)

// ErrNotFound is returned when no stock row exists for a product.
var ErrNotFound = errors.New("product stock not found")

// SystemOwnerID owns stock rows created lazily by the ledger itself.
const SystemOwnerID = 1

// MovementType is the direction of a ledger entry.
type MovementType string

const (
	// Increase records goods intake.
	Increase MovementType = "increase"
	// Decrease records goods leaving, provisionally (cart reservation) or
	// confirmed (order item).
	Decrease MovementType = "decrease"
)

// ProductStock is the consolidated balance row, one per product.
type ProductStock struct {
	ID      int64
	Product product.Ref
	Qty     int
	OwnerID int64
}

// Movement is one append-only ledger entry. A decrease with a non-nil
// OrderItemID is confirmed; one with only a CartItemID is a provisional
// reservation and never enters the balance.
type Movement struct {
	ID          int64
	StockID     int64
	Type        MovementType
	Qty         int
	CartItemID  *int64
	OrderItemID *int64
	CreatedAt   time.Time
}

// Confirmed reports whether the movement participates in consolidation.
func (m Movement) Confirmed() bool {
	return m.Type == Increase || (m.Type == Decrease && m.OrderItemID != nil)
}

// FoldFunc folds a movement batch into a balance, returning the new balance
// and the ids of exactly the movements it folded.
type FoldFunc func(balance int, movements []Movement) (int, []int64)

// Fold is the consolidation function: increases add, confirmed decreases
// subtract, provisional decreases are skipped and left in the ledger.
// Folding an empty or all-provisional batch returns the balance unchanged.
func Fold(balance int, movements []Movement) (int, []int64) {
	folded := make([]int64, 0, len(movements))
	for _, m := range movements {
		if !m.Confirmed() {
			continue
		}
		if m.Type == Increase {
			balance += m.Qty
		} else {
			balance -= m.Qty
		}
		folded = append(folded, m.ID)
	}
	return balance, folded
}

// Result summarizes one consolidation run.
type Result struct {
	StockID int64
	Balance int
	Folded  int
}

// Repository provides stock persistence. ConsolidateWith must run fold
// inside a transaction that (a) locks the stock row, (b) persists the
// returned balance, and (c) deletes exactly the returned movement ids — so a
// movement appended after the snapshot survives to the next run, and no
// movement is folded twice even under at-least-once job delivery.
type Repository interface {
	GetByProduct(ctx context.Context, ref product.Ref) (*ProductStock, error)
	Create(ctx context.Context, ps *ProductStock) error
	AppendMovement(ctx context.Context, m *Movement) error
	ListMovements(ctx context.Context, stockID int64) ([]Movement, error)
	ConsolidateWith(ctx context.Context, stockID int64, fold FoldFunc) (Result, error)
}
