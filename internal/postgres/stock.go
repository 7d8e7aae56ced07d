package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagecraft/commerce/internal/domain/product"
	"github.com/pagecraft/commerce/internal/domain/stock"
)

// consolidateRetries bounds retries on serialization conflicts.
const consolidateRetries = 5

var _ stock.Repository = (*StockRepository)(nil)

// StockRepository implements stock.Repository backed by PostgreSQL.
type StockRepository struct {
	pool *pgxpool.Pool
}

// NewStockRepository returns a StockRepository that uses the given pool.
func NewStockRepository(pool *pgxpool.Pool) *StockRepository {
	return &StockRepository{pool: pool}
}

const getStockSQL = `SELECT id, product_kind, product_id, quantity, owner_id
	FROM product_stocks WHERE product_kind = $1 AND product_id = $2`

// GetByProduct returns the stock row of a product, or stock.ErrNotFound.
func (r *StockRepository) GetByProduct(ctx context.Context, ref product.Ref) (*stock.ProductStock, error) {
	ps := &stock.ProductStock{}
	err := r.pool.QueryRow(ctx, getStockSQL, string(ref.Kind), ref.ID).Scan(
		&ps.ID, &ps.Product.Kind, &ps.Product.ID, &ps.Qty, &ps.OwnerID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, stock.ErrNotFound
		}
		return nil, fmt.Errorf("getting stock for %s/%d: %w", ref.Kind, ref.ID, err)
	}
	return ps, nil
}

const createStockSQL = `INSERT INTO product_stocks (product_kind, product_id, quantity, owner_id)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (product_kind, product_id) DO UPDATE SET owner_id = product_stocks.owner_id
	RETURNING id, quantity, owner_id`

// Create inserts a stock row, tolerating a concurrent creation of the same
// row: the existing row wins and its state is read back.
func (r *StockRepository) Create(ctx context.Context, ps *stock.ProductStock) error {
	err := r.pool.QueryRow(ctx, createStockSQL,
		string(ps.Product.Kind), ps.Product.ID, ps.Qty, ps.OwnerID,
	).Scan(&ps.ID, &ps.Qty, &ps.OwnerID)
	if err != nil {
		return fmt.Errorf("creating stock row: %w", err)
	}
	return nil
}

const appendMovementSQL = `INSERT INTO stock_movements (stock_id, movement_type, quantity, cart_item_id, order_item_id)
	VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`

// AppendMovement appends one ledger entry.
func (r *StockRepository) AppendMovement(ctx context.Context, m *stock.Movement) error {
	err := r.pool.QueryRow(ctx, appendMovementSQL,
		m.StockID, string(m.Type), m.Qty, m.CartItemID, m.OrderItemID,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending stock movement: %w", err)
	}
	return nil
}

const listMovementsSQL = `SELECT id, stock_id, movement_type, quantity, cart_item_id, order_item_id, created_at
	FROM stock_movements WHERE stock_id = $1 ORDER BY id`

// ListMovements returns the pending ledger entries of a stock row.
func (r *StockRepository) ListMovements(ctx context.Context, stockID int64) ([]stock.Movement, error) {
	rows, err := r.pool.Query(ctx, listMovementsSQL, stockID)
	if err != nil {
		return nil, fmt.Errorf("listing stock movements: %w", err)
	}
	defer rows.Close()

	var out []stock.Movement
	for rows.Next() {
		var m stock.Movement
		if err := rows.Scan(&m.ID, &m.StockID, &m.Type, &m.Qty, &m.CartItemID, &m.OrderItemID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning stock movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ConsolidateWith runs fold over the pending ledger inside a serializable
// transaction. The stock row is locked for the duration, the new balance is
// written, and exactly the folded movement ids are deleted. A serialization
// conflict with a concurrent append rolls back and retries with a fresh
// snapshot.
func (r *StockRepository) ConsolidateWith(ctx context.Context, stockID int64, fold stock.FoldFunc) (stock.Result, error) {
	for attempt := 0; ; attempt++ {
		res, err := r.consolidateOnce(ctx, stockID, fold)
		if err == nil {
			return res, nil
		}
		if !isSerializationFailure(err) || attempt >= consolidateRetries {
			return res, err
		}
	}
}

func (r *StockRepository) consolidateOnce(ctx context.Context, stockID int64, fold stock.FoldFunc) (stock.Result, error) {
	res := stock.Result{StockID: stockID}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return res, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int
	err = tx.QueryRow(ctx, `SELECT quantity FROM product_stocks WHERE id = $1 FOR UPDATE`, stockID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return res, stock.ErrNotFound
		}
		return res, fmt.Errorf("locking stock row: %w", err)
	}

	rows, err := tx.Query(ctx, listMovementsSQL, stockID)
	if err != nil {
		return res, fmt.Errorf("listing stock movements: %w", err)
	}
	var movements []stock.Movement
	for rows.Next() {
		var m stock.Movement
		if err := rows.Scan(&m.ID, &m.StockID, &m.Type, &m.Qty, &m.CartItemID, &m.OrderItemID, &m.CreatedAt); err != nil {
			rows.Close()
			return res, fmt.Errorf("scanning stock movement: %w", err)
		}
		movements = append(movements, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return res, err
	}

	newBalance, foldedIDs := fold(balance, movements)
	res.Balance = newBalance
	res.Folded = len(foldedIDs)

	if len(foldedIDs) == 0 {
		// Nothing confirmed to fold; leave the row untouched.
		return res, tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `UPDATE product_stocks SET quantity = $2 WHERE id = $1`, stockID, newBalance); err != nil {
		return res, fmt.Errorf("updating stock balance: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM stock_movements WHERE id = ANY($1)`, foldedIDs); err != nil {
		return res, fmt.Errorf("deleting folded movements: %w", err)
	}

	return res, tx.Commit(ctx)
}
