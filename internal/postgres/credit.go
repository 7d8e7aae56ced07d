package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pagecraft/commerce/internal/domain/credit"
)

var _ credit.Repository = (*CreditRepository)(nil)

// CreditRepository implements credit.Repository backed by PostgreSQL.
type CreditRepository struct {
	pool *pgxpool.Pool
}

// NewCreditRepository returns a CreditRepository that uses the given pool.
func NewCreditRepository(pool *pgxpool.Pool) *CreditRepository {
	return &CreditRepository{pool: pool}
}

const getCreditSQL = `SELECT id, user_id, website_id, balance, currency
	FROM store_credits WHERE user_id = $1 AND website_id = $2`

// GetByOwner returns the credit account of a (user, website) pair, or
// credit.ErrNotFound.
func (r *CreditRepository) GetByOwner(ctx context.Context, userID, websiteID int64) (*credit.StoreCredit, error) {
	sc := &credit.StoreCredit{}
	err := r.pool.QueryRow(ctx, getCreditSQL, userID, websiteID).Scan(
		&sc.ID, &sc.UserID, &sc.WebsiteID, &sc.Balance, &sc.Currency,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, credit.ErrNotFound
		}
		return nil, fmt.Errorf("getting store credit: %w", err)
	}
	return sc, nil
}

const createCreditSQL = `INSERT INTO store_credits (user_id, website_id, balance, currency)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id, website_id) DO UPDATE SET currency = store_credits.currency
	RETURNING id, balance, currency`

// Create inserts a credit account, tolerating a concurrent creation: the
// existing account wins and its state is read back.
func (r *CreditRepository) Create(ctx context.Context, sc *credit.StoreCredit) error {
	err := r.pool.QueryRow(ctx, createCreditSQL,
		sc.UserID, sc.WebsiteID, sc.Balance, sc.Currency,
	).Scan(&sc.ID, &sc.Balance, &sc.Currency)
	if err != nil {
		return fmt.Errorf("creating store credit: %w", err)
	}
	return nil
}

const applyCreditSQL = `UPDATE store_credits SET balance = balance + $2
	WHERE id = $1 AND balance + $2 >= 0
	RETURNING balance`

const insertCreditTxSQL = `INSERT INTO store_credit_transactions (credit_id, amount, note, order_item_id)
	VALUES ($1, $2, $3, $4) RETURNING id, created_at`

// Apply increments the balance and records the transaction atomically. The
// conditional update rejects debits below zero with ErrInsufficientCredit;
// no row is written in that case.
func (r *CreditRepository) Apply(ctx context.Context, creditID int64, t *credit.Transaction) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance decimal.Decimal
	err = tx.QueryRow(ctx, applyCreditSQL, creditID, t.Amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the account does not exist or the debit exceeds the
			// balance. Distinguish so callers get the right sentinel.
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT TRUE FROM store_credits WHERE id = $1`, creditID).Scan(&exists); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return credit.ErrNotFound
				}
				return fmt.Errorf("checking store credit: %w", err)
			}
			return credit.ErrInsufficientCredit
		}
		return fmt.Errorf("applying credit transaction: %w", err)
	}

	t.CreditID = creditID
	err = tx.QueryRow(ctx, insertCreditTxSQL, creditID, t.Amount, t.Note, t.OrderItemID).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording credit transaction: %w", err)
	}

	return tx.Commit(ctx)
}

const listCreditTxSQL = `SELECT id, credit_id, amount, note, order_item_id, created_at
	FROM store_credit_transactions WHERE credit_id = $1 ORDER BY id`

// ListTransactions returns the account's transaction trail, oldest first.
func (r *CreditRepository) ListTransactions(ctx context.Context, creditID int64) ([]credit.Transaction, error) {
	rows, err := r.pool.Query(ctx, listCreditTxSQL, creditID)
	if err != nil {
		return nil, fmt.Errorf("listing credit transactions: %w", err)
	}
	defer rows.Close()

	var out []credit.Transaction
	for rows.Next() {
		var t credit.Transaction
		if err := rows.Scan(&t.ID, &t.CreditID, &t.Amount, &t.Note, &t.OrderItemID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning credit transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
