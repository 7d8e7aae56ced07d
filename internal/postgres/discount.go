package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagecraft/commerce/internal/domain/discount"
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

const findDefinitionSQL = `SELECT id, code, title, discount_type, amount, max_uses, uses
	FROM discount_definitions WHERE UPPER(code) = UPPER($1) AND active`

// FindByCode looks up an active definition by code, case-insensitively.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Definition, error) {
	def := &discount.Definition{}
	err := r.pool.QueryRow(ctx, findDefinitionSQL, code).Scan(
		&def.ID, &def.Code, &def.Title, &def.Type, &def.Amount, &def.MaxUses, &def.Uses,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount %q: %w", code, err)
	}
	return def, nil
}

// IncrementUses bumps the usage counter of a definition.
func (r *DiscountRepository) IncrementUses(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE discount_definitions SET uses = uses + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("incrementing discount uses: %w", err)
	}
	return nil
}

const upsertDefinitionSQL = `INSERT INTO discount_definitions (code, title, discount_type, amount, max_uses, active)
	VALUES ($1, $2, $3, $4, $5, TRUE)
	ON CONFLICT (code) DO UPDATE
	SET title = EXCLUDED.title, discount_type = EXCLUDED.discount_type,
	    amount = EXCLUDED.amount, max_uses = EXCLUDED.max_uses, active = TRUE
	RETURNING id`

// Upsert inserts or replaces a definition by code. Used by ingest tooling.
func (r *DiscountRepository) Upsert(ctx context.Context, def *discount.Definition) error {
	err := r.pool.QueryRow(ctx, upsertDefinitionSQL,
		def.Code, def.Title, string(def.Type), def.Amount, def.MaxUses,
	).Scan(&def.ID)
	if err != nil {
		return fmt.Errorf("upserting discount %q: %w", def.Code, err)
	}
	return nil
}

const saveAppliedSQL = `INSERT INTO applied_discounts (definition_id, cart_id, cart_item_id, amount_txn, amount_admin)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`

// SaveApplied persists a materialized discount. Exactly one of CartID and
// CartItemID must be set; the schema enforces the exclusivity.
func (r *DiscountRepository) SaveApplied(ctx context.Context, a *discount.Applied) error {
	err := r.pool.QueryRow(ctx, saveAppliedSQL,
		a.DefinitionID, nullableID(a.CartID), nullableID(a.CartItemID),
		a.Amount.Transaction, a.Amount.Admin,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("saving applied discount: %w", err)
	}
	return nil
}

const listForCartSQL = `SELECT id, definition_id, amount_txn, amount_admin
	FROM applied_discounts WHERE cart_id = $1 ORDER BY id`

// ListForCart returns the cart-scoped discounts of a cart.
func (r *DiscountRepository) ListForCart(ctx context.Context, cartID int64) ([]discount.Applied, error) {
	rows, err := r.pool.Query(ctx, listForCartSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("listing cart discounts: %w", err)
	}
	defer rows.Close()

	var out []discount.Applied
	for rows.Next() {
		a := discount.Applied{CartID: cartID}
		if err := rows.Scan(&a.ID, &a.DefinitionID, &a.Amount.Transaction, &a.Amount.Admin); err != nil {
			return nil, fmt.Errorf("scanning applied discount: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const listForItemsSQL = `SELECT id, definition_id, cart_item_id, amount_txn, amount_admin
	FROM applied_discounts WHERE cart_item_id = ANY($1) ORDER BY id`

// ListForItems returns line-scoped discounts grouped by cart item id.
func (r *DiscountRepository) ListForItems(ctx context.Context, cartItemIDs []int64) (map[int64][]discount.Applied, error) {
	out := make(map[int64][]discount.Applied, len(cartItemIDs))
	if len(cartItemIDs) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, listForItemsSQL, cartItemIDs)
	if err != nil {
		return nil, fmt.Errorf("listing item discounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a discount.Applied
		if err := rows.Scan(&a.ID, &a.DefinitionID, &a.CartItemID, &a.Amount.Transaction, &a.Amount.Admin); err != nil {
			return nil, fmt.Errorf("scanning applied discount: %w", err)
		}
		out[a.CartItemID] = append(out[a.CartItemID], a)
	}
	return out, rows.Err()
}

// nullableID maps the zero id to SQL NULL.
func nullableID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
