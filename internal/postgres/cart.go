package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagecraft/commerce/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

const createCartSQL = `INSERT INTO carts (user_id, website_id, active, txn_currency, admin_currency)
	VALUES ($1, $2, TRUE, $3, $4) RETURNING id`

// Create inserts an empty active cart and fills in the generated id.
func (r *CartRepository) Create(ctx context.Context, c *cart.Cart) error {
	err := r.pool.QueryRow(ctx, createCartSQL,
		c.UserID, c.WebsiteID, c.Currencies.Transaction, c.Currencies.Admin,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("creating cart: %w", err)
	}
	c.Active = true
	return nil
}

const getCartSQL = `SELECT id, user_id, website_id, active, txn_currency, admin_currency,
		COALESCE(billing_address_id, 0), COALESCE(shipping_address_id, 0),
		subtotal_txn, subtotal_admin, discount_txn, discount_admin,
		tax_txn, tax_admin, shipping_txn, shipping_admin, grand_txn, grand_admin
	FROM carts WHERE id = $1`

// GetByID returns a cart by id, or cart.ErrNotFound.
func (r *CartRepository) GetByID(ctx context.Context, id int64) (*cart.Cart, error) {
	c := &cart.Cart{}
	err := r.pool.QueryRow(ctx, getCartSQL, id).Scan(
		&c.ID, &c.UserID, &c.WebsiteID, &c.Active,
		&c.Currencies.Transaction, &c.Currencies.Admin,
		&c.BillingAddressID, &c.ShippingAddressID,
		&c.Totals.Subtotal.Transaction, &c.Totals.Subtotal.Admin,
		&c.Totals.Discount.Transaction, &c.Totals.Discount.Admin,
		&c.Totals.Tax.Transaction, &c.Totals.Tax.Admin,
		&c.Totals.Shipping.Transaction, &c.Totals.Shipping.Admin,
		&c.Totals.Grand.Transaction, &c.Totals.Grand.Admin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart %d: %w", id, err)
	}
	return c, nil
}

// SetAddress attaches an address book entry to the cart by role.
func (r *CartRepository) SetAddress(ctx context.Context, cartID, addressID int64, addressType string) error {
	var query string
	switch addressType {
	case "billing":
		query = `UPDATE carts SET billing_address_id = $2 WHERE id = $1`
	case "shipping":
		query = `UPDATE carts SET shipping_address_id = $2 WHERE id = $1`
	default:
		return fmt.Errorf("unknown address type %q", addressType)
	}

	tag, err := r.pool.Exec(ctx, query, cartID, addressID)
	if err != nil {
		return fmt.Errorf("setting cart %s address: %w", addressType, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

const saveTotalsSQL = `UPDATE carts SET
		subtotal_txn = $2, subtotal_admin = $3,
		discount_txn = $4, discount_admin = $5,
		tax_txn = $6, tax_admin = $7,
		shipping_txn = $8, shipping_admin = $9,
		grand_txn = $10, grand_admin = $11
	WHERE id = $1`

// SaveTotals persists freshly computed totals.
func (r *CartRepository) SaveTotals(ctx context.Context, cartID int64, t cart.Totals) error {
	tag, err := r.pool.Exec(ctx, saveTotalsSQL, cartID,
		t.Subtotal.Transaction, t.Subtotal.Admin,
		t.Discount.Transaction, t.Discount.Admin,
		t.Tax.Transaction, t.Tax.Admin,
		t.Shipping.Transaction, t.Shipping.Admin,
		t.Grand.Transaction, t.Grand.Admin,
	)
	if err != nil {
		return fmt.Errorf("saving cart totals: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

// SetActive toggles the cart's active flag.
func (r *CartRepository) SetActive(ctx context.Context, cartID int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE carts SET active = $2 WHERE id = $1`, cartID, active)
	if err != nil {
		return fmt.Errorf("setting cart active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

const addItemSQL = `INSERT INTO cart_items (cart_id, product_kind, product_id, quantity, unit_price_txn, unit_price_admin)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

// AddItem inserts a line item and fills in the generated id.
func (r *CartRepository) AddItem(ctx context.Context, item *cart.Item) error {
	err := r.pool.QueryRow(ctx, addItemSQL,
		item.CartID, string(item.Product.Kind), item.Product.ID, item.Qty,
		item.UnitPrice.Transaction, item.UnitPrice.Admin,
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("adding cart item: %w", err)
	}
	return nil
}

// UpdateItemQty replaces a line item's quantity.
func (r *CartRepository) UpdateItemQty(ctx context.Context, itemID int64, qty int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cart_items SET quantity = $2 WHERE id = $1`, itemID, qty)
	if err != nil {
		return fmt.Errorf("updating cart item quantity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}

const getCartItemSQL = `SELECT id, cart_id, product_kind, product_id, quantity, unit_price_txn, unit_price_admin
	FROM cart_items WHERE cart_id = $1 AND id = $2`

// GetItem returns a line item scoped to its cart, or cart.ErrItemNotFound.
func (r *CartRepository) GetItem(ctx context.Context, cartID, itemID int64) (*cart.Item, error) {
	item := &cart.Item{}
	err := r.pool.QueryRow(ctx, getCartItemSQL, cartID, itemID).Scan(
		&item.ID, &item.CartID, &item.Product.Kind, &item.Product.ID, &item.Qty,
		&item.UnitPrice.Transaction, &item.UnitPrice.Admin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrItemNotFound
		}
		return nil, fmt.Errorf("getting cart item %d: %w", itemID, err)
	}
	return item, nil
}

const listCartItemsSQL = `SELECT id, cart_id, product_kind, product_id, quantity, unit_price_txn, unit_price_admin
	FROM cart_items WHERE cart_id = $1 ORDER BY id`

// ListItems returns the cart's line items in insertion order.
func (r *CartRepository) ListItems(ctx context.Context, cartID int64) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, listCartItemsSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	defer rows.Close()

	var out []cart.Item
	for rows.Next() {
		var item cart.Item
		if err := rows.Scan(
			&item.ID, &item.CartID, &item.Product.Kind, &item.Product.ID, &item.Qty,
			&item.UnitPrice.Transaction, &item.UnitPrice.Admin,
		); err != nil {
			return nil, fmt.Errorf("scanning cart item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// DeleteItem removes a line item and its line-scoped discounts in one
// transaction.
func (r *CartRepository) DeleteItem(ctx context.Context, itemID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM applied_discounts WHERE cart_item_id = $1`, itemID); err != nil {
		return fmt.Errorf("deleting item discounts: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, itemID)
	if err != nil {
		return fmt.Errorf("deleting cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}

	return tx.Commit(ctx)
}
