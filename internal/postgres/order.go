package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagecraft/commerce/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

const createOrderSQL = `INSERT INTO orders (cart_id, user_id, website_id, status, txn_currency, admin_currency,
		subtotal_txn, subtotal_admin, discount_txn, discount_admin,
		tax_txn, tax_admin, shipping_txn, shipping_admin, grand_txn, grand_admin)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	RETURNING id, created_at`

const createOrderItemSQL = `INSERT INTO order_items (order_id, cart_item_id, product_kind, product_id, name,
		is_physical, quantity, unit_price_txn, unit_price_admin,
		subtotal_txn, subtotal_admin, discount_txn, discount_admin,
		tax_txn, tax_admin, total_txn, total_admin)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	RETURNING id`

const createOrderAddressSQL = `INSERT INTO order_addresses (order_id, address_type, street, city, region, postal_code, country, lat, lon)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`

// Create persists the order with its item and address snapshots in one
// transaction and fills in the generated identities. A duplicate cart id
// surfaces as order.ErrAlreadyPlaced via the unique constraint.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, items []order.Item, addrs []order.Address) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, createOrderSQL,
		o.CartID, o.UserID, o.WebsiteID, string(o.Status),
		o.Currencies.Transaction, o.Currencies.Admin,
		o.Totals.Subtotal.Transaction, o.Totals.Subtotal.Admin,
		o.Totals.Discount.Transaction, o.Totals.Discount.Admin,
		o.Totals.Tax.Transaction, o.Totals.Tax.Admin,
		o.Totals.Shipping.Transaction, o.Totals.Shipping.Admin,
		o.Totals.Grand.Transaction, o.Totals.Grand.Admin,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrAlreadyPlaced
		}
		return fmt.Errorf("creating order: %w", err)
	}

	for i := range items {
		items[i].OrderID = o.ID
		err := tx.QueryRow(ctx, createOrderItemSQL,
			o.ID, items[i].CartItemID, string(items[i].Product.Kind), items[i].Product.ID,
			items[i].Name, items[i].Physical, items[i].Qty,
			items[i].UnitPrice.Transaction, items[i].UnitPrice.Admin,
			items[i].Subtotal.Transaction, items[i].Subtotal.Admin,
			items[i].Discount.Transaction, items[i].Discount.Admin,
			items[i].Tax.Transaction, items[i].Tax.Admin,
			items[i].Total.Transaction, items[i].Total.Admin,
		).Scan(&items[i].ID)
		if err != nil {
			return fmt.Errorf("creating order item: %w", err)
		}
	}

	for i := range addrs {
		addrs[i].OrderID = o.ID
		err := tx.QueryRow(ctx, createOrderAddressSQL,
			o.ID, addrs[i].AddressType, addrs[i].Street, addrs[i].City,
			addrs[i].Region, addrs[i].PostalCode, addrs[i].Country,
			addrs[i].Lat, addrs[i].Lon,
		).Scan(&addrs[i].ID)
		if err != nil {
			return fmt.Errorf("creating order address: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// SetNumber writes the assigned order number.
func (r *OrderRepository) SetNumber(ctx context.Context, orderID int64, number string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET order_number = $2 WHERE id = $1`, orderID, number)
	if err != nil {
		return fmt.Errorf("setting order number: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// SetStatus records a lifecycle transition.
func (r *OrderRepository) SetStatus(ctx context.Context, orderID int64, status order.Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, orderID, string(status))
	if err != nil {
		return fmt.Errorf("setting order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

const getOrderSQL = `SELECT id, order_number, cart_id, user_id, website_id, status,
		txn_currency, admin_currency,
		subtotal_txn, subtotal_admin, discount_txn, discount_admin,
		tax_txn, tax_admin, shipping_txn, shipping_admin, grand_txn, grand_admin,
		created_at
	FROM orders`

func scanOrder(row pgx.Row) (*order.Order, error) {
	o := &order.Order{}
	err := row.Scan(
		&o.ID, &o.Number, &o.CartID, &o.UserID, &o.WebsiteID, &o.Status,
		&o.Currencies.Transaction, &o.Currencies.Admin,
		&o.Totals.Subtotal.Transaction, &o.Totals.Subtotal.Admin,
		&o.Totals.Discount.Transaction, &o.Totals.Discount.Admin,
		&o.Totals.Tax.Transaction, &o.Totals.Tax.Admin,
		&o.Totals.Shipping.Transaction, &o.Totals.Shipping.Admin,
		&o.Totals.Grand.Transaction, &o.Totals.Grand.Admin,
		&o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order: %w", err)
	}
	return o, nil
}

// GetByID returns an order by id, or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, getOrderSQL+` WHERE id = $1`, id))
}

// GetByCartID returns the order placed for a cart, or order.ErrNotFound when
// none has been placed yet.
func (r *OrderRepository) GetByCartID(ctx context.Context, cartID int64) (*order.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, getOrderSQL+` WHERE cart_id = $1`, cartID))
}

const listOrderItemsSQL = `SELECT id, order_id, cart_item_id, product_kind, product_id, name,
		is_physical, quantity, unit_price_txn, unit_price_admin,
		subtotal_txn, subtotal_admin, discount_txn, discount_admin,
		tax_txn, tax_admin, total_txn, total_admin
	FROM order_items`

func scanOrderItem(row pgx.Row) (*order.Item, error) {
	item := &order.Item{}
	err := row.Scan(
		&item.ID, &item.OrderID, &item.CartItemID, &item.Product.Kind, &item.Product.ID,
		&item.Name, &item.Physical, &item.Qty,
		&item.UnitPrice.Transaction, &item.UnitPrice.Admin,
		&item.Subtotal.Transaction, &item.Subtotal.Admin,
		&item.Discount.Transaction, &item.Discount.Admin,
		&item.Tax.Transaction, &item.Tax.Admin,
		&item.Total.Transaction, &item.Total.Admin,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order item: %w", err)
	}
	return item, nil
}

// ListItems returns the order's item snapshots.
func (r *OrderRepository) ListItems(ctx context.Context, orderID int64) ([]order.Item, error) {
	rows, err := r.pool.Query(ctx, listOrderItemsSQL+` WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()

	var out []order.Item
	for rows.Next() {
		item, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

// GetItem returns one order item snapshot, or order.ErrNotFound.
func (r *OrderRepository) GetItem(ctx context.Context, orderItemID int64) (*order.Item, error) {
	return scanOrderItem(r.pool.QueryRow(ctx, listOrderItemsSQL+` WHERE id = $1`, orderItemID))
}

const addPaymentSQL = `INSERT INTO order_payments (order_id, method, transaction_id, amount_txn, amount_admin, payload)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`

// AddPayment records a payment snapshot.
func (r *OrderRepository) AddPayment(ctx context.Context, p *order.Payment) error {
	err := r.pool.QueryRow(ctx, addPaymentSQL,
		p.OrderID, p.Method, p.TransactionID,
		p.Amount.Transaction, p.Amount.Admin, p.Payload,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("adding order payment: %w", err)
	}
	return nil
}

const addShipmentSQL = `INSERT INTO order_shipments (order_id, method, tracking_code, payload)
	VALUES ($1, $2, $3, $4) RETURNING id, created_at`

const addShipmentItemSQL = `INSERT INTO order_shipment_items (shipment_id, order_item_id, quantity)
	VALUES ($1, $2, $3) RETURNING id`

// AddShipment records a shipment and its covered quantities in one
// transaction.
func (r *OrderRepository) AddShipment(ctx context.Context, sh *order.Shipment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, addShipmentSQL,
		sh.OrderID, sh.Method, sh.TrackingCode, sh.Payload,
	).Scan(&sh.ID, &sh.CreatedAt)
	if err != nil {
		return fmt.Errorf("adding order shipment: %w", err)
	}

	for i := range sh.Items {
		sh.Items[i].ShipmentID = sh.ID
		err := tx.QueryRow(ctx, addShipmentItemSQL,
			sh.ID, sh.Items[i].OrderItemID, sh.Items[i].Qty,
		).Scan(&sh.Items[i].ID)
		if err != nil {
			return fmt.Errorf("adding shipment item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

const listShipmentsSQL = `SELECT id, order_id, method, tracking_code, payload, created_at
	FROM order_shipments WHERE order_id = $1 ORDER BY id`

const listShipmentItemsSQL = `SELECT si.id, si.shipment_id, si.order_item_id, si.quantity
	FROM order_shipment_items si
	JOIN order_shipments s ON s.id = si.shipment_id
	WHERE s.order_id = $1 ORDER BY si.id`

// ListShipments returns the order's shipments with their covered items.
func (r *OrderRepository) ListShipments(ctx context.Context, orderID int64) ([]order.Shipment, error) {
	rows, err := r.pool.Query(ctx, listShipmentsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing shipments: %w", err)
	}
	defer rows.Close()

	var out []order.Shipment
	index := make(map[int64]int)
	for rows.Next() {
		var sh order.Shipment
		if err := rows.Scan(&sh.ID, &sh.OrderID, &sh.Method, &sh.TrackingCode, &sh.Payload, &sh.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning shipment: %w", err)
		}
		index[sh.ID] = len(out)
		out = append(out, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	itemRows, err := r.pool.Query(ctx, listShipmentItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing shipment items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var si order.ShipmentItem
		if err := itemRows.Scan(&si.ID, &si.ShipmentID, &si.OrderItemID, &si.Qty); err != nil {
			return nil, fmt.Errorf("scanning shipment item: %w", err)
		}
		if i, ok := index[si.ShipmentID]; ok {
			out[i].Items = append(out[i].Items, si)
		}
	}
	return out, itemRows.Err()
}

const addCommentSQL = `INSERT INTO order_comments (order_id, message)
	VALUES ($1, $2) RETURNING id, created_at`

// AddComment attaches a note to an order.
func (r *OrderRepository) AddComment(ctx context.Context, c *order.Comment) error {
	err := r.pool.QueryRow(ctx, addCommentSQL, c.OrderID, c.Message).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("adding order comment: %w", err)
	}
	return nil
}

const listCommentsSQL = `SELECT id, order_id, message, created_at
	FROM order_comments WHERE order_id = $1 ORDER BY id`

// ListComments returns the order's notes, oldest first.
func (r *OrderRepository) ListComments(ctx context.Context, orderID int64) ([]order.Comment, error) {
	rows, err := r.pool.Query(ctx, listCommentsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing order comments: %w", err)
	}
	defer rows.Close()

	var out []order.Comment
	for rows.Next() {
		var c order.Comment
		if err := rows.Scan(&c.ID, &c.OrderID, &c.Message, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning order comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
