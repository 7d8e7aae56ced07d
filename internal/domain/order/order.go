// Package order owns the immutable-after-creation order aggregate: a priced
// snapshot of a calculated cart plus lifecycle state. Totals are copied at
// creation and never recomputed in place.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/pagecraft/commerce/internal/domain/cart"
	"github.com/pagecraft/commerce/internal/domain/money"
	"github.com/pagecraft/commerce/internal/domain/product"
)

var (
	// ErrNotFound is returned when an order id does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyPlaced is returned when a cart already has an order. An order
	// is a unique legal record and cannot be duplicated.
	ErrAlreadyPlaced = errors.New("order already placed for cart")
	// ErrEmptyCart is returned when the cart has no line items.
	ErrEmptyCart = errors.New("cart has no items")
	// ErrExcessiveShipQty is returned when a shipment covers more units than
	// an item has outstanding.
	ErrExcessiveShipQty = errors.New("shipment quantity exceeds outstanding")
)

// Status is the order lifecycle state. Transitions are a collaborator's
// responsibility; this core only records them.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusCancelled  Status = "cancelled"
)

// Order is the aggregate root.
type Order struct {
	ID         int64
	Number     string
	CartID     int64
	UserID     int64
	WebsiteID  int64
	Status     Status
	Currencies money.Currencies
	Totals     cart.Totals
	CreatedAt  time.Time
}

// Item is a copy-on-create snapshot of a cart line item's priced fields,
// with a back-reference to the originating cart item.
type Item struct {
	ID         int64
	OrderID    int64
	CartItemID int64
	Product    product.Ref
	Name       string
	Physical   bool
	Qty        int
	UnitPrice  money.Pair
	Subtotal   money.Pair
	Discount   money.Pair
	Tax        money.Pair
	Total      money.Pair
}

// Address is a detached snapshot of the customer's address at order time,
// so the order remains a legal record even if the address book changes.
type Address struct {
	ID          int64
	OrderID     int64
	AddressType string
	Street      string
	City        string
	Region      string
	PostalCode  string
	Country     string
	Lat         *float64
	Lon         *float64
}

// Payment records one payment snapshot at the order's grand total.
type Payment struct {
	ID            int64
	OrderID       int64
	Method        string
	TransactionID string
	Amount        money.Pair
	Payload       []byte
	CreatedAt     time.Time
}

// Shipment covers a subset, by quantity, of one or more order items.
type Shipment struct {
	ID           int64
	OrderID      int64
	Method       string
	TrackingCode string
	Payload      []byte
	Items        []ShipmentItem
	CreatedAt    time.Time
}

// ShipmentItem is one shipped quantity of one order item.
type ShipmentItem struct {
	ID          int64
	ShipmentID  int64
	OrderItemID int64
	Qty         int
}

// Comment is a back-office note attached to an order.
type Comment struct {
	ID        int64
	OrderID   int64
	Message   string
	CreatedAt time.Time
}

// RequiresShipping reports whether the item still has unshipped units. A
// non-physical item never requires shipping; a physical one requires it
// until the cumulative shipped quantity across all shipments reaches the
// ordered quantity.
func RequiresShipping(item Item, shipments []Shipment) bool {
	if !item.Physical {
		return false
	}
	return shippedQty(item.ID, shipments) < item.Qty
}

// shippedQty sums the shipped units of one order item across all shipments.
func shippedQty(orderItemID int64, shipments []Shipment) int {
	total := 0
	for _, sh := range shipments {
		for _, si := range sh.Items {
			if si.OrderItemID == orderItemID {
				total += si.Qty
			}
		}
	}
	return total
}

// Repository provides order persistence. Create persists the order, its
// items, and address snapshots in one transaction and fills in the generated
// identities.
type Repository interface {
	Create(ctx context.Context, o *Order, items []Item, addrs []Address) error
	SetNumber(ctx context.Context, orderID int64, number string) error
	SetStatus(ctx context.Context, orderID int64, status Status) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	// GetByCartID returns ErrNotFound when the cart has no order yet.
	GetByCartID(ctx context.Context, cartID int64) (*Order, error)
	ListItems(ctx context.Context, orderID int64) ([]Item, error)
	GetItem(ctx context.Context, orderItemID int64) (*Item, error)
	AddPayment(ctx context.Context, p *Payment) error
	AddShipment(ctx context.Context, sh *Shipment) error
	ListShipments(ctx context.Context, orderID int64) ([]Shipment, error)
	AddComment(ctx context.Context, c *Comment) error
	ListComments(ctx context.Context, orderID int64) ([]Comment, error)
}
