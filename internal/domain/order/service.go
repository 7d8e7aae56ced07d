package order

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pagecraft/commerce/internal/domain/address"
	"github.com/pagecraft/commerce/internal/domain/cart"
	"github.com/pagecraft/commerce/internal/domain/product"
)

// ConsolidateQueue is the work queue stock consolidation jobs go to.
const ConsolidateQueue = "stock-consolidate"

// ConsolidationJob asks the worker to consolidate the stock rows touched by
// an order. Delivery is at-least-once; consolidation is idempotent.
type ConsolidationJob struct {
	OrderID int64 `json:"order_id"`
}

// EventSink receives domain events fire-and-forget. There is no
// acknowledgement contract; emission failures never fail the operation.
type EventSink interface {
	Emit(ctx context.Context, name string, payload any) error
}

// WorkQueue defers work to an async consumer with at-least-once delivery.
type WorkQueue interface {
	Enqueue(ctx context.Context, queue string, payload any) error
}

// Point is a geocoded coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Geocoder resolves an address line to coordinates, best-effort.
type Geocoder interface {
	Geocode(ctx context.Context, line string) (Point, error)
}

// Inventory records confirmed stock decreases for order items.
type Inventory interface {
	RecordOrderDecrease(ctx context.Context, ref product.Ref, orderItemID int64, qty int) error
}

// PaidEvent is the payload of the "order.paid" event.
type PaidEvent struct {
	OrderID       int64  `json:"order_id"`
	Number        string `json:"number"`
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

// ShipmentEvent is the payload of the "order.shipment" event.
type ShipmentEvent struct {
	OrderID      int64  `json:"order_id"`
	ShipmentID   int64  `json:"shipment_id"`
	Method       string `json:"method"`
	TrackingCode string `json:"tracking_code"`
}

// CreatedEvent is the payload of the "order.created" event.
type CreatedEvent struct {
	OrderID int64  `json:"order_id"`
	Number  string `json:"number"`
	CartID  int64  `json:"cart_id"`
}

// ShipRequest selects how many units of one order item a shipment covers.
type ShipRequest struct {
	OrderItemID int64
	Qty         int
}

// Service is the order factory and lifecycle surface.
type Service struct {
	orders    Repository
	carts     *cart.Service
	products  *product.Registry
	inventory Inventory
	geocoder  Geocoder
	events    EventSink
	queue     WorkQueue
	tracer    trace.Tracer
}

// NewService wires an order Service. All collaborators are explicit.
func NewService(
	orders Repository,
	carts *cart.Service,
	products *product.Registry,
	inventory Inventory,
	geocoder Geocoder,
	events EventSink,
	queue WorkQueue,
) *Service {
	return &Service{
		orders:    orders,
		carts:     carts,
		products:  products,
		inventory: inventory,
		geocoder:  geocoder,
		events:    events,
		queue:     queue,
		tracer:    otel.Tracer("commerce/order"),
	}
}

// CreateFromCart forces a fresh cart calculation and deep-copies every
// priced field into a new order. The order number embeds the database
// identity, so it is assigned in a second targeted update after the insert.
// A cart yields at most one order.
func (s *Service) CreateFromCart(ctx context.Context, cartID int64) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "CreateFromCart",
		trace.WithAttributes(attribute.Int64("cart.id", cartID)))
	defer span.End()

	if _, err := s.orders.GetByCartID(ctx, cartID); err == nil {
		return nil, ErrAlreadyPlaced
	} else if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "check existing order")
	}

	loaded, perItem, err := s.carts.CalculateFull(ctx, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "calculate cart")
	}
	if len(loaded.Items) == 0 {
		return nil, ErrEmptyCart
	}
	c := loaded.Cart

	o := &Order{
		CartID:     c.ID,
		UserID:     c.UserID,
		WebsiteID:  c.WebsiteID,
		Status:     StatusPending,
		Currencies: c.Currencies,
		Totals:     c.Totals,
	}

	items := make([]Item, 0, len(loaded.Items))
	for _, ci := range loaded.Items {
		it := perItem[ci.ID]

		name := ""
		physical := false
		p, err := s.products.Resolve(ctx, ci.Product)
		switch {
		case err == nil:
			physical = p.IsPhysical()
			if row, ok := p.(*product.Row); ok {
				name = row.Name
			}
		case !errors.Is(err, product.ErrNotFound):
			return nil, errors.Wrap(err, "resolve product for snapshot")
		}

		items = append(items, Item{
			CartItemID: ci.ID,
			Product:    ci.Product,
			Name:       name,
			Physical:   physical,
			Qty:        ci.Qty,
			UnitPrice:  ci.UnitPrice,
			Subtotal:   it.Subtotal,
			Discount:   it.Discount,
			Tax:        it.Tax,
			Total:      it.Total,
		})
	}

	addrs, err := s.snapshotAddresses(ctx, c)
	if err != nil {
		return nil, err
	}

	if err := s.orders.Create(ctx, o, items, addrs); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	// Two-phase number assignment: the human-readable number embeds the
	// database-assigned identity.
	o.Number = fmt.Sprintf("%d-%08d", o.WebsiteID, o.ID)
	if err := s.orders.SetNumber(ctx, o.ID, o.Number); err != nil {
		return nil, errors.Wrap(err, "assign order number")
	}

	created, err := s.orders.ListItems(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list created items")
	}
	for _, it := range created {
		if !it.Physical {
			continue
		}
		if err := s.inventory.RecordOrderDecrease(ctx, it.Product, it.ID, it.Qty); err != nil {
			return nil, errors.Wrap(err, "record stock decrease")
		}
	}

	if err := s.carts.Deactivate(ctx, cartID); err != nil {
		return nil, errors.Wrap(err, "deactivate cart")
	}

	_ = s.events.Emit(ctx, "order.created", CreatedEvent{
		OrderID: o.ID,
		Number:  o.Number,
		CartID:  o.CartID,
	})

	span.SetAttributes(attribute.Int64("order.id", o.ID))
	return o, nil
}

// snapshotAddresses copies the cart's billing and shipping addresses into
// detached order snapshots, geocoding each one best-effort.
func (s *Service) snapshotAddresses(ctx context.Context, c *cart.Cart) ([]Address, error) {
	var addrs []Address
	for _, src := range []struct {
		id int64
		t  address.Type
	}{
		{c.BillingAddressID, address.TypeBilling},
		{c.ShippingAddressID, address.TypeShipping},
	} {
		if src.id == 0 {
			continue
		}
		a, err := s.carts.Address(ctx, src.id)
		if errors.Is(err, address.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "load %s address", src.t)
		}

		snap := Address{
			AddressType: string(src.t),
			Street:      a.Street,
			City:        a.City,
			Region:      a.Region,
			PostalCode:  a.PostalCode,
			Country:     a.Country,
		}

		// Geocoding is a nice-to-have; failures never block order creation.
		if pt, err := s.geocoder.Geocode(ctx, a.Line()); err == nil {
			lat, lon := pt.Lat, pt.Lon
			snap.Lat, snap.Lon = &lat, &lon
		}

		addrs = append(addrs, snap)
	}
	return addrs, nil
}

// Pay attaches a payment snapshot at the order's current grand total,
// enqueues an async stock consolidation job, and emits "order.paid". It does
// not mutate order status.
func (s *Service) Pay(ctx context.Context, orderID int64, method, transactionID string, payload []byte) (*Payment, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	p := &Payment{
		OrderID:       o.ID,
		Method:        method,
		TransactionID: transactionID,
		Amount:        o.Totals.Grand,
		Payload:       payload,
	}
	if err := s.orders.AddPayment(ctx, p); err != nil {
		return nil, errors.Wrap(err, "add payment")
	}

	if err := s.queue.Enqueue(ctx, ConsolidateQueue, ConsolidationJob{OrderID: o.ID}); err != nil {
		return nil, errors.Wrap(err, "enqueue consolidation")
	}

	_ = s.events.Emit(ctx, "order.paid", PaidEvent{
		OrderID:       o.ID,
		Number:        o.Number,
		Method:        method,
		TransactionID: transactionID,
		Amount:        o.Totals.Grand.Transaction.StringFixed(2),
		Currency:      o.Currencies.Transaction,
	})

	return p, nil
}

// Ship creates a shipment covering the requested item quantities, defaulting
// to all outstanding units when no explicit list is given. It returns
// (nil, nil) when the order requires no shipping at all.
func (s *Service) Ship(ctx context.Context, orderID int64, method, trackingCode string, reqs []ShipRequest, payload []byte) (*Shipment, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.orders.ListItems(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list order items")
	}
	shipments, err := s.orders.ListShipments(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list shipments")
	}

	outstanding := make(map[int64]int, len(items))
	for _, it := range items {
		if !it.Physical {
			continue
		}
		if left := it.Qty - shippedQty(it.ID, shipments); left > 0 {
			outstanding[it.ID] = left
		}
	}
	if len(outstanding) == 0 {
		return nil, nil
	}

	if len(reqs) == 0 {
		for _, it := range items {
			if left, ok := outstanding[it.ID]; ok {
				reqs = append(reqs, ShipRequest{OrderItemID: it.ID, Qty: left})
			}
		}
	}

	sh := &Shipment{
		OrderID:      o.ID,
		Method:       method,
		TrackingCode: trackingCode,
		Payload:      payload,
	}
	for _, r := range reqs {
		left, ok := outstanding[r.OrderItemID]
		if !ok || r.Qty > left {
			return nil, errors.Wrapf(ErrExcessiveShipQty, "order item %d", r.OrderItemID)
		}
		sh.Items = append(sh.Items, ShipmentItem{OrderItemID: r.OrderItemID, Qty: r.Qty})
	}

	if err := s.orders.AddShipment(ctx, sh); err != nil {
		return nil, errors.Wrap(err, "add shipment")
	}

	_ = s.events.Emit(ctx, "order.shipment", ShipmentEvent{
		OrderID:      o.ID,
		ShipmentID:   sh.ID,
		Method:       method,
		TrackingCode: trackingCode,
	})

	return sh, nil
}

// SetStatus records a lifecycle transition decided by a collaborator.
func (s *Service) SetStatus(ctx context.Context, orderID int64, status Status) error {
	return s.orders.SetStatus(ctx, orderID, status)
}

// GetShipments returns the order's shipments with their items.
func (s *Service) GetShipments(ctx context.Context, orderID int64) ([]Shipment, error) {
	return s.orders.ListShipments(ctx, orderID)
}

// AddComment attaches a back-office note to the order.
func (s *Service) AddComment(ctx context.Context, orderID int64, message string) error {
	return s.orders.AddComment(ctx, &Comment{OrderID: orderID, Message: message})
}

// GetComments returns the order's comments.
func (s *Service) GetComments(ctx context.Context, orderID int64) ([]Comment, error) {
	return s.orders.ListComments(ctx, orderID)
}
