// Package worker hosts the async job handlers fed by the work queue
// consumer.
package worker

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/pagecraft/commerce/internal/domain/order"
	"github.com/pagecraft/commerce/internal/domain/product"
	"github.com/pagecraft/commerce/internal/domain/stock"
	"github.com/pagecraft/commerce/internal/kafka"
)

// OrderItems is the slice of order persistence the consolidator needs.
type OrderItems interface {
	ListItems(ctx context.Context, orderID int64) ([]order.Item, error)
}

// Consolidator folds the stock ledgers touched by a paid order. Jobs are
// delivered at least once; consolidation is idempotent, so redelivery is
// harmless.
type Consolidator struct {
	orders OrderItems
	stocks *stock.Service
	lg     *zap.Logger
}

// NewConsolidator wires a Consolidator.
func NewConsolidator(orders OrderItems, stocks *stock.Service, lg *zap.Logger) *Consolidator {
	return &Consolidator{orders: orders, stocks: stocks, lg: lg}
}

// Handle processes one consolidation job envelope.
func (c *Consolidator) Handle(ctx context.Context, env kafka.Envelope) error {
	var job order.ConsolidationJob
	if err := json.Unmarshal(env.Payload, &job); err != nil {
		return errors.Wrap(err, "decode job")
	}
	return c.consolidateOrder(ctx, job.OrderID)
}

// consolidateOrder folds each distinct product of the order's physical
// items.
func (c *Consolidator) consolidateOrder(ctx context.Context, orderID int64) error {
	items, err := c.orders.ListItems(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "list order items")
	}

	seen := make(map[product.Ref]struct{}, len(items))
	for _, it := range items {
		if !it.Physical {
			continue
		}
		if _, ok := seen[it.Product]; ok {
			continue
		}
		seen[it.Product] = struct{}{}

		res, err := c.stocks.ConsolidateProduct(ctx, it.Product)
		if err != nil {
			return errors.Wrapf(err, "consolidate %s/%d", it.Product.Kind, it.Product.ID)
		}
		c.lg.Info("stock consolidated",
			zap.Int64("order.id", orderID),
			zap.String("product.kind", string(it.Product.Kind)),
			zap.Int64("product.id", it.Product.ID),
			zap.Int("folded", res.Folded),
			zap.Int("balance", res.Balance),
		)
	}
	return nil
}
