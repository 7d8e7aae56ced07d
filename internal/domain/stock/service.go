package stock

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/pagecraft/commerce/internal/domain/product"
)

// Service is the stock ledger surface: movement creation and consolidation.
type Service struct {
	repo   Repository
	tracer trace.Tracer
	folded metric.Int64Counter
}

// NewService wires a stock Service.
func NewService(repo Repository) *Service {
	folded, _ := otel.Meter("commerce/stock").Int64Counter("commerce.stock.movements_folded",
		metric.WithDescription("Ledger movements folded into stock balances"))
	return &Service{
		repo:   repo,
		tracer: otel.Tracer("commerce/stock"),
		folded: folded,
	}
}

// StockFor resolves the stock row for a product, lazily creating an empty
// row owned by the system user. A missing row is normal, not an error.
func (s *Service) StockFor(ctx context.Context, ref product.Ref) (*ProductStock, error) {
	ps, err := s.repo.GetByProduct(ctx, ref)
	if err == nil {
		return ps, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "get stock")
	}

	ps = &ProductStock{Product: ref, OwnerID: SystemOwnerID}
	if err := s.repo.Create(ctx, ps); err != nil {
		return nil, errors.Wrap(err, "create stock")
	}
	return ps, nil
}

// Reserve appends a provisional decrease for a cart item. Provisional
// movements never enter the balance until the order confirms them.
func (s *Service) Reserve(ctx context.Context, ref product.Ref, cartItemID int64, qty int) (*Movement, error) {
	return s.appendDecrease(ctx, ref, &cartItemID, nil, qty)
}

// RecordOrderDecrease appends a confirmed decrease for an order item.
func (s *Service) RecordOrderDecrease(ctx context.Context, ref product.Ref, orderItemID int64, qty int) error {
	_, err := s.appendDecrease(ctx, ref, nil, &orderItemID, qty)
	return err
}

// Receive appends an increase movement for goods intake.
func (s *Service) Receive(ctx context.Context, ref product.Ref, qty int) (*Movement, error) {
	ps, err := s.StockFor(ctx, ref)
	if err != nil {
		return nil, err
	}

	m := &Movement{StockID: ps.ID, Type: Increase, Qty: qty}
	if err := s.repo.AppendMovement(ctx, m); err != nil {
		return nil, errors.Wrap(err, "append increase")
	}
	return m, nil
}

func (s *Service) appendDecrease(ctx context.Context, ref product.Ref, cartItemID, orderItemID *int64, qty int) (*Movement, error) {
	ps, err := s.StockFor(ctx, ref)
	if err != nil {
		return nil, err
	}

	m := &Movement{
		StockID:     ps.ID,
		Type:        Decrease,
		Qty:         qty,
		CartItemID:  cartItemID,
		OrderItemID: orderItemID,
	}
	if err := s.repo.AppendMovement(ctx, m); err != nil {
		return nil, errors.Wrap(err, "append decrease")
	}
	return m, nil
}

// Consolidate folds the confirmed movements of one stock row into its
// balance and removes them. Safe to re-run: with no new movements the
// balance is unchanged and nothing is deleted.
func (s *Service) Consolidate(ctx context.Context, stockID int64) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "Consolidate",
		trace.WithAttributes(attribute.Int64("stock.id", stockID)))
	defer span.End()

	res, err := s.repo.ConsolidateWith(ctx, stockID, Fold)
	if err != nil {
		return Result{}, errors.Wrap(err, "consolidate stock")
	}

	s.folded.Add(ctx, int64(res.Folded))
	span.SetAttributes(
		attribute.Int("stock.folded", res.Folded),
		attribute.Int("stock.balance", res.Balance),
	)
	return res, nil
}

// ConsolidateProduct is Consolidate keyed by product reference. Products
// with no stock row yet consolidate to an empty result.
func (s *Service) ConsolidateProduct(ctx context.Context, ref product.Ref) (Result, error) {
	ps, err := s.repo.GetByProduct(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, errors.Wrap(err, "get stock")
	}
	return s.Consolidate(ctx, ps.ID)
}
