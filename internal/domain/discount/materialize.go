package discount

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/pagecraft/commerce/internal/domain/money"
)

var hundred = decimal.NewFromInt(100)

// MaterializeForCart turns a definition into an applied discount scoped to a
// whole cart. A percentage discount computes off the cart subtotal and
// applies once to the aggregate. The admin-currency amount is derived once
// through conv and frozen.
func MaterializeForCart(
	ctx context.Context,
	def *Definition,
	cartID int64,
	subtotal decimal.Decimal,
	conv money.Converter,
	curr money.Currencies,
) (*Applied, error) {
	amount, err := baseAmount(def, subtotal)
	if err != nil {
		return nil, err
	}

	pair, err := freeze(ctx, amount, conv, curr)
	if err != nil {
		return nil, err
	}

	return &Applied{
		DefinitionID: def.ID,
		CartID:       cartID,
		Amount:       pair,
	}, nil
}

// MaterializeForLine turns a definition into an applied discount scoped to a
// single cart line. A percentage discount scales with quantity:
// unitPrice × pct/100 × qty.
func MaterializeForLine(
	ctx context.Context,
	def *Definition,
	cartItemID int64,
	unitPrice decimal.Decimal,
	qty int,
	conv money.Converter,
	curr money.Currencies,
) (*Applied, error) {
	base, err := baseAmount(def, unitPrice)
	if err != nil {
		return nil, err
	}
	amount := base
	if def.Type == TypePercentage {
		amount = base.Mul(decimal.NewFromInt(int64(qty)))
	}

	pair, err := freeze(ctx, amount, conv, curr)
	if err != nil {
		return nil, err
	}

	return &Applied{
		DefinitionID: def.ID,
		CartItemID:   cartItemID,
		Amount:       pair,
	}, nil
}

// baseAmount computes the transaction-currency amount before any quantity
// scaling. Unknown types are a hard stop.
func baseAmount(def *Definition, base decimal.Decimal) (decimal.Decimal, error) {
	switch def.Type {
	case TypeFixed:
		return def.Amount, nil
	case TypePercentage:
		return base.Mul(def.Amount).Div(hundred), nil
	default:
		return decimal.Zero, &InvalidTypeError{Type: def.Type}
	}
}

// freeze rounds the transaction amount and converts it to the admin currency
// exactly once.
func freeze(ctx context.Context, amount decimal.Decimal, conv money.Converter, curr money.Currencies) (money.Pair, error) {
	txn := amount.Round(2)
	admin, err := conv.Convert(ctx, txn, curr.Transaction, curr.Admin)
	if err != nil {
		return money.Pair{}, errors.Wrap(err, "convert discount to admin currency")
	}
	return money.New(txn, admin.Round(2)), nil
}
