package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagecraft/commerce/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

const getProductSQL = `SELECT id, kind, name, price, tax_class_id, is_physical
	FROM products WHERE id = $1 AND kind = $2`

// GetByID returns a catalog row by id and kind, or product.ErrNotFound.
func (r *ProductRepository) GetByID(ctx context.Context, kind product.Kind, id int64) (*product.Row, error) {
	row := &product.Row{}
	err := r.pool.QueryRow(ctx, getProductSQL, id, string(kind)).Scan(
		&row.ID, &row.Kind, &row.Name, &row.UnitPrice, &row.TaxClass, &row.Physical,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %s/%d: %w", kind, id, err)
	}
	return row, nil
}

const upsertProductSQL = `INSERT INTO products (id, kind, name, price, tax_class_id, is_physical)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE
	SET kind = EXCLUDED.kind, name = EXCLUDED.name, price = EXCLUDED.price,
	    tax_class_id = EXCLUDED.tax_class_id, is_physical = EXCLUDED.is_physical`

// Upsert inserts or updates a catalog row. Used by seeding tools.
func (r *ProductRepository) Upsert(ctx context.Context, row *product.Row) error {
	_, err := r.pool.Exec(ctx, upsertProductSQL,
		row.ID, string(row.Kind), row.Name, row.UnitPrice, row.TaxClass, row.Physical,
	)
	if err != nil {
		return fmt.Errorf("upserting product %s/%d: %w", row.Kind, row.ID, err)
	}
	return nil
}
