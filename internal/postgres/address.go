package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagecraft/commerce/internal/domain/address"
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

const getAddressSQL = `SELECT id, user_id, label, street, city, region, postal_code, country
	FROM addresses WHERE id = $1`

// GetByID returns one address book entry, or address.ErrNotFound.
func (r *AddressRepository) GetByID(ctx context.Context, id int64) (*address.Address, error) {
	a := &address.Address{}
	err := r.pool.QueryRow(ctx, getAddressSQL, id).Scan(
		&a.ID, &a.UserID, &a.Label, &a.Street, &a.City, &a.Region, &a.PostalCode, &a.Country,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("getting address %d: %w", id, err)
	}
	return a, nil
}

const insertAddressSQL = `INSERT INTO addresses (user_id, label, street, city, region, postal_code, country)
	VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

const updateAddressSQL = `UPDATE addresses
	SET label = $2, street = $3, city = $4, region = $5, postal_code = $6, country = $7
	WHERE id = $1`

// Save inserts a new entry or updates an existing one.
func (r *AddressRepository) Save(ctx context.Context, a *address.Address) error {
	if a.ID == 0 {
		err := r.pool.QueryRow(ctx, insertAddressSQL,
			a.UserID, a.Label, a.Street, a.City, a.Region, a.PostalCode, a.Country,
		).Scan(&a.ID)
		if err != nil {
			return fmt.Errorf("inserting address: %w", err)
		}
		return nil
	}

	_, err := r.pool.Exec(ctx, updateAddressSQL,
		a.ID, a.Label, a.Street, a.City, a.Region, a.PostalCode, a.Country,
	)
	if err != nil {
		return fmt.Errorf("updating address %d: %w", a.ID, err)
	}
	return nil
}
