// Package address holds the customer address book entity referenced by carts.
// Orders keep their own detached snapshots; see the order package.
package address

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an address id does not exist.
var ErrNotFound = errors.New("address not found")

// Type tags which role an address plays on a cart or order.
type Type string

const (
	// TypeBilling marks the address tax resolution reads the country from.
	TypeBilling Type = "billing"
	// TypeShipping marks the delivery address.
	TypeShipping Type = "shipping"
)

// Address is one address book entry.
type Address struct {
	ID         int64
	UserID     int64
	Label      string
	Street     string
	City       string
	Region     string
	PostalCode string
	Country    string
}

// Line renders the single-line form handed to the geocoder.
func (a *Address) Line() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Street, a.City, a.Region, a.PostalCode, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Repository provides address book persistence.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Address, error)
	Save(ctx context.Context, a *Address) error
}
