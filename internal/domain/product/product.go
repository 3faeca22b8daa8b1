package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Status controls storefront visibility of a product.
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusActive
}

// SizeStock maps a size label to the number of units available.
type SizeStock map[string]int

// Valid reports whether every quantity is non-negative.
func (s SizeStock) Valid() bool {
	for _, qty := range s {
		if qty < 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy. A nil map clones to an empty map.
func (s SizeStock) Clone() SizeStock {
	out := make(SizeStock, len(s))
	for size, qty := range s {
		out[size] = qty
	}
	return out
}

// Product represents a sellable catalog entry.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Description string
	Images      []string
	Categories  []int64
	SizeStock   SizeStock
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Category is a named product grouping.
type Category struct {
	ID   int64
	Name string
}

// Fields holds the mutable part of a product as written by the repository.
// Update replaces every field wholesale.
type Fields struct {
	Name        string
	Price       decimal.Decimal
	Description string
	Images      []string
	Categories  []int64
	SizeStock   SizeStock
	Status      Status
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	Create(ctx context.Context, f Fields) (*Product, error)
	Update(ctx context.Context, id string, f Fields) (*Product, error)
	Delete(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status Status) error
}
