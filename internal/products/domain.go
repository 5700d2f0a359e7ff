// Package products owns the product master: catalog CRUD with
// optimistic locking and soft deletion. The ledger engine references
// products by identity only and queries activity through Gate.
package products

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Product is a catalog item.
type Product struct {
	ID           uuid.UUID
	Code         string
	Name         string
	Spec         *string
	Unit         string
	UnitPrice    float64
	UnitWeight   *float64
	ReorderPoint int
	Active       bool
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateInput describes a new product.
type CreateInput struct {
	Code         string
	Name         string
	Spec         *string
	Unit         string
	UnitPrice    float64
	UnitWeight   *float64
	ReorderPoint int
}

// UpdateInput carries a partial update plus the expected version for
// optimistic locking. Nil fields are left unchanged.
type UpdateInput struct {
	Code         *string
	Name         *string
	Spec         *string
	Unit         *string
	UnitPrice    *float64
	UnitWeight   *float64
	ReorderPoint *int
	Version      int64
}

// ListFilter narrows and pages the catalog listing.
type ListFilter struct {
	Q       string
	Active  *bool
	Page    int
	PerPage int
}

var (
	// ErrNotFound indicates the product does not exist.
	ErrNotFound = errors.New("products: not found")
	// ErrCodeTaken indicates the product code is already in use.
	ErrCodeTaken = errors.New("products: code already in use")
	// ErrVersionConflict indicates a lost optimistic-lock race.
	ErrVersionConflict = errors.New("products: version conflict")
)
