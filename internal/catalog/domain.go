package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus is the catalog lifecycle of a product.
type ProductStatus string

const (
	// ProductStatusDraft marks a template that is not yet sellable.
	ProductStatusDraft ProductStatus = "DRAFT"
	// ProductStatusActive marks a sellable product.
	ProductStatusActive ProductStatus = "ACTIVE"
	// ProductStatusArchived marks a product removed from the catalog.
	ProductStatusArchived ProductStatus = "ARCHIVED"
)

// Product is a catalog row. CostPrice is the *suggested* cost used as the
// default unit cost for manual stock increases; changing it never touches
// existing lots.
type Product struct {
	ID          int64
	TenantID    int64
	SKU         string
	Name        string
	CostPrice   decimal.Decimal
	SalePrice   decimal.Decimal
	Status      ProductStatus
	InitialQty  int64
	MinStock    int64
	MaxStock    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductInput describes a new or updated product.
type ProductInput struct {
	SKU        string
	Name       string
	CostPrice  decimal.Decimal
	SalePrice  decimal.Decimal
	InitialQty int64
	MinStock   int64
	MaxStock   int64
}

// ImportResult summarises one bulk import.
type ImportResult struct {
	Created    int
	Activated  int
	Reconciled int
}

// ErrSKUConflict indicates a duplicate SKU within the tenant.
var ErrSKUConflict = errors.New("catalog: sku already exists")

// ErrProductNotFound indicates a missing product.
var ErrProductNotFound = errors.New("catalog: product not found")

// ErrAlreadyActive indicates activation of an already active product.
var ErrAlreadyActive = errors.New("catalog: product already active")
