package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/varejo-erp/varejo-erp/internal/ledger"
	"github.com/varejo-erp/varejo-erp/internal/shared"
)

// RepositoryPort abstracts product persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, product Product) (Product, error)
	Update(ctx context.Context, product Product) error
	Get(ctx context.Context, tenantID, productID int64) (Product, error)
	List(ctx context.Context, tenantID int64, page, perPage int) ([]Product, int, error)
}

// LedgerPort is the slice of the inventory ledger the catalog drives.
// Activation and import bypass the normal sale/receipt flow, so every use
// ends in a reconcile.
type LedgerPort interface {
	Adjust(ctx context.Context, tenantID int64, input ledger.AdjustInput) (ledger.AdjustResult, error)
	Reconcile(ctx context.Context, tenantID, productID int64) (ledger.ReconcileResult, error)
	SetStockPolicy(ctx context.Context, tenantID, productID, minStock, maxStock int64) error
}

// Service coordinates catalog operations.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledgerPort, logger: logger}
}

// CreateProduct stores a draft product.
func (s *Service) CreateProduct(ctx context.Context, tenantID int64, input ProductInput) (Product, error) {
	if err := validateInput(input); err != nil {
		return Product{}, err
	}
	product := Product{
		TenantID:   tenantID,
		SKU:        input.SKU,
		Name:       input.Name,
		CostPrice:  input.CostPrice,
		SalePrice:  input.SalePrice,
		Status:     ProductStatusDraft,
		InitialQty: input.InitialQty,
		MinStock:   input.MinStock,
		MaxStock:   input.MaxStock,
	}
	return s.repo.Insert(ctx, product)
}

// UpdateProduct changes catalog fields. Changing CostPrice only moves the
// default for future manual increases; historical lots keep their cost.
func (s *Service) UpdateProduct(ctx context.Context, tenantID, productID int64, input ProductInput) (Product, error) {
	if err := validateInput(input); err != nil {
		return Product{}, err
	}
	product, err := s.repo.Get(ctx, tenantID, productID)
	if err != nil {
		return Product{}, err
	}
	product.SKU = input.SKU
	product.Name = input.Name
	product.CostPrice = input.CostPrice
	product.SalePrice = input.SalePrice
	product.InitialQty = input.InitialQty
	product.MinStock = input.MinStock
	product.MaxStock = input.MaxStock
	if err := s.repo.Update(ctx, product); err != nil {
		return Product{}, err
	}
	if product.Status == ProductStatusActive {
		if err := s.ledger.SetStockPolicy(ctx, tenantID, productID, product.MinStock, product.MaxStock); err != nil {
			return Product{}, err
		}
	}
	return product, nil
}

// GetProduct returns one product.
func (s *Service) GetProduct(ctx context.Context, tenantID, productID int64) (Product, error) {
	return s.repo.Get(ctx, tenantID, productID)
}

// DefaultUnitCost returns the catalog cost price used when an inventory
// adjustment adds stock without an explicit cost.
func (s *Service) DefaultUnitCost(ctx context.Context, tenantID, productID int64) (decimal.Decimal, error) {
	product, err := s.repo.Get(ctx, tenantID, productID)
	if err != nil {
		return decimal.Zero, err
	}
	return product.CostPrice, nil
}

// ListProducts pages through a tenant's catalog.
func (s *Service) ListProducts(ctx context.Context, tenantID int64, page, perPage int) ([]Product, shared.Pagination, error) {
	products, total, err := s.repo.List(ctx, tenantID, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return products, shared.NewPagination(page, perPage, total), nil
}

// ActivateProduct makes a draft sellable. A pre-set initial quantity is
// pushed into the ledger as a manual adjustment at the suggested cost, which
// ends with a reconcile so the aggregate is exact.
func (s *Service) ActivateProduct(ctx context.Context, tenantID, productID int64, actorID int64) (Product, error) {
	product, err := s.repo.Get(ctx, tenantID, productID)
	if err != nil {
		return Product{}, err
	}
	if product.Status == ProductStatusActive {
		return Product{}, ErrAlreadyActive
	}
	product.Status = ProductStatusActive
	if err := s.repo.Update(ctx, product); err != nil {
		return Product{}, err
	}

	if product.InitialQty > 0 {
		if _, err := s.ledger.Adjust(ctx, tenantID, ledger.AdjustInput{
			ProductID:      productID,
			TargetQuantity: product.InitialQty,
			Reason:         fmt.Sprintf("activation of %s", product.SKU),
			UnitCost:       product.CostPrice,
			ActorID:        actorID,
		}); err != nil {
			return Product{}, err
		}
	} else if _, err := s.ledger.Reconcile(ctx, tenantID, productID); err != nil {
		return Product{}, err
	}
	if err := s.ledger.SetStockPolicy(ctx, tenantID, productID, product.MinStock, product.MaxStock); err != nil {
		return Product{}, err
	}
	s.logger.Info("product activated",
		slog.Int64("tenant_id", tenantID),
		slog.String("sku", product.SKU),
		slog.Int64("initial_qty", product.InitialQty))
	return product, nil
}

// ImportProducts creates and activates products in bulk. Each activation
// goes through the ledger adjustment path, so imported quantities are
// regular cost-bearing lots and the aggregates cannot drift.
func (s *Service) ImportProducts(ctx context.Context, tenantID int64, inputs []ProductInput, actorID int64) (ImportResult, error) {
	var result ImportResult
	for _, input := range inputs {
		product, err := s.CreateProduct(ctx, tenantID, input)
		if err != nil {
			return result, fmt.Errorf("import %s: %w", input.SKU, err)
		}
		result.Created++
		if _, err := s.ActivateProduct(ctx, tenantID, product.ID, actorID); err != nil {
			return result, fmt.Errorf("import %s: %w", input.SKU, err)
		}
		result.Activated++
		result.Reconciled++
	}
	return result, nil
}

func validateInput(input ProductInput) error {
	if input.SKU == "" || input.Name == "" {
		return fmt.Errorf("catalog: sku and name required")
	}
	if input.CostPrice.IsNegative() || input.SalePrice.IsNegative() {
		return fmt.Errorf("catalog: prices must be >= 0")
	}
	if input.InitialQty < 0 {
		return fmt.Errorf("catalog: initial quantity must be >= 0")
	}
	return nil
}
