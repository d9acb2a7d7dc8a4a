package catalog

import (
	"context"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/varejo-erp/varejo-erp/internal/ledger"
)

type memoryRepo struct {
	products map[int64]Product
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]Product)}
}

func (r *memoryRepo) Insert(ctx context.Context, product Product) (Product, error) {
	for _, existing := range r.products {
		if existing.TenantID == product.TenantID && existing.SKU == product.SKU {
			return Product{}, ErrSKUConflict
		}
	}
	r.nextID++
	product.ID = r.nextID
	r.products[product.ID] = product
	return product, nil
}

func (r *memoryRepo) Update(ctx context.Context, product Product) error {
	if _, ok := r.products[product.ID]; !ok {
		return ErrProductNotFound
	}
	r.products[product.ID] = product
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, tenantID, productID int64) (Product, error) {
	product, ok := r.products[productID]
	if !ok || product.TenantID != tenantID {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

func (r *memoryRepo) List(ctx context.Context, tenantID int64, page, perPage int) ([]Product, int, error) {
	var all []Product
	for _, p := range r.products {
		if p.TenantID == tenantID {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, len(all), nil
}

type fakeLedger struct {
	adjusts    []ledger.AdjustInput
	reconciles []int64
	policies   map[int64][2]int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{policies: make(map[int64][2]int64)}
}

func (f *fakeLedger) Adjust(ctx context.Context, tenantID int64, input ledger.AdjustInput) (ledger.AdjustResult, error) {
	f.adjusts = append(f.adjusts, input)
	return ledger.AdjustResult{ProductID: input.ProductID, Target: input.TargetQuantity, Delta: input.TargetQuantity}, nil
}

func (f *fakeLedger) Reconcile(ctx context.Context, tenantID, productID int64) (ledger.ReconcileResult, error) {
	f.reconciles = append(f.reconciles, productID)
	return ledger.ReconcileResult{ProductID: productID}, nil
}

func (f *fakeLedger) SetStockPolicy(ctx context.Context, tenantID, productID, minStock, maxStock int64) error {
	f.policies[productID] = [2]int64{minStock, maxStock}
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateProductStartsAsDraft(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, newFakeLedger(), nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, 1, ProductInput{
		SKU:       "CAM-001",
		Name:      "Camiseta",
		CostPrice: dec("35"),
		SalePrice: dec("79.90"),
	})
	require.NoError(t, err)
	require.Equal(t, ProductStatusDraft, product.Status)
	require.NotZero(t, product.ID)

	_, err = svc.CreateProduct(ctx, 1, ProductInput{SKU: "CAM-001", Name: "Duplicada"})
	require.ErrorIs(t, err, ErrSKUConflict)
}

func TestDefaultUnitCostComesFromCostPrice(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, newFakeLedger(), nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, 1, ProductInput{
		SKU:       "CAM-001",
		Name:      "Camiseta",
		CostPrice: dec("35"),
		SalePrice: dec("79.90"),
	})
	require.NoError(t, err)

	cost, err := svc.DefaultUnitCost(ctx, 1, product.ID)
	require.NoError(t, err)
	require.True(t, cost.Equal(dec("35")))

	_, err = svc.DefaultUnitCost(ctx, 1, 999)
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestActivateWithInitialQtyGoesThroughLedger(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	svc := NewService(repo, lgr, nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, 1, ProductInput{
		SKU:        "CAM-001",
		Name:       "Camiseta",
		CostPrice:  dec("35"),
		InitialQty: 20,
		MinStock:   5,
		MaxStock:   60,
	})
	require.NoError(t, err)

	activated, err := svc.ActivateProduct(ctx, 1, product.ID, 9)
	require.NoError(t, err)
	require.Equal(t, ProductStatusActive, activated.Status)

	require.Len(t, lgr.adjusts, 1)
	require.EqualValues(t, 20, lgr.adjusts[0].TargetQuantity)
	require.True(t, lgr.adjusts[0].UnitCost.Equal(dec("35")))
	require.Empty(t, lgr.reconciles)
	require.Equal(t, [2]int64{5, 60}, lgr.policies[product.ID])
}

func TestActivateWithoutInitialQtyReconciles(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	svc := NewService(repo, lgr, nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, 1, ProductInput{SKU: "CAM-002", Name: "Camiseta"})
	require.NoError(t, err)

	_, err = svc.ActivateProduct(ctx, 1, product.ID, 9)
	require.NoError(t, err)
	require.Empty(t, lgr.adjusts)
	require.Equal(t, []int64{product.ID}, lgr.reconciles)

	_, err = svc.ActivateProduct(ctx, 1, product.ID, 9)
	require.ErrorIs(t, err, ErrAlreadyActive)
}

func TestUpdateCostPriceNeverTouchesLedger(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	svc := NewService(repo, lgr, nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, 1, ProductInput{SKU: "CAM-003", Name: "Camiseta", CostPrice: dec("35")})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, 1, product.ID, ProductInput{SKU: "CAM-003", Name: "Camiseta", CostPrice: dec("42")})
	require.NoError(t, err)
	require.True(t, updated.CostPrice.Equal(dec("42")))
	require.Empty(t, lgr.adjusts)
	require.Empty(t, lgr.reconciles)
}

func TestImportCreatesAndActivates(t *testing.T) {
	repo := newMemoryRepo()
	lgr := newFakeLedger()
	svc := NewService(repo, lgr, nil)
	ctx := context.Background()

	result, err := svc.ImportProducts(ctx, 1, []ProductInput{
		{SKU: "CAM-001", Name: "Camiseta", CostPrice: dec("35"), InitialQty: 10},
		{SKU: "CAL-002", Name: "Calça", CostPrice: dec("45")},
	}, 9)
	require.NoError(t, err)
	require.Equal(t, 2, result.Created)
	require.Equal(t, 2, result.Activated)
	require.Len(t, lgr.adjusts, 1)
	require.Len(t, lgr.reconciles, 1)

	_, err = svc.ImportProducts(ctx, 1, []ProductInput{{SKU: "CAM-001", Name: "Repetida"}}, 9)
	require.ErrorIs(t, err, ErrSKUConflict)
}
