package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/varejo-erp/varejo-erp/internal/shared"
)

// Repository persists products in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const productColumns = `id, tenant_id, sku, name, cost_price, sale_price, status, initial_qty, min_stock, max_stock, created_at, updated_at`

func (r *Repository) Insert(ctx context.Context, product Product) (Product, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO products (tenant_id, sku, name, cost_price, sale_price, status, initial_qty, min_stock, max_stock, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		product.TenantID, product.SKU, product.Name, product.CostPrice, product.SalePrice, string(product.Status),
		product.InitialQty, product.MinStock, product.MaxStock).
		Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return Product{}, ErrSKUConflict
		}
		return Product{}, err
	}
	return product, nil
}

func (r *Repository) Update(ctx context.Context, product Product) error {
	tag, err := r.pool.Exec(ctx, `UPDATE products SET sku=$3, name=$4, cost_price=$5, sale_price=$6, status=$7, initial_qty=$8, min_stock=$9, max_stock=$10, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`,
		product.TenantID, product.ID, product.SKU, product.Name, product.CostPrice, product.SalePrice,
		string(product.Status), product.InitialQty, product.MinStock, product.MaxStock)
	if err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return ErrSKUConflict
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, tenantID, productID int64) (Product, error) {
	var p Product
	var status string
	err := r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, productID).
		Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.CostPrice, &p.SalePrice, &status,
			&p.InitialQty, &p.MinStock, &p.MaxStock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	p.Status = ProductStatus(status)
	return p, nil
}

func (r *Repository) List(ctx context.Context, tenantID int64, page, perPage int) ([]Product, int, error) {
	page, perPage = shared.NormalizePage(page, perPage)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE tenant_id=$1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 ORDER BY sku ASC LIMIT $2 OFFSET $3`,
		tenantID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := []Product{}
	for rows.Next() {
		var p Product
		var status string
		if err := rows.Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.CostPrice, &p.SalePrice, &status,
			&p.InitialQty, &p.MinStock, &p.MaxStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		p.Status = ProductStatus(status)
		products = append(products, p)
	}
	return products, total, rows.Err()
}
