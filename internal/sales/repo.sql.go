package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/varejo-erp/varejo-erp/internal/platform/db"
)

// Repository persists sales in PostgreSQL. Allocation records are stored as
// JSONB per line, straight from the ledger, so cost reports never need to
// touch the lot tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a sale and its lines atomically.
func (r *Repository) Insert(ctx context.Context, sale Sale) (Sale, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO sales (tenant_id, number, customer_ref, status, total, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id, created_at`,
			sale.TenantID, sale.Number, sale.CustomerRef, string(sale.Status), sale.Total, sale.CreatedBy).
			Scan(&sale.ID, &sale.CreatedAt)
		if err != nil {
			return err
		}
		for i := range sale.Lines {
			line := &sale.Lines[i]
			line.SaleID = sale.ID
			payload, err := json.Marshal(line.Allocations)
			if err != nil {
				return fmt.Errorf("sales: marshal allocations: %w", err)
			}
			err = tx.QueryRow(ctx, `INSERT INTO sale_lines (sale_id, product_id, qty, unit_price, allocations, returned_qty)
VALUES ($1,$2,$3,$4,$5,0) RETURNING id`,
				line.SaleID, line.ProductID, line.Qty, line.UnitPrice, payload).Scan(&line.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Sale{}, ErrDuplicateSale
		}
		return Sale{}, err
	}
	return sale, nil
}

// Get loads a sale with its lines.
func (r *Repository) Get(ctx context.Context, tenantID, saleID int64) (Sale, error) {
	var sale Sale
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, number, customer_ref, status, total, created_by, created_at
FROM sales WHERE tenant_id=$1 AND id=$2`, tenantID, saleID).
		Scan(&sale.ID, &sale.TenantID, &sale.Number, &sale.CustomerRef, &status, &sale.Total, &sale.CreatedBy, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	sale.Status = SaleStatus(status)

	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, qty, unit_price, allocations, returned_qty
FROM sale_lines WHERE sale_id=$1 ORDER BY id ASC`, sale.ID)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line SaleLine
		var payload []byte
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.Qty, &line.UnitPrice, &payload, &line.ReturnedQty); err != nil {
			return Sale{}, err
		}
		if err := json.Unmarshal(payload, &line.Allocations); err != nil {
			return Sale{}, fmt.Errorf("sales: unmarshal allocations: %w", err)
		}
		sale.Lines = append(sale.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// List pages through a tenant's sales, newest first, without lines.
func (r *Repository) List(ctx context.Context, tenantID int64, page, perPage int) ([]Sale, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE tenant_id=$1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, number, customer_ref, status, total, created_by, created_at
FROM sales WHERE tenant_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		tenantID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Sale
	for rows.Next() {
		var sale Sale
		var status string
		if err := rows.Scan(&sale.ID, &sale.TenantID, &sale.Number, &sale.CustomerRef, &status, &sale.Total, &sale.CreatedBy, &sale.CreatedAt); err != nil {
			return nil, 0, err
		}
		sale.Status = SaleStatus(status)
		items = append(items, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// MarkCancelled flips the sale status.
func (r *Repository) MarkCancelled(ctx context.Context, tenantID, saleID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sales SET status=$3 WHERE tenant_id=$1 AND id=$2`,
		tenantID, saleID, string(SaleStatusCancelled))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

// UpdateLineReturned records how many units of a line are back in stock.
func (r *Repository) UpdateLineReturned(ctx context.Context, tenantID, lineID, returnedQty int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE sale_lines l SET returned_qty=$3
FROM sales s WHERE l.id=$2 AND l.sale_id=s.id AND s.tenant_id=$1`,
		tenantID, lineID, returnedQty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}
