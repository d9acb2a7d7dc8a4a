package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists the cost ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const lotColumns = `i.id, i.entry_id, i.tenant_id, i.product_id, i.qty_received, i.qty_remaining, i.unit_cost, i.status, i.note, i.created_at`

// ListLots returns a product's active lots in FIFO order, read-only.
func (r *Repository) ListLots(ctx context.Context, tenantID, productID int64) ([]EntryItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+`
FROM entry_items i
JOIN stock_entries e ON e.id = i.entry_id
WHERE i.tenant_id=$1 AND i.product_id=$2 AND i.status='ACTIVE' AND e.status='ACTIVE'
ORDER BY e.received_at ASC, i.id ASC`, tenantID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLots(rows)
}

// GetEntry returns an active entry with its active lots.
func (r *Repository) GetEntry(ctx context.Context, tenantID, entryID int64) (StockEntry, []EntryItem, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT id, tenant_id, code, kind, supplier, received_at, total_cost, trip_ref, status, note, created_at
FROM stock_entries WHERE tenant_id=$1 AND id=$2 AND status='ACTIVE'`, tenantID, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockEntry{}, nil, ErrEntryNotFound
		}
		return StockEntry{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+lotColumns+`
FROM entry_items i
WHERE i.tenant_id=$1 AND i.entry_id=$2 AND i.status='ACTIVE'
ORDER BY i.id ASC`, tenantID, entryID)
	if err != nil {
		return StockEntry{}, nil, err
	}
	defer rows.Close()
	lots, err := scanLots(rows)
	if err != nil {
		return StockEntry{}, nil, err
	}
	return entry, lots, nil
}

// GetAggregate returns the cached quantity row for a product.
func (r *Repository) GetAggregate(ctx context.Context, tenantID, productID int64) (Aggregate, error) {
	var agg Aggregate
	err := r.pool.QueryRow(ctx, `SELECT tenant_id, product_id, quantity, min_stock, max_stock, updated_at
FROM inventory_aggregates WHERE tenant_id=$1 AND product_id=$2`, tenantID, productID).
		Scan(&agg.TenantID, &agg.ProductID, &agg.Quantity, &agg.MinStock, &agg.MaxStock, &agg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Aggregate{TenantID: tenantID, ProductID: productID}, ErrAggregateNotFound
		}
		return Aggregate{}, err
	}
	return agg, nil
}

// ListProductIDs lists every product known to the ledger or the aggregate
// cache of a tenant.
func (r *Repository) ListProductIDs(ctx context.Context, tenantID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT product_id FROM entry_items WHERE tenant_id=$1 AND status='ACTIVE'
UNION
SELECT product_id FROM inventory_aggregates WHERE tenant_id=$1
ORDER BY 1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListTenantIDs lists every tenant with ledger activity. Used by the
// nightly reconcile sweep.
func (r *Repository) ListTenantIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT tenant_id FROM entry_items
UNION
SELECT tenant_id FROM inventory_aggregates
ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetAggregatePolicy stores min/max stock policy without touching quantity.
func (r *Repository) SetAggregatePolicy(ctx context.Context, tenantID, productID, minStock, maxStock int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO inventory_aggregates (tenant_id, product_id, quantity, min_stock, max_stock, updated_at)
VALUES ($1,$2,0,$3,$4,NOW())
ON CONFLICT (tenant_id, product_id) DO UPDATE SET min_stock=EXCLUDED.min_stock, max_stock=EXCLUDED.max_stock, updated_at=NOW()`,
		tenantID, productID, minStock, maxStock)
	return err
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertEntry(ctx context.Context, entry StockEntry) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_entries (tenant_id, code, kind, supplier, received_at, total_cost, trip_ref, status, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		entry.TenantID, entry.Code, string(entry.Kind), entry.Supplier, entry.ReceivedAt, entry.TotalCost, nullString(entry.TripRef), string(entry.Status), entry.Note).Scan(&id)
	return id, err
}

func (r *txRepository) InsertEntryItems(ctx context.Context, entryID int64, lots []EntryItem) ([]EntryItem, error) {
	inserted := make([]EntryItem, 0, len(lots))
	for _, lot := range lots {
		row := r.tx.QueryRow(ctx, `INSERT INTO entry_items (entry_id, tenant_id, product_id, qty_received, qty_remaining, unit_cost, status, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id, created_at`,
			entryID, lot.TenantID, lot.ProductID, lot.QtyReceived, lot.QtyRemaining, lot.UnitCost, string(lot.Status), lot.Note)
		if err := row.Scan(&lot.ID, &lot.CreatedAt); err != nil {
			return nil, err
		}
		inserted = append(inserted, lot)
	}
	return inserted, nil
}

func (r *txRepository) UpdateEntryTotalCost(ctx context.Context, entryID int64, total decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_entries SET total_cost=$2 WHERE id=$1`, entryID, total)
	return err
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, tenantID, entryID int64) (StockEntry, error) {
	entry, err := scanEntry(r.tx.QueryRow(ctx, `SELECT id, tenant_id, code, kind, supplier, received_at, total_cost, trip_ref, status, note, created_at
FROM stock_entries WHERE tenant_id=$1 AND id=$2 AND status='ACTIVE' FOR UPDATE`, tenantID, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockEntry{}, ErrEntryNotFound
		}
		return StockEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) GetLotForUpdate(ctx context.Context, tenantID, lotID int64) (EntryItem, error) {
	lot, err := scanLot(r.tx.QueryRow(ctx, `SELECT `+lotColumns+`
FROM entry_items i
WHERE i.tenant_id=$1 AND i.id=$2 AND i.status='ACTIVE' FOR UPDATE`, tenantID, lotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EntryItem{}, ErrLotNotFound
		}
		return EntryItem{}, err
	}
	return lot, nil
}

func (r *txRepository) GetEntryLotsForUpdate(ctx context.Context, tenantID, entryID int64) ([]EntryItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lotColumns+`
FROM entry_items i
WHERE i.tenant_id=$1 AND i.entry_id=$2 AND i.status='ACTIVE'
ORDER BY i.id ASC
FOR UPDATE`, tenantID, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLots(rows)
}

// GetOpenLotsForUpdate locks and returns the FIFO allocation candidates:
// active, non-depleted lots ordered by parent receipt date, then lot id as
// the stable tie-break.
func (r *txRepository) GetOpenLotsForUpdate(ctx context.Context, tenantID, productID int64) ([]EntryItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lotColumns+`
FROM entry_items i
JOIN stock_entries e ON e.id = i.entry_id
WHERE i.tenant_id=$1 AND i.product_id=$2 AND i.status='ACTIVE' AND e.status='ACTIVE' AND i.qty_remaining > 0
ORDER BY e.received_at ASC, i.id ASC
FOR UPDATE OF i`, tenantID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLots(rows)
}

func (r *txRepository) UpdateLotRemaining(ctx context.Context, lotID, remaining int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE entry_items SET qty_remaining=$2 WHERE id=$1`, lotID, remaining)
	return err
}

func (r *txRepository) UpdateLot(ctx context.Context, lot EntryItem) error {
	_, err := r.tx.Exec(ctx, `UPDATE entry_items SET qty_received=$2, qty_remaining=$3, unit_cost=$4, note=$5 WHERE id=$1`,
		lot.ID, lot.QtyReceived, lot.QtyRemaining, lot.UnitCost, lot.Note)
	return err
}

func (r *txRepository) RetireEntry(ctx context.Context, entryID int64) error {
	if _, err := r.tx.Exec(ctx, `UPDATE stock_entries SET status='RETIRED' WHERE id=$1`, entryID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `UPDATE entry_items SET status='RETIRED' WHERE entry_id=$1`, entryID)
	return err
}

func (r *txRepository) SumRemaining(ctx context.Context, tenantID, productID int64) (int64, error) {
	var sum int64
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(i.qty_remaining), 0)
FROM entry_items i
JOIN stock_entries e ON e.id = i.entry_id
WHERE i.tenant_id=$1 AND i.product_id=$2 AND i.status='ACTIVE' AND e.status='ACTIVE'`, tenantID, productID).Scan(&sum)
	return sum, err
}

func (r *txRepository) GetAggregateForUpdate(ctx context.Context, tenantID, productID int64) (Aggregate, error) {
	var agg Aggregate
	err := r.tx.QueryRow(ctx, `SELECT tenant_id, product_id, quantity, min_stock, max_stock, updated_at
FROM inventory_aggregates WHERE tenant_id=$1 AND product_id=$2 FOR UPDATE`, tenantID, productID).
		Scan(&agg.TenantID, &agg.ProductID, &agg.Quantity, &agg.MinStock, &agg.MaxStock, &agg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Aggregate{TenantID: tenantID, ProductID: productID}, ErrAggregateNotFound
		}
		return Aggregate{}, err
	}
	return agg, nil
}

func (r *txRepository) UpsertAggregate(ctx context.Context, agg Aggregate) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO inventory_aggregates (tenant_id, product_id, quantity, min_stock, max_stock, updated_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (tenant_id, product_id) DO UPDATE SET quantity=EXCLUDED.quantity, updated_at=NOW()`,
		agg.TenantID, agg.ProductID, agg.Quantity, agg.MinStock, agg.MaxStock)
	return err
}

func scanEntry(row pgx.Row) (StockEntry, error) {
	var entry StockEntry
	var tripRef *string
	err := row.Scan(&entry.ID, &entry.TenantID, &entry.Code, &entry.Kind, &entry.Supplier, &entry.ReceivedAt,
		&entry.TotalCost, &tripRef, &entry.Status, &entry.Note, &entry.CreatedAt)
	if err != nil {
		return StockEntry{}, err
	}
	if tripRef != nil {
		entry.TripRef = *tripRef
	}
	return entry, nil
}

func scanLot(row pgx.Row) (EntryItem, error) {
	var lot EntryItem
	err := row.Scan(&lot.ID, &lot.EntryID, &lot.TenantID, &lot.ProductID, &lot.QtyReceived, &lot.QtyRemaining,
		&lot.UnitCost, &lot.Status, &lot.Note, &lot.CreatedAt)
	return lot, err
}

func scanLots(rows pgx.Rows) ([]EntryItem, error) {
	lots := []EntryItem{}
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
