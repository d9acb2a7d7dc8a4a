package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/varejo-erp/varejo-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListLots(ctx context.Context, tenantID, productID int64) ([]EntryItem, error)
	GetEntry(ctx context.Context, tenantID, entryID int64) (StockEntry, []EntryItem, error)
	GetAggregate(ctx context.Context, tenantID, productID int64) (Aggregate, error)
	ListProductIDs(ctx context.Context, tenantID int64) ([]int64, error)
	SetAggregatePolicy(ctx context.Context, tenantID, productID, minStock, maxStock int64) error
}

// TxRepository exposes the transactional operations used by the service.
// Every *ForUpdate method takes row locks that live until the enclosing
// transaction commits, which is how concurrent allocations against the same
// product are serialized.
type TxRepository interface {
	InsertEntry(ctx context.Context, entry StockEntry) (int64, error)
	InsertEntryItems(ctx context.Context, entryID int64, lots []EntryItem) ([]EntryItem, error)
	UpdateEntryTotalCost(ctx context.Context, entryID int64, total decimal.Decimal) error
	GetEntryForUpdate(ctx context.Context, tenantID, entryID int64) (StockEntry, error)
	GetLotForUpdate(ctx context.Context, tenantID, lotID int64) (EntryItem, error)
	GetEntryLotsForUpdate(ctx context.Context, tenantID, entryID int64) ([]EntryItem, error)
	GetOpenLotsForUpdate(ctx context.Context, tenantID, productID int64) ([]EntryItem, error)
	UpdateLotRemaining(ctx context.Context, lotID, remaining int64) error
	UpdateLot(ctx context.Context, lot EntryItem) error
	RetireEntry(ctx context.Context, entryID int64) error
	SumRemaining(ctx context.Context, tenantID, productID int64) (int64, error)
	GetAggregateForUpdate(ctx context.Context, tenantID, productID int64) (Aggregate, error)
	UpsertAggregate(ctx context.Context, agg Aggregate) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort receives ledger domain metrics. Implementations must be safe
// for concurrent use.
type MetricsPort interface {
	AllocationPosted(qty int64)
	AllocationRejected()
	ReconcileDrift()
}

// EventHandler is notified after a committed mutation changed a product's
// aggregate, e.g. to invalidate read caches.
type EventHandler interface {
	HandleAggregateChanged(ctx context.Context, evt AggregateChangedEvent) error
}

// Service coordinates the FIFO cost ledger. All mutating operations run as a
// single transaction: either every lot mutation and the aggregate update
// commit together, or none do.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	events  EventHandler
	logger  *slog.Logger
}

// NewService builds a Service. audit, metrics and events may be nil.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, events EventHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, events: events, logger: logger}
}

// CreateEntry records a new receipt: one StockEntry with one or more lots,
// each starting with QtyRemaining == QtyReceived. The per-product aggregates
// are incremented in the same transaction.
func (s *Service) CreateEntry(ctx context.Context, tenantID int64, input EntryInput, actorID int64) (StockEntry, []EntryItem, error) {
	if tenantID == 0 {
		return StockEntry{}, nil, fmt.Errorf("ledger: tenant required")
	}
	if input.Code == "" {
		return StockEntry{}, nil, fmt.Errorf("ledger: entry code required")
	}
	if len(input.Lots) == 0 {
		return StockEntry{}, nil, fmt.Errorf("ledger: entry requires at least one lot")
	}
	for _, lot := range input.Lots {
		if lot.ProductID == 0 {
			return StockEntry{}, nil, fmt.Errorf("ledger: lot requires a product")
		}
		if lot.QtyReceived <= 0 {
			return StockEntry{}, nil, fmt.Errorf("%w: lot quantity must be positive", ErrInvalidAdjustment)
		}
		if lot.UnitCost.IsNegative() {
			return StockEntry{}, nil, fmt.Errorf("%w: lot unit cost must be >= 0", ErrInvalidAdjustment)
		}
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	kind := input.Kind
	if kind == "" {
		kind = EntryKindPurchase
	}

	entry := StockEntry{
		TenantID:   tenantID,
		Code:       input.Code,
		Kind:       kind,
		Supplier:   input.Supplier,
		ReceivedAt: receivedAt,
		TotalCost:  entryTotal(input.Lots),
		TripRef:    input.TripRef,
		Status:     LifecycleActive,
		Note:       input.Note,
	}

	var lots []EntryItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entryID, err := tx.InsertEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry.ID = entryID

		pending := make([]EntryItem, 0, len(input.Lots))
		for _, lot := range input.Lots {
			pending = append(pending, EntryItem{
				EntryID:      entryID,
				TenantID:     tenantID,
				ProductID:    lot.ProductID,
				QtyReceived:  lot.QtyReceived,
				QtyRemaining: lot.QtyReceived,
				UnitCost:     lot.UnitCost,
				Status:       LifecycleActive,
				Note:         lot.Note,
			})
		}
		lots, err = tx.InsertEntryItems(ctx, entryID, pending)
		if err != nil {
			return err
		}
		for productID, qty := range receivedPerProduct(lots) {
			if err := s.bumpAggregate(ctx, tx, tenantID, productID, qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return StockEntry{}, nil, err
	}

	s.recordAudit(ctx, actorID, "ledger:entry_create", "stock_entry", entry.Code, map[string]any{
		"tenant_id": tenantID,
		"kind":      string(entry.Kind),
		"lots":      len(lots),
	})
	s.notifyProducts(ctx, tenantID, receivedPerProduct(lots))
	return entry, lots, nil
}

// EditEntryItem changes quantity, cost or note of a lot that has never been
// consumed. Locked lots (any historical reduction, sale or manual) are
// refused with ErrLotLocked so historical CMV can never change.
func (s *Service) EditEntryItem(ctx context.Context, tenantID, lotID int64, changes EntryItemChanges, actorID int64) (EntryItem, error) {
	if changes.QtyReceived != nil && *changes.QtyReceived <= 0 {
		return EntryItem{}, fmt.Errorf("%w: lot quantity must be positive", ErrInvalidAdjustment)
	}
	if changes.UnitCost != nil && changes.UnitCost.IsNegative() {
		return EntryItem{}, fmt.Errorf("%w: lot unit cost must be >= 0", ErrInvalidAdjustment)
	}

	var updated EntryItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, tenantID, lotID)
		if err != nil {
			return err
		}
		if lot.Locked() {
			return ErrLotLocked
		}
		qtyDelta := int64(0)
		if changes.QtyReceived != nil {
			qtyDelta = *changes.QtyReceived - lot.QtyReceived
			lot.QtyReceived = *changes.QtyReceived
			lot.QtyRemaining = *changes.QtyReceived
		}
		if changes.UnitCost != nil {
			lot.UnitCost = *changes.UnitCost
		}
		if changes.Note != nil {
			lot.Note = *changes.Note
		}
		if err := tx.UpdateLot(ctx, lot); err != nil {
			return err
		}
		siblings, err := tx.GetEntryLotsForUpdate(ctx, tenantID, lot.EntryID)
		if err != nil {
			return err
		}
		if err := tx.UpdateEntryTotalCost(ctx, lot.EntryID, lotsTotal(siblings)); err != nil {
			return err
		}
		if qtyDelta != 0 {
			if err := s.bumpAggregate(ctx, tx, tenantID, lot.ProductID, qtyDelta); err != nil {
				return err
			}
		}
		updated = lot
		return nil
	})
	if err != nil {
		return EntryItem{}, err
	}

	s.recordAudit(ctx, actorID, "ledger:lot_edit", "entry_item", fmt.Sprintf("%d", lotID), map[string]any{
		"tenant_id":  tenantID,
		"product_id": updated.ProductID,
	})
	s.notifyProducts(ctx, tenantID, map[int64]int64{updated.ProductID: 0})
	return updated, nil
}

// DeleteEntry soft-retires an entry and all its lots. Refused with
// ErrEntryHasSales if any lot has historical consumption; entries are never
// hard-deleted.
func (s *Service) DeleteEntry(ctx context.Context, tenantID, entryID int64, actorID int64) error {
	touched := map[int64]int64{}
	var code string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		code = entry.Code
		lots, err := tx.GetEntryLotsForUpdate(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		for _, lot := range lots {
			if lot.Locked() {
				return ErrEntryHasSales
			}
		}
		if err := tx.RetireEntry(ctx, entryID); err != nil {
			return err
		}
		for _, lot := range lots {
			touched[lot.ProductID] += lot.QtyRemaining
		}
		for productID, qty := range touched {
			if err := s.bumpAggregate(ctx, tx, tenantID, productID, -qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actorID, "ledger:entry_delete", "stock_entry", code, map[string]any{
		"tenant_id": tenantID,
		"entry_id":  entryID,
	})
	s.notifyProducts(ctx, tenantID, touched)
	return nil
}

// GetEntry returns an active entry with its lots.
func (s *Service) GetEntry(ctx context.Context, tenantID, entryID int64) (StockEntry, []EntryItem, error) {
	return s.repo.GetEntry(ctx, tenantID, entryID)
}

// ListLots lists a product's active lots in FIFO order, read-only.
func (s *Service) ListLots(ctx context.Context, tenantID, productID int64) ([]EntryItem, error) {
	return s.repo.ListLots(ctx, tenantID, productID)
}

// GetAggregate returns the cached on-hand quantity for a product.
func (s *Service) GetAggregate(ctx context.Context, tenantID, productID int64) (Aggregate, error) {
	return s.repo.GetAggregate(ctx, tenantID, productID)
}

// SetStockPolicy stores the min/max stock policy of a product. Policy
// fields are independent of the ledger and are never touched by
// reconciliation.
func (s *Service) SetStockPolicy(ctx context.Context, tenantID, productID, minStock, maxStock int64) error {
	if minStock < 0 || maxStock < 0 || (maxStock > 0 && maxStock < minStock) {
		return fmt.Errorf("%w: invalid stock policy", ErrInvalidAdjustment)
	}
	return s.repo.SetAggregatePolicy(ctx, tenantID, productID, minStock, maxStock)
}

// bumpAggregate applies a signed quantity delta to the aggregate row under
// its row lock, creating the row when absent.
func (s *Service) bumpAggregate(ctx context.Context, tx TxRepository, tenantID, productID, delta int64) error {
	agg, err := tx.GetAggregateForUpdate(ctx, tenantID, productID)
	if err != nil {
		if !errors.Is(err, ErrAggregateNotFound) {
			return err
		}
		agg = Aggregate{TenantID: tenantID, ProductID: productID}
	}
	agg.Quantity += delta
	return tx.UpsertAggregate(ctx, agg)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) notifyProducts(ctx context.Context, tenantID int64, perProduct map[int64]int64) {
	if s.events == nil {
		return
	}
	for productID := range perProduct {
		evt := NewAggregateChangedEvent(tenantID, productID)
		if err := s.events.HandleAggregateChanged(ctx, evt); err != nil {
			s.logger.Warn("aggregate change event failed",
				slog.Int64("product_id", productID), slog.Any("error", err))
		}
	}
}

func entryTotal(lots []LotInput) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range lots {
		total = total.Add(lot.UnitCost.Mul(decimal.NewFromInt(lot.QtyReceived)))
	}
	return total
}

func lotsTotal(lots []EntryItem) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range lots {
		if lot.Status != LifecycleActive {
			continue
		}
		total = total.Add(lot.UnitCost.Mul(decimal.NewFromInt(lot.QtyReceived)))
	}
	return total
}

func receivedPerProduct(lots []EntryItem) map[int64]int64 {
	per := make(map[int64]int64, len(lots))
	for _, lot := range lots {
		per[lot.ProductID] += lot.QtyReceived
	}
	return per
}
