package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind enumerates the origin of a stock receipt.
type EntryKind string

const (
	// EntryKindPurchase marks a regular supplier purchase.
	EntryKindPurchase EntryKind = "PURCHASE"
	// EntryKindOnline marks goods bought through an online channel.
	EntryKindOnline EntryKind = "ONLINE"
	// EntryKindLocal marks goods bought locally.
	EntryKindLocal EntryKind = "LOCAL"
	// EntryKindAdjustment marks a synthetic entry created by a manual quantity adjustment.
	EntryKindAdjustment EntryKind = "ADJUSTMENT"
)

// Lifecycle is the row lifecycle of ledger records. Retired rows stay in the
// table for audit but are excluded from every stock query.
type Lifecycle string

const (
	LifecycleActive  Lifecycle = "ACTIVE"
	LifecycleRetired Lifecycle = "RETIRED"
)

// StockEntry models one purchase/receipt event. TotalCost is recomputed from
// its lots whenever they change.
type StockEntry struct {
	ID         int64
	TenantID   int64
	Code       string
	Kind       EntryKind
	Supplier   string
	ReceivedAt time.Time
	TotalCost  decimal.Decimal
	TripRef    string
	Status     Lifecycle
	Note       string
	CreatedAt  time.Time
}

// EntryItem is one lot: a batch of a single product received at a single
// cost. QtyRemaining is mutated only by allocation, reversal and
// reconciliation; QtyReceived and UnitCost are frozen once any unit of the
// lot has been consumed.
type EntryItem struct {
	ID           int64
	EntryID      int64
	TenantID     int64
	ProductID    int64
	QtyReceived  int64
	QtyRemaining int64
	UnitCost     decimal.Decimal
	Status       Lifecycle
	Note         string
	CreatedAt    time.Time
}

// Consumed returns how many units of the lot have left the ledger.
func (i EntryItem) Consumed() int64 {
	return i.QtyReceived - i.QtyRemaining
}

// Locked reports whether the lot has historical consumption and therefore
// refuses edits and parent-entry deletion.
func (i EntryItem) Locked() bool {
	return i.Consumed() > 0
}

// Depleted reports whether the lot has no stock left.
func (i EntryItem) Depleted() bool {
	return i.QtyRemaining == 0
}

// Aggregate caches the current on-hand quantity per product so reads never
// have to sum the lots. MinStock/MaxStock are policy fields independent of
// the ledger and survive reconciliation.
type Aggregate struct {
	TenantID  int64
	ProductID int64
	Quantity  int64
	MinStock  int64
	MaxStock  int64
	UpdatedAt time.Time
}

// Allocation is one element of the provenance list produced by Allocate:
// which lot supplied how many units at what cost. The slice is ordered
// oldest lot first and is immutable once persisted.
type Allocation struct {
	EntryID     int64           `json:"entry_id"`
	EntryItemID int64           `json:"entry_item_id"`
	QtyTaken    int64           `json:"quantity_taken"`
	UnitCost    decimal.Decimal `json:"unit_cost"`
	TotalCost   decimal.Decimal `json:"total_cost"`
	EntryCode   string          `json:"entry_code"`
	EntryDate   time.Time       `json:"entry_date"`
}

// LotInput describes one lot of a new stock entry.
type LotInput struct {
	ProductID   int64
	QtyReceived int64
	UnitCost    decimal.Decimal
	Note        string
}

// EntryInput describes a new stock entry with its lots.
type EntryInput struct {
	Code       string
	Kind       EntryKind
	Supplier   string
	ReceivedAt time.Time
	TripRef    string
	Note       string
	Lots       []LotInput
}

// EntryItemChanges carries the editable fields of an unlocked lot. Nil
// pointers leave the field untouched.
type EntryItemChanges struct {
	QtyReceived *int64
	UnitCost    *decimal.Decimal
	Note        *string
}

// AdjustInput describes a manual quantity adjustment towards a target
// on-hand quantity.
type AdjustInput struct {
	ProductID      int64
	TargetQuantity int64
	Reason         string
	UnitCost       decimal.Decimal
	ActorID        int64
}

// AdjustResult reports what an adjustment did.
type AdjustResult struct {
	ProductID int64
	Previous  int64
	Target    int64
	Delta     int64
	// EntryID is set when a positive delta created a synthetic adjustment entry.
	EntryID int64
	// Released holds the provenance of a negative delta, empty otherwise.
	Released []Allocation
}

// ReconcileResult reports one aggregate repair.
type ReconcileResult struct {
	ProductID  int64
	Previous   int64
	Recomputed int64
	Created    bool
	Updated    bool
}

// Drift reports whether the cached aggregate disagreed with the ledger.
// Creating the row for a product that never had one is not drift unless the
// recomputed quantity differs from the zero the caller would have read.
func (r ReconcileResult) Drift() bool {
	return r.Previous != r.Recomputed
}

// Sentinel errors surfaced by the ledger. Every failure leaves the ledger
// and the aggregate untouched.
var (
	// ErrInsufficientStock indicates the ledger cannot supply the requested quantity.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
	// ErrLotLocked indicates an edit on a lot with historical consumption.
	ErrLotLocked = errors.New("ledger: lot has consumption history and is locked")
	// ErrEntryHasSales indicates a delete of an entry whose lots were consumed.
	ErrEntryHasSales = errors.New("ledger: entry has consumed lots")
	// ErrInvalidAdjustment indicates a negative target quantity or unit cost.
	ErrInvalidAdjustment = errors.New("ledger: invalid adjustment")
	// ErrOverRestore indicates a reversal would exceed a lot's received quantity.
	ErrOverRestore = errors.New("ledger: reversal exceeds received quantity")
	// ErrEntryNotFound indicates a missing or retired stock entry.
	ErrEntryNotFound = errors.New("ledger: entry not found")
	// ErrLotNotFound indicates a missing or retired lot.
	ErrLotNotFound = errors.New("ledger: lot not found")
	// ErrAggregateNotFound indicates a missing aggregate row.
	ErrAggregateNotFound = errors.New("ledger: aggregate not found")
)

// InsufficientStockError carries how much the ledger could have supplied.
type InsufficientStockError struct {
	ProductID int64
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("ledger: insufficient stock for product %d: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

// Unwrap makes errors.Is(err, ErrInsufficientStock) work.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// OverRestoreError identifies the lot a reversal tried to overfill.
type OverRestoreError struct {
	EntryItemID int64
	QtyReceived int64
	WouldHold   int64
}

func (e *OverRestoreError) Error() string {
	return fmt.Sprintf("ledger: reversal would leave lot %d holding %d of %d received", e.EntryItemID, e.WouldHold, e.QtyReceived)
}

func (e *OverRestoreError) Unwrap() error {
	return ErrOverRestore
}
