package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/varejo-erp/varejo-erp/internal/ledger"
)

// SaleStatus is the lifecycle of a sale.
type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "COMPLETED"
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// Sale models one completed sale.
type Sale struct {
	ID          int64
	TenantID    int64
	Number      string
	CustomerRef string
	Status      SaleStatus
	Total       decimal.Decimal
	CreatedBy   int64
	CreatedAt   time.Time
	Lines       []SaleLine
}

// SaleLine is one sold product. Allocations holds the FIFO provenance
// returned by the ledger at sale time; it is persisted verbatim and never
// recomputed. ReturnedQty tracks how many units of the line were already
// restored to stock, which keeps successive partial returns from touching
// the same units twice.
type SaleLine struct {
	ID          int64
	SaleID      int64
	ProductID   int64
	Qty         int64
	UnitPrice   decimal.Decimal
	Allocations []ledger.Allocation
	ReturnedQty int64
}

// Revenue returns the gross revenue of the line.
func (l SaleLine) Revenue() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Qty))
}

// Outstanding returns how many units have not been returned yet.
func (l SaleLine) Outstanding() int64 {
	return l.Qty - l.ReturnedQty
}

// LineInput describes one line of a new sale.
type LineInput struct {
	ProductID int64
	Qty       int64
	UnitPrice decimal.Decimal
}

// SaleInput describes a new sale.
type SaleInput struct {
	Number      string
	CustomerRef string
	Lines       []LineInput
	ActorID     int64
}

// LineCost is the read-only cost report of one line.
type LineCost struct {
	LineID    int64           `json:"line_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
	CMV       decimal.Decimal `json:"cmv"`
	Margin    decimal.Decimal `json:"margin"`
}

// CostReport aggregates per-line costs for one sale.
type CostReport struct {
	SaleID  int64           `json:"sale_id"`
	Revenue decimal.Decimal `json:"revenue"`
	CMV     decimal.Decimal `json:"cmv"`
	Margin  decimal.Decimal `json:"margin"`
	Lines   []LineCost      `json:"lines"`
}

// ErrSaleNotFound indicates a missing sale.
var ErrSaleNotFound = errors.New("sales: sale not found")

// ErrLineNotFound indicates a missing sale line.
var ErrLineNotFound = errors.New("sales: line not found")

// ErrSaleCancelled indicates a mutation against a cancelled sale.
var ErrSaleCancelled = errors.New("sales: sale already cancelled")

// ErrReturnExceedsSold indicates a return beyond the unreturned balance.
var ErrReturnExceedsSold = errors.New("sales: return exceeds unreturned quantity")

// ErrDuplicateSale indicates a sale number replayed with a different payload.
var ErrDuplicateSale = errors.New("sales: duplicate sale number")
