package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/varejo-erp/varejo-erp/internal/ledger"
	"github.com/varejo-erp/varejo-erp/internal/shared"
)

// RepositoryPort abstracts sale persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, sale Sale) (Sale, error)
	Get(ctx context.Context, tenantID, saleID int64) (Sale, error)
	List(ctx context.Context, tenantID int64, page, perPage int) ([]Sale, int, error)
	MarkCancelled(ctx context.Context, tenantID, saleID int64) error
	UpdateLineReturned(ctx context.Context, tenantID, lineID, returnedQty int64) error
}

// LedgerPort is the slice of the inventory ledger a sale drives: consuming
// stock at sale time and restoring the exact consumed units on return.
type LedgerPort interface {
	Allocate(ctx context.Context, tenantID, productID, qty int64) ([]ledger.Allocation, error)
	Reverse(ctx context.Context, tenantID int64, records []ledger.Allocation, actorID int64) error
}

// IdempotencyPort guards sale numbers against replay.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records sale mutations.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates sale operations against the ledger.
type Service struct {
	repo   RepositoryPort
	ledger LedgerPort
	idem   IdempotencyPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service. idem and audit may be nil in tests.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, idem IdempotencyPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledgerPort, idem: idem, audit: audit, logger: logger}
}

// CreateSale allocates stock for every line, then persists the sale with
// each line's allocation records attached. Allocation is all-or-nothing per
// line; if any line fails, or persistence fails, every allocation already
// taken is reversed so stock ends where it started.
func (s *Service) CreateSale(ctx context.Context, tenantID int64, input SaleInput) (Sale, error) {
	if err := validateSaleInput(input); err != nil {
		return Sale{}, err
	}

	idemKey := fmt.Sprintf("sale:%d:%s", tenantID, input.Number)
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idemKey, "sales"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Sale{}, ErrDuplicateSale
			}
			return Sale{}, err
		}
	}

	sale := Sale{
		TenantID:    tenantID,
		Number:      input.Number,
		CustomerRef: input.CustomerRef,
		Status:      SaleStatusCompleted,
		Total:       decimal.Zero,
		CreatedBy:   input.ActorID,
		CreatedAt:   time.Now(),
	}

	var allocated []SaleLine
	fail := func(cause error) (Sale, error) {
		for _, line := range allocated {
			if err := s.ledger.Reverse(ctx, tenantID, line.Allocations, input.ActorID); err != nil {
				s.logger.Error("sale compensation reverse failed",
					slog.Int64("tenant_id", tenantID),
					slog.Int64("product_id", line.ProductID),
					slog.String("error", err.Error()))
			}
		}
		if s.idem != nil {
			if err := s.idem.Delete(ctx, idemKey); err != nil {
				s.logger.Error("sale idempotency rollback failed", slog.String("error", err.Error()))
			}
		}
		return Sale{}, cause
	}

	for _, in := range input.Lines {
		records, err := s.ledger.Allocate(ctx, tenantID, in.ProductID, in.Qty)
		if err != nil {
			return fail(err)
		}
		line := SaleLine{
			ProductID:   in.ProductID,
			Qty:         in.Qty,
			UnitPrice:   in.UnitPrice,
			Allocations: records,
		}
		allocated = append(allocated, line)
		sale.Total = sale.Total.Add(line.Revenue())
	}
	sale.Lines = allocated

	stored, err := s.repo.Insert(ctx, sale)
	if err != nil {
		return fail(err)
	}

	s.recordAudit(ctx, input.ActorID, "sale.create", stored.ID, map[string]any{
		"number": stored.Number,
		"lines":  len(stored.Lines),
		"total":  stored.Total.String(),
	})
	return stored, nil
}

// CancelSale reverses the unreturned remainder of every line and marks the
// sale cancelled. Units already restored by partial returns are skipped, so
// cancelling after a return never over-restores a lot.
func (s *Service) CancelSale(ctx context.Context, tenantID, saleID, actorID int64) error {
	sale, err := s.repo.Get(ctx, tenantID, saleID)
	if err != nil {
		return err
	}
	if sale.Status == SaleStatusCancelled {
		return ErrSaleCancelled
	}

	for _, line := range sale.Lines {
		remainder := ledger.SkipUnits(line.Allocations, line.ReturnedQty)
		if len(remainder) == 0 {
			continue
		}
		if err := s.ledger.Reverse(ctx, tenantID, remainder, actorID); err != nil {
			return fmt.Errorf("sales: cancel line %d: %w", line.ID, err)
		}
		if err := s.repo.UpdateLineReturned(ctx, tenantID, line.ID, line.Qty); err != nil {
			return err
		}
	}

	if err := s.repo.MarkCancelled(ctx, tenantID, saleID); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "sale.cancel", saleID, map[string]any{"number": sale.Number})
	return nil
}

// ReturnLine restores qty units of one line in the same FIFO order they
// were consumed. Successive returns continue where the previous one
// stopped: the first return restores the oldest units, the next return the
// ones after them.
func (s *Service) ReturnLine(ctx context.Context, tenantID, saleID, lineID, qty, actorID int64) error {
	if qty <= 0 {
		return fmt.Errorf("sales: return quantity must be positive, got %d", qty)
	}
	sale, err := s.repo.Get(ctx, tenantID, saleID)
	if err != nil {
		return err
	}
	if sale.Status == SaleStatusCancelled {
		return ErrSaleCancelled
	}

	line, ok := findLine(sale.Lines, lineID)
	if !ok {
		return ErrLineNotFound
	}
	if qty > line.Outstanding() {
		return fmt.Errorf("%w: %d requested, %d outstanding", ErrReturnExceedsSold, qty, line.Outstanding())
	}

	remainder := ledger.SkipUnits(line.Allocations, line.ReturnedQty)
	slice, err := ledger.ReturnSlice(remainder, qty)
	if err != nil {
		return err
	}
	if err := s.ledger.Reverse(ctx, tenantID, slice, actorID); err != nil {
		return err
	}
	if err := s.repo.UpdateLineReturned(ctx, tenantID, lineID, line.ReturnedQty+qty); err != nil {
		return err
	}

	s.recordAudit(ctx, actorID, "sale.return", saleID, map[string]any{
		"line_id":  lineID,
		"quantity": qty,
	})
	return nil
}

// GetSale loads one sale with its lines.
func (s *Service) GetSale(ctx context.Context, tenantID, saleID int64) (Sale, error) {
	return s.repo.Get(ctx, tenantID, saleID)
}

// ListSales pages through a tenant's sales.
func (s *Service) ListSales(ctx context.Context, tenantID int64, page, perPage int) ([]Sale, shared.Pagination, error) {
	page, perPage = shared.NormalizePage(page, perPage)
	items, total, err := s.repo.List(ctx, tenantID, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}

// CostReport computes revenue, CMV and margin per line from the persisted
// allocation records. It is a pure read: stored records only, no lot reads,
// no mutation.
func (s *Service) CostReport(ctx context.Context, tenantID, saleID int64) (CostReport, error) {
	sale, err := s.repo.Get(ctx, tenantID, saleID)
	if err != nil {
		return CostReport{}, err
	}

	report := CostReport{
		SaleID:  sale.ID,
		Revenue: decimal.Zero,
		CMV:     decimal.Zero,
	}
	for _, line := range sale.Lines {
		revenue := line.Revenue()
		cmv := ledger.CMV(line.Allocations)
		report.Lines = append(report.Lines, LineCost{
			LineID:    line.ID,
			ProductID: line.ProductID,
			Quantity:  line.Qty,
			Revenue:   revenue,
			CMV:       cmv,
			Margin:    ledger.Margin(revenue, cmv),
		})
		report.Revenue = report.Revenue.Add(revenue)
		report.CMV = report.CMV.Add(cmv)
	}
	report.Margin = ledger.Margin(report.Revenue, report.CMV)
	return report, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, saleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "sale",
		EntityID: fmt.Sprintf("%d", saleID),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Error("audit record failed", slog.String("action", action), slog.String("error", err.Error()))
	}
}

func validateSaleInput(input SaleInput) error {
	if input.Number == "" {
		return errors.New("sales: sale number required")
	}
	if len(input.Lines) == 0 {
		return errors.New("sales: at least one line required")
	}
	for i, line := range input.Lines {
		if line.ProductID <= 0 {
			return fmt.Errorf("sales: line %d: product id required", i)
		}
		if line.Qty <= 0 {
			return fmt.Errorf("sales: line %d: quantity must be positive", i)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("sales: line %d: unit price must not be negative", i)
		}
	}
	return nil
}

func findLine(lines []SaleLine, lineID int64) (SaleLine, bool) {
	for _, line := range lines {
		if line.ID == lineID {
			return line, true
		}
	}
	return SaleLine{}, false
}
