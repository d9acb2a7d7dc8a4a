package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Reverse undoes a previous allocation: every record's quantity is restored
// to the lot it was taken from, and the aggregate is incremented by the
// summed quantity, all in one transaction. A record whose restoration would
// push a lot above its received quantity fails the whole call with
// OverRestoreError and nothing is mutated. Reversal is not idempotent; the
// caller tracks which records have already been reversed.
func (s *Service) Reverse(ctx context.Context, tenantID int64, records []Allocation, actorID int64) error {
	if tenantID == 0 {
		return fmt.Errorf("ledger: tenant required")
	}
	if len(records) == 0 {
		return nil
	}

	touched := map[int64]int64{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, rec := range records {
			if rec.QtyTaken <= 0 {
				return fmt.Errorf("%w: reversal quantity must be positive", ErrInvalidAdjustment)
			}
			lot, err := tx.GetLotForUpdate(ctx, tenantID, rec.EntryItemID)
			if err != nil {
				return err
			}
			restored := lot.QtyRemaining + rec.QtyTaken
			if restored > lot.QtyReceived {
				return &OverRestoreError{EntryItemID: lot.ID, QtyReceived: lot.QtyReceived, WouldHold: restored}
			}
			if err := tx.UpdateLotRemaining(ctx, lot.ID, restored); err != nil {
				return err
			}
			touched[lot.ProductID] += rec.QtyTaken
		}
		for productID, qty := range touched {
			if err := s.bumpAggregate(ctx, tx, tenantID, productID, qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("allocation reversed",
		slog.Int64("tenant_id", tenantID),
		slog.Int("records", len(records)))
	s.recordAudit(ctx, actorID, "ledger:reverse", "allocation", fmt.Sprintf("%d", records[0].EntryItemID), map[string]any{
		"tenant_id": tenantID,
		"records":   len(records),
	})
	s.notifyProducts(ctx, tenantID, touched)
	return nil
}

// SkipUnits drops the first n units from a provenance list, splitting a
// record when n falls inside it. Callers use it to step past units that
// were already returned before deriving the next return slice.
func SkipUnits(records []Allocation, n int64) []Allocation {
	if n <= 0 {
		return records
	}
	out := make([]Allocation, 0, len(records))
	remaining := n
	for _, rec := range records {
		if remaining >= rec.QtyTaken {
			remaining -= rec.QtyTaken
			continue
		}
		if remaining > 0 {
			part := rec
			part.QtyTaken = rec.QtyTaken - remaining
			part.TotalCost = rec.UnitCost.Mul(decimal.NewFromInt(part.QtyTaken))
			out = append(out, part)
			remaining = 0
			continue
		}
		out = append(out, rec)
	}
	return out
}

// ReturnSlice derives the sub-allocation for a partial return of qty units
// out of a previously persisted provenance list. The walk mirrors FIFO: the
// oldest-consumed lot is restored first, so returning fewer units than were
// sold restores exactly the oldest units. Records already returned must be
// trimmed by the caller before calling this.
func ReturnSlice(records []Allocation, qty int64) ([]Allocation, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: return quantity must be positive", ErrInvalidAdjustment)
	}
	var total int64
	for _, rec := range records {
		total += rec.QtyTaken
	}
	if qty > total {
		return nil, fmt.Errorf("%w: return of %d exceeds allocated %d", ErrInvalidAdjustment, qty, total)
	}

	out := make([]Allocation, 0, len(records))
	remaining := qty
	for _, rec := range records {
		if remaining == 0 {
			break
		}
		take := rec.QtyTaken
		if take > remaining {
			take = remaining
		}
		part := rec
		part.QtyTaken = take
		part.TotalCost = rec.UnitCost.Mul(decimal.NewFromInt(take))
		out = append(out, part)
		remaining -= take
	}
	return out, nil
}
