package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Adjust moves a product's on-hand quantity to a target value. A positive
// delta creates a synthetic adjustment entry with a single lot at the given
// unit cost and never touches existing lots; a negative delta consumes the
// oldest lots exactly like a sale, without producing a sale line. Both
// branches end with an in-transaction reconcile so the aggregate is exact
// even if it had drifted before the call. A target equal to the current
// ledger quantity is a no-op.
func (s *Service) Adjust(ctx context.Context, tenantID int64, input AdjustInput) (AdjustResult, error) {
	if tenantID == 0 || input.ProductID == 0 {
		return AdjustResult{}, fmt.Errorf("ledger: tenant and product required")
	}
	if input.TargetQuantity < 0 {
		return AdjustResult{}, fmt.Errorf("%w: target quantity must be >= 0", ErrInvalidAdjustment)
	}
	if input.UnitCost.IsNegative() {
		return AdjustResult{}, fmt.Errorf("%w: unit cost must be >= 0", ErrInvalidAdjustment)
	}

	var result AdjustResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.SumRemaining(ctx, tenantID, input.ProductID)
		if err != nil {
			return err
		}
		result = AdjustResult{
			ProductID: input.ProductID,
			Previous:  current,
			Target:    input.TargetQuantity,
			Delta:     input.TargetQuantity - current,
		}

		switch {
		case result.Delta > 0:
			now := time.Now().UTC()
			entryID, err := tx.InsertEntry(ctx, StockEntry{
				TenantID:   tenantID,
				Code:       fmt.Sprintf("ADJ-%d", now.UnixNano()),
				Kind:       EntryKindAdjustment,
				ReceivedAt: now,
				TotalCost:  input.UnitCost.Mul(decimal.NewFromInt(result.Delta)),
				Status:     LifecycleActive,
				Note:       input.Reason,
			})
			if err != nil {
				return err
			}
			result.EntryID = entryID
			if _, err := tx.InsertEntryItems(ctx, entryID, []EntryItem{{
				EntryID:      entryID,
				TenantID:     tenantID,
				ProductID:    input.ProductID,
				QtyReceived:  result.Delta,
				QtyRemaining: result.Delta,
				UnitCost:     input.UnitCost,
				Status:       LifecycleActive,
				Note:         input.Reason,
			}}); err != nil {
				return err
			}
		case result.Delta < 0:
			released, err := s.allocateInTx(ctx, tx, tenantID, input.ProductID, -result.Delta)
			if err != nil {
				return err
			}
			result.Released = released
		default:
			return nil
		}

		// Both branches end with a reconcile so the aggregate matches the
		// ledger even if it had drifted before this adjustment.
		_, err = s.reconcileInTx(ctx, tx, tenantID, input.ProductID)
		return err
	})
	if err != nil {
		return AdjustResult{}, err
	}

	if result.Delta != 0 {
		s.recordAudit(ctx, input.ActorID, "ledger:adjust", "product", fmt.Sprintf("%d", input.ProductID), map[string]any{
			"tenant_id": tenantID,
			"previous":  result.Previous,
			"target":    result.Target,
			"reason":    input.Reason,
		})
		s.notifyProducts(ctx, tenantID, map[int64]int64{input.ProductID: result.Delta})
	}
	return result, nil
}
