package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Allocate consumes qty units of a product from its oldest lots first and
// returns the provenance of the consumption, ordered oldest lot first. The
// walk is all-or-nothing: when the open lots cannot supply qty the call
// fails with InsufficientStockError and nothing is mutated. Lot decrements
// and the aggregate decrement commit in one transaction; the candidate lots
// and the aggregate row stay locked until commit, so two transactions can
// never reserve the same units.
func (s *Service) Allocate(ctx context.Context, tenantID, productID, qty int64) ([]Allocation, error) {
	if tenantID == 0 || productID == 0 {
		return nil, fmt.Errorf("ledger: tenant and product required")
	}
	if qty <= 0 {
		return nil, fmt.Errorf("%w: allocation quantity must be positive", ErrInvalidAdjustment)
	}

	var records []Allocation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		records, err = s.allocateInTx(ctx, tx, tenantID, productID, qty)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) && s.metrics != nil {
			s.metrics.AllocationRejected()
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AllocationPosted(qty)
	}
	s.notifyProducts(ctx, tenantID, map[int64]int64{productID: -qty})
	return records, nil
}

// allocateInTx is the FIFO walk shared by Allocate and the negative branch
// of Adjust. It must run inside a transaction.
func (s *Service) allocateInTx(ctx context.Context, tx TxRepository, tenantID, productID, qty int64) ([]Allocation, error) {
	lots, err := tx.GetOpenLotsForUpdate(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}

	var available int64
	for _, lot := range lots {
		available += lot.QtyRemaining
	}
	if available < qty {
		return nil, &InsufficientStockError{ProductID: productID, Available: available, Requested: qty}
	}

	entryCodes := make(map[int64]StockEntry)
	records := make([]Allocation, 0, 4)
	needed := qty
	for _, lot := range lots {
		if needed == 0 {
			break
		}
		take := lot.QtyRemaining
		if take > needed {
			take = needed
		}
		if err := tx.UpdateLotRemaining(ctx, lot.ID, lot.QtyRemaining-take); err != nil {
			return nil, err
		}
		entry, ok := entryCodes[lot.EntryID]
		if !ok {
			entry, err = tx.GetEntryForUpdate(ctx, tenantID, lot.EntryID)
			if err != nil {
				return nil, err
			}
			entryCodes[lot.EntryID] = entry
		}
		taken := decimal.NewFromInt(take)
		records = append(records, Allocation{
			EntryID:     lot.EntryID,
			EntryItemID: lot.ID,
			QtyTaken:    take,
			UnitCost:    lot.UnitCost,
			TotalCost:   lot.UnitCost.Mul(taken),
			EntryCode:   entry.Code,
			EntryDate:   entry.ReceivedAt,
		})
		needed -= take
	}

	if err := s.bumpAggregate(ctx, tx, tenantID, productID, -qty); err != nil {
		return nil, err
	}
	s.logger.Debug("allocation posted",
		slog.Int64("tenant_id", tenantID),
		slog.Int64("product_id", productID),
		slog.Int64("qty", qty),
		slog.Int("lots", len(records)))
	return records, nil
}
