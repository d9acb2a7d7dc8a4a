package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Reconcile recomputes a product's aggregate quantity from the sum of its
// active lots and overwrites the cached row, creating it when absent.
// MinStock/MaxStock are preserved. The aggregate row is locked before the
// lots are summed so the snapshot cannot race a concurrent allocation.
// Calling it twice with no intervening ledger change is a no-op. Drift is
// logged and counted, never an error.
func (s *Service) Reconcile(ctx context.Context, tenantID, productID int64) (ReconcileResult, error) {
	if tenantID == 0 || productID == 0 {
		return ReconcileResult{}, fmt.Errorf("ledger: tenant and product required")
	}

	var result ReconcileResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		result, err = s.reconcileInTx(ctx, tx, tenantID, productID)
		return err
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	s.reportDrift(tenantID, result)
	if result.Updated || result.Created {
		s.notifyProducts(ctx, tenantID, map[int64]int64{productID: 0})
	}
	return result, nil
}

func (s *Service) reconcileInTx(ctx context.Context, tx TxRepository, tenantID, productID int64) (ReconcileResult, error) {
	result := ReconcileResult{ProductID: productID}

	agg, err := tx.GetAggregateForUpdate(ctx, tenantID, productID)
	if err != nil {
		if !errors.Is(err, ErrAggregateNotFound) {
			return ReconcileResult{}, err
		}
		result.Created = true
		agg = Aggregate{TenantID: tenantID, ProductID: productID}
	}
	result.Previous = agg.Quantity

	sum, err := tx.SumRemaining(ctx, tenantID, productID)
	if err != nil {
		return ReconcileResult{}, err
	}
	result.Recomputed = sum

	if !result.Created && agg.Quantity == sum {
		return result, nil
	}
	agg.Quantity = sum
	if err := tx.UpsertAggregate(ctx, agg); err != nil {
		return ReconcileResult{}, err
	}
	result.Updated = !result.Created
	return result, nil
}

func (s *Service) reportDrift(tenantID int64, result ReconcileResult) {
	if !result.Drift() {
		return
	}
	if s.metrics != nil {
		s.metrics.ReconcileDrift()
	}
	s.logger.Warn("aggregate drift repaired",
		slog.Int64("tenant_id", tenantID),
		slog.Int64("product_id", result.ProductID),
		slog.Int64("previous", result.Previous),
		slog.Int64("recomputed", result.Recomputed),
		slog.Bool("created", result.Created))
}

// ReconcileAll repairs every product of a tenant. Products are independent,
// so the sweep fans out with a bounded errgroup; each product still runs in
// its own transaction.
func (s *Service) ReconcileAll(ctx context.Context, tenantID int64, concurrency int) ([]ReconcileResult, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	productIDs, err := s.repo.ListProductIDs(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	results := make([]ReconcileResult, len(productIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, productID := range productIDs {
		i, productID := i, productID
		g.Go(func() error {
			res, err := s.Reconcile(ctx, tenantID, productID)
			if err != nil {
				return fmt.Errorf("reconcile product %d: %w", productID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
