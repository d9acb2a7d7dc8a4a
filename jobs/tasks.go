package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/varejo-erp/varejo-erp/internal/ledger"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcileSweep triggers the nightly aggregate reconciliation sweep.
	TaskReconcileSweep = "ledger:reconcile_sweep"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "shared:idempotency_cleanup"
)

// ReconcileSweepPayload carries scheduling metadata for the sweep.
type ReconcileSweepPayload struct {
	Concurrency  int       `json:"concurrency"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReconcileSweepTask constructs the sweep task.
func NewReconcileSweepTask(concurrency int, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReconcileSweepPayload{Concurrency: concurrency, ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileSweep, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// Reconciler is the slice of the ledger the sweep needs.
type Reconciler interface {
	ReconcileAll(ctx context.Context, tenantID int64, concurrency int) ([]ledger.ReconcileResult, error)
}

// TenantLister enumerates tenants with ledger activity.
type TenantLister interface {
	ListTenantIDs(ctx context.Context) ([]int64, error)
}

// KeyCleaner prunes processed idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// Tasks bundles the handlers with their dependencies.
type Tasks struct {
	Reconciler Reconciler
	Tenants    TenantLister
	Cleaner    KeyCleaner
	Logger     *slog.Logger
}

// HandleReconcileSweep repairs every aggregate of every tenant. Drift is
// logged by the ledger itself; the sweep only reports scope and duration.
func (t *Tasks) HandleReconcileSweep(ctx context.Context, task *asynq.Task) error {
	var payload ReconcileSweepPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	start := time.Now()
	tenantIDs, err := t.Tenants.ListTenantIDs(ctx)
	if err != nil {
		return err
	}
	var products int
	for _, tenantID := range tenantIDs {
		results, err := t.Reconciler.ReconcileAll(ctx, tenantID, payload.Concurrency)
		if err != nil {
			return err
		}
		products += len(results)
	}
	t.Logger.Info("reconcile sweep finished",
		slog.Int("tenants", len(tenantIDs)),
		slog.Int("products", products),
		slog.Duration("took", time.Since(start)))
	return nil
}

// HandleIdempotencyCleanup prunes keys older than the retention window.
func (t *Tasks) HandleIdempotencyCleanup(ctx context.Context, task *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Retention <= 0 {
		payload.Retention = 7 * 24 * time.Hour
	}
	return t.Cleaner.Cleanup(ctx, payload.Retention)
}
