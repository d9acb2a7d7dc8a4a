package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/varejo-erp/varejo-erp/internal/ledger"
)

type fakeReconciler struct {
	calls   []int64
	results map[int64][]ledger.ReconcileResult
	err     error
}

func (f *fakeReconciler) ReconcileAll(_ context.Context, tenantID int64, _ int) ([]ledger.ReconcileResult, error) {
	f.calls = append(f.calls, tenantID)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[tenantID], nil
}

type fakeTenants struct {
	ids []int64
	err error
}

func (f *fakeTenants) ListTenantIDs(context.Context) ([]int64, error) {
	return f.ids, f.err
}

type fakeCleaner struct {
	olderThan time.Duration
	calls     int
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	f.calls++
	f.olderThan = olderThan
	return nil
}

func TestReconcileSweepVisitsEveryTenant(t *testing.T) {
	rec := &fakeReconciler{results: map[int64][]ledger.ReconcileResult{
		1: {{ProductID: 10}, {ProductID: 11}},
		2: {{ProductID: 20}},
	}}
	tasks := &Tasks{
		Reconciler: rec,
		Tenants:    &fakeTenants{ids: []int64{1, 2}},
		Logger:     slog.Default(),
	}

	task, err := NewReconcileSweepTask(4, time.Now())
	require.NoError(t, err)

	require.NoError(t, tasks.HandleReconcileSweep(context.Background(), task))
	require.Equal(t, []int64{1, 2}, rec.calls)
}

func TestReconcileSweepPropagatesErrors(t *testing.T) {
	boom := errors.New("db down")
	tasks := &Tasks{
		Reconciler: &fakeReconciler{err: boom},
		Tenants:    &fakeTenants{ids: []int64{1}},
		Logger:     slog.Default(),
	}

	task, err := NewReconcileSweepTask(2, time.Now())
	require.NoError(t, err)
	require.ErrorIs(t, tasks.HandleReconcileSweep(context.Background(), task), boom)
}

func TestReconcileSweepSkipsRetryOnBadPayload(t *testing.T) {
	tasks := &Tasks{Logger: slog.Default()}
	task := asynq.NewTask(TaskReconcileSweep, []byte("{not json"))
	require.ErrorIs(t, tasks.HandleReconcileSweep(context.Background(), task), asynq.SkipRetry)
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	tasks := &Tasks{Cleaner: cleaner, Logger: slog.Default()}

	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)

	require.NoError(t, tasks.HandleIdempotencyCleanup(context.Background(), task))
	require.Equal(t, 1, cleaner.calls)
	require.Equal(t, 7*24*time.Hour, cleaner.olderThan)
}

func TestIdempotencyCleanupHonorsRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	tasks := &Tasks{Cleaner: cleaner, Logger: slog.Default()}

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)

	require.NoError(t, tasks.HandleIdempotencyCleanup(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.olderThan)
}
