package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ec-store-sync/internal/infrastructure/store/mocks"
	"github.com/example/ec-store-sync/internal/model"
)

func newTestCartReconciler() (*CartReconciler, *mocks.MockCartSource, *mocks.MockSnapshotStore, *mocks.MockSyncLog) {
	source := &mocks.MockCartSource{}
	target := mocks.NewMockSnapshotStore()
	syncLog := mocks.NewMockSyncLog()
	r := NewCartReconciler(source, target, syncLog)
	r.batchDelay = 0
	return r, source, target, syncLog
}

func makeCart(id, userID string, version int) model.CartWithProduct {
	return model.CartWithProduct{
		CartID:       id,
		UserID:       userID,
		CartQuantity: 2,
		Version:      version,
		ProductID:    "prod-1",
		ProductTitle: "Keyboard",
		ProductPrice: 5000,
		SellerID:     "seller-1",
	}
}

func TestCartReconciler_InsertsMissingSnapshots(t *testing.T) {
	r, source, target, syncLog := newTestCartReconciler()
	ctx := context.Background()

	source.Carts = []model.CartWithProduct{
		makeCart("cart-1", "user-1", 0),
		makeCart("cart-2", "user-2", 1),
	}
	target.Seed(makeCart("cart-1", "user-1", 0).Snapshot(time.Now()))

	result, err := r.Run(ctx, Options{})

	require.NoError(t, err)
	assert.Equal(t, 2, result.SourceCount)
	assert.Equal(t, 1, result.TargetCount)
	assert.Equal(t, 1, result.MissingCount)
	assert.Equal(t, 1, result.SyncedCount)
	assert.Equal(t, 2, target.Len())

	snap, err := target.Get(ctx, "cart-2")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, 10000, snap.Total, "total is recomputed from price and quantity")
	assert.Contains(t, syncLog.Results, PipelineCart)
}

func TestCartReconciler_RepairsOutdatedSnapshot(t *testing.T) {
	r, source, target, _ := newTestCartReconciler()
	ctx := context.Background()

	// The cart advanced twice while its events were lost; the snapshot is
	// stuck at version 0.
	stale := makeCart("cart-1", "user-1", 0).Snapshot(time.Now().Add(-time.Hour))
	target.Seed(stale)
	source.Carts = []model.CartWithProduct{makeCart("cart-1", "user-1", 2)}

	result, err := r.Run(ctx, Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.OutdatedCount)
	assert.Equal(t, 1, result.UpdatedCount)
	assert.Equal(t, 0, result.SyncedCount)

	snap, err := target.Get(ctx, "cart-1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Version)
	assert.Equal(t, stale.CreatedAt, snap.CreatedAt, "refresh keeps the original creation time")
}

func TestCartReconciler_NeverDeletesExtraneousSnapshots(t *testing.T) {
	r, source, target, _ := newTestCartReconciler()
	ctx := context.Background()

	orphan := makeCart("cart-orphan", "user-9", 0).Snapshot(time.Now())
	target.Seed(orphan)
	source.Carts = []model.CartWithProduct{makeCart("cart-1", "user-1", 0)}

	result, err := r.Run(ctx, Options{})

	require.NoError(t, err)
	assert.Equal(t, 1, result.ExtraneousCount)
	assert.Empty(t, target.DeleteCalls, "reconciliation must never remove snapshots")

	snap, err := target.Get(ctx, "cart-orphan")
	require.NoError(t, err)
	assert.NotNil(t, snap)
}

func TestCartReconciler_IsIdempotent(t *testing.T) {
	r, source, target, _ := newTestCartReconciler()
	ctx := context.Background()
	source.Carts = []model.CartWithProduct{
		makeCart("cart-1", "user-1", 0),
		makeCart("cart-2", "user-1", 3),
	}

	_, err := r.Run(ctx, Options{})
	require.NoError(t, err)

	second, err := r.Run(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.MissingCount)
	assert.Equal(t, 0, second.OutdatedCount)
	assert.Equal(t, 0, second.SyncedCount+second.UpdatedCount)
	assert.Equal(t, 2, target.Len())
}

func TestCartReconciler_DryRunWritesNothing(t *testing.T) {
	r, source, target, syncLog := newTestCartReconciler()
	source.Carts = []model.CartWithProduct{makeCart("cart-1", "user-1", 0)}

	result, err := r.Run(context.Background(), Options{DryRun: true})

	require.NoError(t, err)
	assert.Equal(t, 1, result.MissingCount)
	assert.Equal(t, 0, result.SyncedCount)
	assert.Equal(t, 0, target.Len())
	assert.Equal(t, 0, target.BulkInsertCalls)
	assert.NotContains(t, syncLog.Results, PipelineCart)
}

func TestCartReconciler_BatchFailureIsIsolated(t *testing.T) {
	r, source, target, _ := newTestCartReconciler()

	carts := make([]model.CartWithProduct, 6)
	for i := range carts {
		carts[i] = makeCart(fmt.Sprintf("cart-%d", i), "user-1", 0)
	}
	source.Carts = carts
	target.FailBulkInsertOnCall = 2
	target.BulkInsertErr = errors.New("throughput exceeded")

	result, err := r.Run(context.Background(), Options{BatchSize: 2})

	require.NoError(t, err)
	assert.Equal(t, 4, result.SyncedCount)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "batch 2")
	assert.Equal(t, 3, target.BulkInsertCalls)
	assert.Equal(t, 4, target.Len())
}

func TestCartReconciler_SyncUserCarts(t *testing.T) {
	r, source, target, _ := newTestCartReconciler()
	ctx := context.Background()

	source.Carts = []model.CartWithProduct{
		makeCart("cart-1", "user-1", 0),
		makeCart("cart-2", "user-2", 0),
	}

	result, err := r.SyncUserCarts(ctx, "user-1")

	require.NoError(t, err)
	assert.Equal(t, 1, result.SourceCount)
	assert.Equal(t, 1, result.SyncedCount)
	assert.Equal(t, 1, target.Len(), "only the requested user's carts are synced")

	_, err = r.SyncUserCarts(ctx, "")
	assert.Error(t, err)
}

func TestCartReconciler_Validate(t *testing.T) {
	r, source, target, _ := newTestCartReconciler()
	ctx := context.Background()

	target.Seed(makeCart("cart-1", "user-1", 0).Snapshot(time.Now()))
	source.Carts = []model.CartWithProduct{
		makeCart("cart-1", "user-1", 1),
		makeCart("cart-2", "user-1", 0),
	}

	v, err := r.Validate(ctx, "")

	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.Equal(t, 1, v.MissingCount)
	assert.Equal(t, 1, v.OutdatedCount)

	_, err = r.Run(ctx, Options{})
	require.NoError(t, err)

	v, err = r.Validate(ctx, "")
	require.NoError(t, err)
	assert.True(t, v.IsValid)
}

func TestCartReconciler_Validate_OutdatedIsToleratedDrift(t *testing.T) {
	r, source, target, _ := newTestCartReconciler()
	ctx := context.Background()

	// The snapshot exists but lags the source; nothing is missing.
	target.Seed(makeCart("cart-1", "user-1", 0).Snapshot(time.Now()))
	source.Carts = []model.CartWithProduct{makeCart("cart-1", "user-1", 2)}

	v, err := r.Validate(ctx, "")

	require.NoError(t, err)
	assert.True(t, v.IsValid, "validity hinges on the missing set alone")
	assert.Equal(t, 0, v.MissingCount)
	assert.Equal(t, 1, v.OutdatedCount, "outdated drift is still reported")
}

func TestCartReconciler_ExtractFailureIsFatal(t *testing.T) {
	r, source, _, _ := newTestCartReconciler()
	source.Err = errors.New("postgres down")

	result, err := r.Run(context.Background(), Options{})

	assert.Error(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Errors)
}

func TestValidateBatchSize(t *testing.T) {
	assert.NoError(t, ValidateBatchSize(1))
	assert.NoError(t, ValidateBatchSize(1000))
	assert.Error(t, ValidateBatchSize(0))
	assert.Error(t, ValidateBatchSize(1001))
	assert.Error(t, ValidateBatchSize(-5))
}
