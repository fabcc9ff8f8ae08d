package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/ec-store-sync/internal/model"
)

// PipelineCart keys the cart pipeline in the sync log and API.
const PipelineCart = "cart"

// CartSource is the cart store side, read as cart rows joined with their
// product replicas. An empty userID means all carts.
type CartSource interface {
	ListCarts(ctx context.Context, userID string) ([]model.CartWithProduct, error)
}

// SnapshotTarget is the order-side replica written by the cart pipeline.
type SnapshotTarget interface {
	List(ctx context.Context, userID string) ([]model.CartSnapshot, error)
	BulkInsert(ctx context.Context, snapshots []model.CartSnapshot) error
	Put(ctx context.Context, snap model.CartSnapshot) error
}

// CartReconciler repairs the snapshot replica against the cart store: it
// inserts snapshots that are missing and overwrites snapshots whose version
// fell behind the source. Extraneous snapshots are counted but never deleted;
// removal is the delete listener's job alone.
type CartReconciler struct {
	source     CartSource
	target     SnapshotTarget
	syncLog    SyncLog
	batchDelay time.Duration
}

func NewCartReconciler(source CartSource, target SnapshotTarget, syncLog SyncLog) *CartReconciler {
	return &CartReconciler{
		source:     source,
		target:     target,
		syncLog:    syncLog,
		batchDelay: cartBatchDelay,
	}
}

// Run executes extract, diff and load, optionally scoped to one user via
// opts.UserID. Load failures are confined to their batch or item.
func (r *CartReconciler) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	result := &Result{Pipeline: PipelineCart, Timestamp: start}

	log.Printf("[CartSync] Starting cart sync (dryRun=%v, batchSize=%d, user=%q)", opts.DryRun, opts.batchSize(), opts.UserID)

	carts, err := r.source.ListCarts(ctx, opts.UserID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("extract source: %v", err))
		result.DurationMs = time.Since(start).Milliseconds()
		return result, fmt.Errorf("failed to extract carts: %w", err)
	}
	result.SourceCount = len(carts)

	snapshots, err := r.target.List(ctx, opts.UserID)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("extract target: %v", err))
		result.DurationMs = time.Since(start).Milliseconds()
		return result, fmt.Errorf("failed to extract snapshots: %w", err)
	}
	result.TargetCount = len(snapshots)

	missing, outdated, extraneous := diffCarts(carts, snapshots, time.Now())
	result.MissingCount = len(missing)
	result.OutdatedCount = len(outdated)
	result.ExtraneousCount = len(extraneous)

	if opts.DryRun {
		result.DurationMs = time.Since(start).Milliseconds()
		log.Printf("[CartSync] Dry run: %d missing, %d outdated, %d extraneous of %d source carts",
			result.MissingCount, result.OutdatedCount, result.ExtraneousCount, result.SourceCount)
		return result, nil
	}

	batches := chunk(missing, opts.batchSize())
	for i, batch := range batches {
		if i > 0 {
			waitBetweenBatches(ctx, r.batchDelay)
		}
		if err := r.target.BulkInsert(ctx, batch); err != nil {
			log.Printf("[CartSync] Batch %d/%d failed: %v", i+1, len(batches), err)
			result.Errors = append(result.Errors, fmt.Sprintf("batch %d: %v", i+1, err))
			continue
		}
		result.SyncedCount += len(batch)
		if opts.OnProgress != nil {
			opts.OnProgress(Progress{Batch: i + 1, Batches: len(batches), Synced: result.SyncedCount})
		}
	}

	// Outdated snapshots are overwritten one by one; the unconditional put
	// keeps the same key and version semantics as the create listener.
	for _, snap := range outdated {
		if err := r.target.Put(ctx, snap); err != nil {
			log.Printf("[CartSync] Failed to refresh snapshot for cart %s: %v", snap.CartID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("cart %s: %v", snap.CartID, err))
			continue
		}
		result.UpdatedCount++
	}

	result.DurationMs = time.Since(start).Milliseconds()
	if err := r.syncLog.Record(ctx, PipelineCart, result); err != nil {
		log.Printf("[CartSync] Failed to record run: %v", err)
	}

	log.Printf("[CartSync] Completed: %d inserted, %d refreshed, %d extraneous left in place, %dms (%d errors)",
		result.SyncedCount, result.UpdatedCount, result.ExtraneousCount, result.DurationMs, len(result.Errors))
	return result, nil
}

// SyncUserCarts repairs a single user's snapshots, used to warm the order
// side right before checkout.
func (r *CartReconciler) SyncUserCarts(ctx context.Context, userID string) (*Result, error) {
	if userID == "" {
		return nil, fmt.Errorf("userID is required")
	}
	return r.Run(ctx, Options{UserID: userID, BatchSize: UserSyncBatchSize})
}

// Validate re-extracts both sides; the replica is valid when nothing is
// missing. Outdated and extraneous snapshots are reported as drift but
// tolerated: outdated entries converge through the next sync run.
func (r *CartReconciler) Validate(ctx context.Context, userID string) (*Validation, error) {
	carts, err := r.source.ListCarts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to extract carts: %w", err)
	}
	snapshots, err := r.target.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to extract snapshots: %w", err)
	}

	missing, outdated, extraneous := diffCarts(carts, snapshots, time.Now())

	missingIDs := make([]string, len(missing))
	for i, s := range missing {
		missingIDs[i] = s.CartID
	}
	extraneousIDs := make([]string, len(extraneous))
	for i, s := range extraneous {
		extraneousIDs[i] = s.CartID
	}

	return &Validation{
		IsValid:           len(missing) == 0,
		SourceCount:       len(carts),
		TargetCount:       len(snapshots),
		MissingCount:      len(missing),
		OutdatedCount:     len(outdated),
		ExtraneousCount:   len(extraneous),
		MissingSamples:    sampleIDs(missingIDs),
		ExtraneousSamples: sampleIDs(extraneousIDs),
	}, nil
}

func (r *CartReconciler) Stats(ctx context.Context) (*Stats, error) {
	carts, err := r.source.ListCarts(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to extract carts: %w", err)
	}
	snapshots, err := r.target.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to extract snapshots: %w", err)
	}
	last, err := r.syncLog.LastSyncTime(ctx, PipelineCart)
	if err != nil {
		return nil, err
	}
	return &Stats{SourceCount: len(carts), TargetCount: len(snapshots), LastSyncTime: last}, nil
}

func diffCarts(carts []model.CartWithProduct, snapshots []model.CartSnapshot, now time.Time) (missing, outdated, extraneous []model.CartSnapshot) {
	byCartID := make(map[string]model.CartSnapshot, len(snapshots))
	for _, s := range snapshots {
		byCartID[s.CartID] = s
	}
	sourceIDs := make(map[string]struct{}, len(carts))
	for _, c := range carts {
		sourceIDs[c.CartID] = struct{}{}
		current, ok := byCartID[c.CartID]
		switch {
		case !ok:
			missing = append(missing, c.Snapshot(now))
		case current.Version < c.Version:
			next := c.Snapshot(now)
			next.CreatedAt = current.CreatedAt
			outdated = append(outdated, next)
		}
	}
	for _, s := range snapshots {
		if _, ok := sourceIDs[s.CartID]; !ok {
			extraneous = append(extraneous, s)
		}
	}
	return missing, outdated, extraneous
}
