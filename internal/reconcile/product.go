package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/ec-store-sync/internal/model"
)

// PipelineProduct keys the product pipeline in the sync log and API.
const PipelineProduct = "product"

// ProductSource is the catalog side of the product pipeline.
type ProductSource interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
}

// ProductReplicaStore is the cart-service side holding product replica rows.
type ProductReplicaStore interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	BulkUpsertProducts(ctx context.Context, products []model.Product) error
}

// ProductReconciler copies catalog products missing from the cart service's
// replica table. Products carry no version, so the diff is presence-only;
// replicas already present are left alone and extraneous replicas are only
// reported, never removed.
type ProductReconciler struct {
	source     ProductSource
	target     ProductReplicaStore
	syncLog    SyncLog
	batchDelay time.Duration
}

func NewProductReconciler(source ProductSource, target ProductReplicaStore, syncLog SyncLog) *ProductReconciler {
	return &ProductReconciler{
		source:     source,
		target:     target,
		syncLog:    syncLog,
		batchDelay: productBatchDelay,
	}
}

// Run executes extract, diff and load. Extract failures abort the run; load
// failures are confined to their batch and collected in Result.Errors.
func (r *ProductReconciler) Run(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	result := &Result{Pipeline: PipelineProduct, Timestamp: start}

	log.Printf("[ProductSync] Starting product sync (dryRun=%v, batchSize=%d)", opts.DryRun, opts.batchSize())

	source, err := r.source.ListProducts(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("extract source: %v", err))
		result.DurationMs = time.Since(start).Milliseconds()
		return result, fmt.Errorf("failed to extract source products: %w", err)
	}
	result.SourceCount = len(source)

	target, err := r.target.ListProducts(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("extract target: %v", err))
		result.DurationMs = time.Since(start).Milliseconds()
		return result, fmt.Errorf("failed to extract target products: %w", err)
	}
	result.TargetCount = len(target)

	missing, extraneous := diffProducts(source, target)
	result.MissingCount = len(missing)
	result.ExtraneousCount = len(extraneous)

	if opts.DryRun {
		result.DurationMs = time.Since(start).Milliseconds()
		log.Printf("[ProductSync] Dry run: %d missing of %d source products", result.MissingCount, result.SourceCount)
		return result, nil
	}

	batches := chunk(missing, opts.batchSize())
	for i, batch := range batches {
		if i > 0 {
			waitBetweenBatches(ctx, r.batchDelay)
		}
		if err := r.target.BulkUpsertProducts(ctx, batch); err != nil {
			log.Printf("[ProductSync] Batch %d/%d failed: %v", i+1, len(batches), err)
			result.Errors = append(result.Errors, fmt.Sprintf("batch %d: %v", i+1, err))
			continue
		}
		result.SyncedCount += len(batch)
		if opts.OnProgress != nil {
			opts.OnProgress(Progress{Batch: i + 1, Batches: len(batches), Synced: result.SyncedCount})
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	if err := r.syncLog.Record(ctx, PipelineProduct, result); err != nil {
		log.Printf("[ProductSync] Failed to record run: %v", err)
	}

	log.Printf("[ProductSync] Completed: %d of %d missing products synced in %dms (%d errors)",
		result.SyncedCount, result.MissingCount, result.DurationMs, len(result.Errors))
	return result, nil
}

// Validate re-extracts both sides and reports whether the replica covers the
// catalog. Extraneous replicas do not invalidate.
func (r *ProductReconciler) Validate(ctx context.Context) (*Validation, error) {
	source, err := r.source.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract source products: %w", err)
	}
	target, err := r.target.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract target products: %w", err)
	}

	missing, extraneous := diffProducts(source, target)

	missingIDs := make([]string, len(missing))
	for i, p := range missing {
		missingIDs[i] = p.ID
	}
	extraneousIDs := make([]string, len(extraneous))
	for i, p := range extraneous {
		extraneousIDs[i] = p.ID
	}

	return &Validation{
		IsValid:           len(missing) == 0,
		SourceCount:       len(source),
		TargetCount:       len(target),
		MissingCount:      len(missing),
		ExtraneousCount:   len(extraneous),
		MissingSamples:    sampleIDs(missingIDs),
		ExtraneousSamples: sampleIDs(extraneousIDs),
	}, nil
}

func (r *ProductReconciler) Stats(ctx context.Context) (*Stats, error) {
	source, err := r.source.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract source products: %w", err)
	}
	target, err := r.target.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to extract target products: %w", err)
	}
	last, err := r.syncLog.LastSyncTime(ctx, PipelineProduct)
	if err != nil {
		return nil, err
	}
	return &Stats{SourceCount: len(source), TargetCount: len(target), LastSyncTime: last}, nil
}

func diffProducts(source, target []model.Product) (missing, extraneous []model.Product) {
	targetIDs := make(map[string]struct{}, len(target))
	for _, p := range target {
		targetIDs[p.ID] = struct{}{}
	}
	sourceIDs := make(map[string]struct{}, len(source))
	for _, p := range source {
		sourceIDs[p.ID] = struct{}{}
		if _, ok := targetIDs[p.ID]; !ok {
			missing = append(missing, p)
		}
	}
	for _, p := range target {
		if _, ok := sourceIDs[p.ID]; !ok {
			extraneous = append(extraneous, p)
		}
	}
	return missing, extraneous
}
