package reconcile

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultBatchSize = 100
	MinBatchSize     = 1
	MaxBatchSize     = 1000

	// UserSyncBatchSize is used for the user-scoped cart sync on the
	// checkout path, which moves at most a handful of carts.
	UserSyncBatchSize = 50

	productBatchDelay = 100 * time.Millisecond
	cartBatchDelay    = 50 * time.Millisecond

	maxSampleIDs = 10
)

// ValidateBatchSize rejects batch sizes outside [MinBatchSize, MaxBatchSize].
func ValidateBatchSize(n int) error {
	if n < MinBatchSize || n > MaxBatchSize {
		return fmt.Errorf("batch size must be between %d and %d, got %d", MinBatchSize, MaxBatchSize, n)
	}
	return nil
}

// Progress is reported to Options.OnProgress after each loaded batch.
type Progress struct {
	Batch   int `json:"batch"`
	Batches int `json:"batches"`
	Synced  int `json:"synced"`
}

// Options controls a single reconciliation run.
type Options struct {
	// BatchSize bounds each load batch; zero means DefaultBatchSize.
	BatchSize int
	// DryRun stops after extract and diff; nothing is written.
	DryRun bool
	// UserID scopes the cart pipeline to one user's carts. Ignored by the
	// product pipeline.
	UserID string
	// OnProgress, if set, is invoked after every batch.
	OnProgress func(Progress)
}

func (o Options) batchSize() int {
	if o.BatchSize == 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// Result summarizes one reconciliation run.
type Result struct {
	Pipeline        string    `json:"pipeline"`
	SourceCount     int       `json:"source_count"`
	TargetCount     int       `json:"target_count"`
	MissingCount    int       `json:"missing_count"`
	OutdatedCount   int       `json:"outdated_count"`
	ExtraneousCount int       `json:"extraneous_count"`
	SyncedCount     int       `json:"synced_count"`
	UpdatedCount    int       `json:"updated_count"`
	Errors          []string  `json:"errors,omitempty"`
	DurationMs      int64     `json:"duration_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// Validation is a read-only consistency check between source and target.
type Validation struct {
	IsValid           bool     `json:"is_valid"`
	SourceCount       int      `json:"source_count"`
	TargetCount       int      `json:"target_count"`
	MissingCount      int      `json:"missing_count"`
	OutdatedCount     int      `json:"outdated_count"`
	ExtraneousCount   int      `json:"extraneous_count"`
	MissingSamples    []string `json:"missing_samples,omitempty"`
	ExtraneousSamples []string `json:"extraneous_samples,omitempty"`
}

// Stats carries the counts shown by the status endpoint.
type Stats struct {
	SourceCount  int       `json:"source_count"`
	TargetCount  int       `json:"target_count"`
	LastSyncTime time.Time `json:"last_sync_time"`
}

// SyncLog records the outcome of completed runs per pipeline.
type SyncLog interface {
	Record(ctx context.Context, pipeline string, result any) error
	LastSyncTime(ctx context.Context, pipeline string) (time.Time, error)
}

func chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[start:end])
	}
	return out
}

func sampleIDs(ids []string) []string {
	if len(ids) > maxSampleIDs {
		return ids[:maxSampleIDs]
	}
	return ids
}

// waitBetweenBatches throttles load batches so a large backfill does not
// saturate the target store.
func waitBetweenBatches(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
