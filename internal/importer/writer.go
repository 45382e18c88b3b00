package importer

import (
	"context"
	"log"

	"github.com/hikeshare/importer/internal/config"
	"github.com/hikeshare/importer/internal/database/trails"
	"github.com/hikeshare/importer/internal/entities"
)

// TrailStore persists batches of normalized trails.
type TrailStore interface {
	UpsertBatch(batch []entities.Trail) (trails.UpsertResult, error)
}

// JobCounters applies batch outcomes to a job record as atomic
// increments.
type JobCounters interface {
	AddCounters(id string, processed, added, updated, failed int) error
}

// BatchResult totals the outcome of writing a set of trails.
type BatchResult struct {
	Added   int
	Updated int
	Failed  int
}

// Processed returns the number of records accounted for.
func (r BatchResult) Processed() int {
	return r.Added + r.Updated + r.Failed
}

// BatchWriter chunks normalized trails into bounded batches, upserts
// each chunk, and reflects every committed chunk onto the owning job
// record before returning. A failed chunk contributes its whole size to
// the failed count: the store commits batches all-or-nothing, so
// per-record attribution inside a failed chunk is not available.
// Re-running the import is idempotent, which keeps that coarseness
// acceptable.
type BatchWriter struct {
	store     TrailStore
	jobs      JobCounters
	batchSize int
}

// NewBatchWriter creates a writer with a bounded batch size.
func NewBatchWriter(store TrailStore, jobs JobCounters, batchSize int) *BatchWriter {
	return &BatchWriter{
		store:     store,
		jobs:      jobs,
		batchSize: config.ClampBatchSize(batchSize),
	}
}

// WriteAll deduplicates the input by source id, writes it in chunks,
// and updates the job's counters after each chunk commit. Chunk-level
// write failures are absorbed into the failed count; only counter
// bookkeeping errors propagate.
func (w *BatchWriter) WriteAll(ctx context.Context, jobID string, normalized []entities.Trail) (BatchResult, error) {
	var total BatchResult

	deduped := dedupeTrails(normalized)

	for start := 0; start < len(deduped); start += w.batchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		end := start + w.batchSize
		if end > len(deduped) {
			end = len(deduped)
		}
		chunk := deduped[start:end]

		var added, updated, failed int
		result, err := w.store.UpsertBatch(chunk)
		if err != nil {
			log.Printf("batch writer: chunk of %d failed for job %s: %v", len(chunk), jobID, err)
			failed = len(chunk)
		} else {
			added = result.Added
			updated = result.Updated
		}

		// Confirmed work must be visible to concurrent progress reads
		// before the writer moves on.
		if err := w.jobs.AddCounters(jobID, len(chunk), added, updated, failed); err != nil {
			return total, err
		}

		total.Added += added
		total.Updated += updated
		total.Failed += failed
	}

	return total, nil
}

// dedupeTrails keeps the first record per source id. Adapters dedupe
// their own output, but the writer guards the upsert key regardless of
// who feeds it.
func dedupeTrails(batch []entities.Trail) []entities.Trail {
	seen := make(map[string]bool, len(batch))
	out := make([]entities.Trail, 0, len(batch))
	for _, trail := range batch {
		if seen[trail.SourceID] {
			continue
		}
		seen[trail.SourceID] = true
		out = append(out, trail)
	}
	return out
}
