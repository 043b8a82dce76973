// Package planner partitions an accepted record set into fixed-size batches
// for sequential submission.
package planner

import "github.com/sells-group/lead-admin/internal/model"

// Batch size tiers by total record count. Larger imports use smaller batches
// so a single failed write affects fewer records.
const (
	smallImportMax  = 500
	mediumImportMax = 2000

	smallBatchSize  = 100
	mediumBatchSize = 50
	largeBatchSize  = 25
)

// BatchSizeFor returns the per-batch size for a given total record count.
// Tier boundaries are inclusive: exactly 500 records still gets 100/batch.
func BatchSizeFor(total int) int {
	switch {
	case total <= smallImportMax:
		return smallBatchSize
	case total <= mediumImportMax:
		return mediumBatchSize
	default:
		return largeBatchSize
	}
}

// Plan slices records into contiguous, non-overlapping batches in original
// order. Batch ids are 1-based and every batch starts out pending.
func Plan(records []model.Lead) []model.Batch {
	if len(records) == 0 {
		return nil
	}

	size := BatchSizeFor(len(records))
	batches := make([]model.Batch, 0, (len(records)+size-1)/size)

	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, model.Batch{
			ID:      len(batches) + 1,
			Records: records[start:end],
			Status:  model.BatchPending,
		})
	}
	return batches
}
