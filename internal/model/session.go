package model

import "time"

// BatchStatus represents the current state of one import batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchSuccess    BatchStatus = "success"
	BatchError      BatchStatus = "error"
)

// Batch is a fixed-size ordered slice of the accepted record set. Batches are
// created by the planner and mutated only by the import orchestrator; they
// are never reordered or merged.
type Batch struct {
	ID         int         `json:"id"`
	Records    []Lead      `json:"records"`
	Status     BatchStatus `json:"status"`
	RetryCount int         `json:"retry_count"`
	LastError  string      `json:"last_error,omitempty"`
}

// SessionState represents the import orchestrator state machine.
type SessionState string

const (
	SessionIdle      SessionState = "idle"
	SessionRunning   SessionState = "running"
	SessionPaused    SessionState = "paused"
	SessionCompleted SessionState = "completed"
	SessionCancelled SessionState = "cancelled"
)

// ImportError is one entry in a session's error list. Item-level errors
// (duplicate key in the store) carry TaxID and LineNumber; batch-level errors
// after retry exhaustion carry BatchID and AffectedCount.
type ImportError struct {
	BatchID       int    `json:"batch_id,omitempty"`
	TaxID         string `json:"tax_id,omitempty"`
	LineNumber    int    `json:"line_number,omitempty"`
	Message       string `json:"message"`
	AffectedCount int    `json:"affected_count,omitempty"`
}

// ImportResults accumulates the user-visible outcome of a session.
type ImportResults struct {
	Successes []Lead        `json:"successes"`
	Errors    []ImportError `json:"errors"`
}

// ImportSession is the aggregate orchestration state for one bulk import.
// It is owned exclusively by the orchestrator and persisted as a checkpoint
// after every batch so an interrupted import can resume.
type ImportSession struct {
	Batches           []Batch       `json:"batches"`
	CurrentBatchIndex int           `json:"current_batch_index"`
	ProcessedCount    int           `json:"processed_count"`
	SuccessCount      int           `json:"success_count"`
	FailureCount      int           `json:"failure_count"`
	Results           ImportResults `json:"results"`
	IsRunning         bool          `json:"is_running"`
	IsPaused          bool          `json:"is_paused"`
	StartedAt         time.Time     `json:"started_at"`
}

// TotalRecords is the record count across all batches.
func (s *ImportSession) TotalRecords() int {
	total := 0
	for _, b := range s.Batches {
		total += len(b.Records)
	}
	return total
}

// PendingCount is the number of records in batches not yet processed.
func (s *ImportSession) PendingCount() int {
	pending := 0
	for i := s.CurrentBatchIndex; i < len(s.Batches); i++ {
		pending += len(s.Batches[i].Records)
	}
	return pending
}

// Progress is the per-batch snapshot handed to the progress sink.
type Progress struct {
	CurrentBatch int   `json:"current_batch"`
	TotalBatches int   `json:"total_batches"`
	Processed    int   `json:"processed"`
	Total        int   `json:"total"`
	SuccessCount int   `json:"success_count"`
	FailureCount int   `json:"failure_count"`
	ETAMillis    int64 `json:"eta_millis"`
}

// Result is the final aggregate reported when a session completes or is
// cancelled. Cancellation additionally reports the still-pending count;
// durable writes already committed are never rolled back.
type Result struct {
	SuccessRecords []Lead        `json:"success_records"`
	ErrorRecords   []ImportError `json:"error_records"`
	PendingCount   int           `json:"pending_count,omitempty"`
	TotalTime      time.Duration `json:"total_time_ms"`
}
