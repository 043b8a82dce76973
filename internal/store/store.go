package store

import (
	"context"
	"time"

	"github.com/sells-group/lead-admin/internal/model"
)

// Fixed keys addressing the two durable blobs.
const (
	CollectionKey = "leads:collection"
	CheckpointKey = "leads:import_checkpoint"
)

// Checkpoint is a persisted snapshot of an in-progress import session.
// Consumers must treat checkpoints older than the configured TTL as absent.
type Checkpoint struct {
	SchemaVersion int                 `json:"schema_version"`
	SavedAt       time.Time           `json:"saved_at"`
	Session       model.ImportSession `json:"session"`
}

// Stale reports whether the checkpoint is older than ttl at the given time.
func (c *Checkpoint) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(c.SavedAt) >= ttl
}

// Store defines the persistence interface for the lead collection and the
// import checkpoint. The collection is read and written wholesale; the
// import orchestrator is the only writer of checkpoints.
type Store interface {
	ReadCollection(ctx context.Context) ([]model.Lead, error)
	WriteCollection(ctx context.Context, leads []model.Lead) error

	ReadCheckpoint(ctx context.Context) (*Checkpoint, error)
	WriteCheckpoint(ctx context.Context, session *model.ImportSession) error
	ClearCheckpoint(ctx context.Context) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
