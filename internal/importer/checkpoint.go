package importer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-admin/internal/store"
)

// FindResumable returns a checkpointed session younger than ttl, or nil.
// Older checkpoints are stale: they are ignored and left for the next
// successful session to overwrite.
func FindResumable(ctx context.Context, st store.Store, ttl time.Duration, now func() time.Time) (*store.Checkpoint, error) {
	if now == nil {
		now = time.Now
	}

	cp, err := st.ReadCheckpoint(ctx)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}
	if cp.Stale(now().UTC(), ttl) {
		zap.L().Info("ignoring stale import checkpoint",
			zap.Time("saved_at", cp.SavedAt),
			zap.Duration("ttl", ttl),
		)
		return nil, nil
	}
	return cp, nil
}
