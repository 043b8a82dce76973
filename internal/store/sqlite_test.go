package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-admin/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// --- Collection ---

func TestSQLite_Collection_EmptyOnFreshStore(t *testing.T) {
	st := newTestStore(t)

	leads, err := st.ReadCollection(context.Background())
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestSQLite_Collection_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	in := []model.Lead{
		{ID: "1", FullName: "Ana Silva", TaxID: "12345678900", Product: "Kit", TotalValue: 67.90, Stage: 1},
		{ID: "2", FullName: "Bia Souza", TaxID: "98765432100", Product: "Kit", TotalValue: 89.90, Stage: 3},
	}
	require.NoError(t, st.WriteCollection(ctx, in))

	out, err := st.ReadCollection(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Ana Silva", out[0].FullName)
	assert.Equal(t, "98765432100", out[1].TaxID)
	assert.InDelta(t, 89.90, out[1].TotalValue, 0.001)
}

func TestSQLite_Collection_Overwrite(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WriteCollection(ctx, []model.Lead{{ID: "1", TaxID: "111"}}))
	require.NoError(t, st.WriteCollection(ctx, []model.Lead{{ID: "2", TaxID: "222"}, {ID: "3", TaxID: "333"}}))

	out, err := st.ReadCollection(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "222", out[0].TaxID)
}

func TestSQLite_Collection_SchemaVersionMismatch(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	raw := `{"schema_version":999,"updated_at":"2026-01-01T00:00:00Z","leads":[]}`
	require.NoError(t, st.set(ctx, CollectionKey, []byte(raw)))

	_, err := st.ReadCollection(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "schema version")
}

// --- Checkpoint ---

func TestSQLite_Checkpoint_SaveLoadClear(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	session := model.ImportSession{
		Batches: []model.Batch{
			{ID: 1, Status: model.BatchSuccess},
			{ID: 2, Status: model.BatchPending},
		},
		CurrentBatchIndex: 1,
		ProcessedCount:    50,
		SuccessCount:      48,
		FailureCount:      0,
		StartedAt:         time.Now().UTC(),
	}
	require.NoError(t, st.WriteCheckpoint(ctx, &session))

	cp, err := st.ReadCheckpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, model.SchemaVersion, cp.SchemaVersion)
	assert.WithinDuration(t, time.Now().UTC(), cp.SavedAt, 5*time.Second)
	assert.Equal(t, 1, cp.Session.CurrentBatchIndex)
	assert.Equal(t, 50, cp.Session.ProcessedCount)
	require.Len(t, cp.Session.Batches, 2)
	assert.Equal(t, model.BatchSuccess, cp.Session.Batches[0].Status)

	require.NoError(t, st.ClearCheckpoint(ctx))

	cp, err = st.ReadCheckpoint(ctx)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestSQLite_Checkpoint_MissingIsNil(t *testing.T) {
	st := newTestStore(t)

	cp, err := st.ReadCheckpoint(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestSQLite_Checkpoint_UnknownSchemaVersionIgnored(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	raw := `{"schema_version":999,"saved_at":"2026-01-01T00:00:00Z","session":{}}`
	require.NoError(t, st.set(ctx, CheckpointKey, []byte(raw)))

	cp, err := st.ReadCheckpoint(ctx)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestSQLite_Checkpoint_OverwriteKeepsLatest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.WriteCheckpoint(ctx, &model.ImportSession{CurrentBatchIndex: 1}))
	require.NoError(t, st.WriteCheckpoint(ctx, &model.ImportSession{CurrentBatchIndex: 7}))

	cp, err := st.ReadCheckpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 7, cp.Session.CurrentBatchIndex)
}

func TestCheckpoint_Stale(t *testing.T) {
	now := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	cp := &Checkpoint{SavedAt: now.Add(-59 * time.Minute)}
	assert.False(t, cp.Stale(now, time.Hour))

	cp.SavedAt = now.Add(-time.Hour)
	assert.True(t, cp.Stale(now, time.Hour))

	cp.SavedAt = now.Add(-2 * time.Hour)
	assert.True(t, cp.Stale(now, time.Hour))
}
