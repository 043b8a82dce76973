package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-admin/internal/config"
	"github.com/sells-group/lead-admin/internal/importer"
	"github.com/sells-group/lead-admin/internal/model"
	"github.com/sells-group/lead-admin/internal/planner"
	"github.com/sells-group/lead-admin/internal/resilience"
	"github.com/sells-group/lead-admin/internal/store"
)

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	mu         sync.Mutex
	leads      []model.Lead
	checkpoint *store.Checkpoint
}

func (m *memStore) ReadCollection(context.Context) ([]model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Lead, len(m.leads))
	copy(out, m.leads)
	return out, nil
}

func (m *memStore) WriteCollection(_ context.Context, leads []model.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leads = make([]model.Lead, len(leads))
	copy(m.leads, leads)
	return nil
}

func (m *memStore) ReadCheckpoint(context.Context) (*store.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkpoint == nil {
		return nil, nil
	}
	cp := *m.checkpoint
	return &cp, nil
}

func (m *memStore) WriteCheckpoint(_ context.Context, session *model.ImportSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoint = &store.Checkpoint{
		SchemaVersion: model.SchemaVersion,
		SavedAt:       time.Now().UTC(),
		Session:       *session,
	}
	return nil
}

func (m *memStore) ClearCheckpoint(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoint = nil
	return nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leads)
}

// newTestServer wires the control-plane handler against an in-memory store
// with zero-delay orchestrator options.
func newTestServer(t *testing.T) (*server, *memStore, http.Handler) {
	t.Helper()

	cfg = &config.Config{}
	cfg.Import.DefaultProduct = "Kit Completo"
	cfg.Import.DefaultPrice = 67.90
	cfg.Import.DefaultCountry = "Brasil"
	cfg.Import.Origin = "bulk_import"
	cfg.Import.PaymentMethod = "pix"
	cfg.Import.PaymentStatus = "pending"

	ms := &memStore{}
	orch := importer.New(ms, nil, importer.Options{
		Backoff:         resilience.NoBackoff(),
		InterBatchDelay: -1,
	})
	srv := &server{store: ms, orch: orch, runCtx: context.Background()}
	return srv, ms, srv.routes()
}

func waitForState(t *testing.T, orch *importer.Orchestrator, want model.SessionState) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return orch.State() == want
	}, 2*time.Second, 5*time.Millisecond)
}

const pasteBody = "Ana Silva\tana@x.com\t111\t123.456.789-00\n" +
	"Bia Souza\tbia@x.com\t222\t987.654.321-00"

func TestServeHealth(t *testing.T) {
	_, _, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServeImportStart(t *testing.T) {
	srv, ms, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/import", strings.NewReader(pasteBody))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.EqualValues(t, 2, resp["records"])
	assert.EqualValues(t, 0, resp["duplicates_removed"])

	waitForState(t, srv.orch, model.SessionCompleted)
	assert.Equal(t, 2, ms.count())
}

func TestServeImportStart_NoRows(t *testing.T) {
	_, _, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/import", strings.NewReader("\n\nshort\trow\n"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "no importable rows found")
}

func TestServeImportStart_ConflictWhilePaused(t *testing.T) {
	srv, _, h := newTestServer(t)

	session := model.ImportSession{
		Batches:           planner.Plan(importRecords(150)),
		CurrentBatchIndex: 1,
	}
	require.NoError(t, srv.orch.Restore(session))

	req := httptest.NewRequest(http.MethodPost, "/import", strings.NewReader(pasteBody))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestServeImportStatus(t *testing.T) {
	srv, _, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/import/status", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		State    model.SessionState `json:"state"`
		Progress model.Progress     `json:"progress"`
		Result   *model.Result      `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, model.SessionIdle, resp.State)
	assert.Nil(t, resp.Result)

	// After a finished session the result appears.
	startReq := httptest.NewRequest(http.MethodPost, "/import", strings.NewReader(pasteBody))
	h.ServeHTTP(httptest.NewRecorder(), startReq)
	waitForState(t, srv.orch, model.SessionCompleted)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/import/status", nil))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, model.SessionCompleted, resp.State)
	require.NotNil(t, resp.Result)
	assert.Len(t, resp.Result.SuccessRecords, 2)
	assert.Equal(t, 2, resp.Progress.Processed)
}

func TestServeCancel_RequiresConfirm(t *testing.T) {
	srv, _, h := newTestServer(t)

	session := model.ImportSession{Batches: planner.Plan(importRecords(150))}
	require.NoError(t, srv.orch.Restore(session))

	req := httptest.NewRequest(http.MethodPost, "/import/cancel", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "confirm=true")
	// Nothing cancelled without confirmation.
	assert.Equal(t, model.SessionPaused, srv.orch.State())

	req = httptest.NewRequest(http.MethodPost, "/import/cancel?confirm=true", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, model.SessionCancelled, srv.orch.State())
}

func TestServeCancel_NoSession(t *testing.T) {
	_, _, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/import/cancel?confirm=true", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestServePause_NotRunning(t *testing.T) {
	_, _, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/import/pause", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestServeResume_RestoredCheckpoint(t *testing.T) {
	srv, ms, h := newTestServer(t)

	// A checkpointed session already past batch 1 of 2, as the serve startup
	// restore path installs it.
	session := model.ImportSession{
		Batches:           planner.Plan(importRecords(150)),
		CurrentBatchIndex: 1,
		ProcessedCount:    100,
		SuccessCount:      100,
		StartedAt:         time.Now().UTC(),
	}
	session.Batches[0].Status = model.BatchSuccess
	require.NoError(t, srv.orch.Restore(session))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/import/status", nil))
	var resp struct {
		State model.SessionState `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, model.SessionPaused, resp.State)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/import/resume", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)

	waitForState(t, srv.orch, model.SessionCompleted)
	// Only the remaining batch (50 records) was submitted.
	assert.Equal(t, 50, ms.count())
}

func TestServeResume_NotPaused(t *testing.T) {
	_, _, h := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/import/resume", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "session not paused")
}

func TestServeLeads(t *testing.T) {
	_, ms, h := newTestServer(t)
	ms.leads = []model.Lead{
		{ID: "1", FullName: "Ana", TaxID: "111"},
		{ID: "2", FullName: "Bia", TaxID: "222"},
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/leads", nil))

	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Count int          `json:"count"`
		Leads []model.Lead `json:"leads"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Leads, 2)
	assert.Equal(t, "Ana", resp.Leads[0].FullName)
}

func TestServeExportCSV(t *testing.T) {
	_, ms, h := newTestServer(t)
	ms.leads = []model.Lead{
		{FullName: "Ana Silva", Email: "ana@x.com", TaxID: "12345678900", Product: "Kit", TotalValue: 67.9},
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/export.csv", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "leads.csv")

	lines := strings.Split(strings.TrimRight(rr.Body.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `"Name","Email","Phone","TaxId","Product","Value","Address"`, lines[0])
	assert.Contains(t, lines[1], `"Ana Silva"`)
	assert.Contains(t, lines[1], `"67.90"`)
}

// importRecords builds n minimal leads with distinct tax ids.
func importRecords(n int) []model.Lead {
	records := make([]model.Lead, n)
	for i := range records {
		records[i] = model.Lead{
			FullName:   "Lead",
			TaxID:      strconv.Itoa(i),
			LineNumber: i + 1,
		}
	}
	return records
}
