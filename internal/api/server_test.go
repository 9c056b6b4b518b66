package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/you/qragasync/internal/domain"
	"github.com/you/qragasync/internal/export"
	"github.com/you/qragasync/internal/queue"
	"github.com/you/qragasync/internal/sink"
	"github.com/you/qragasync/internal/transform"
)

type memCatalog struct{ products []domain.Product }

func (m *memCatalog) Count(context.Context) (int, error) { return len(m.products), nil }

func (m *memCatalog) Page(_ context.Context, page, size int) ([]domain.Product, error) {
	start := (page - 1) * size
	if start >= len(m.products) {
		return nil, nil
	}
	end := start + size
	if end > len(m.products) {
		end = len(m.products)
	}
	return m.products[start:end], nil
}

type memSink struct{}

func (memSink) SendBulk(context.Context, []domain.ProductPayload) error { return nil }

type memStore struct {
	recs   map[string]*domain.JobRecord
	active string
}

func (m *memStore) Get(_ context.Context, id string) (*domain.JobRecord, error) {
	return m.recs[id], nil
}
func (m *memStore) Put(_ context.Context, rec *domain.JobRecord) error {
	cp := *rec
	m.recs[rec.JobID] = &cp
	return nil
}
func (m *memStore) Delete(_ context.Context, id string) error { delete(m.recs, id); return nil }
func (m *memStore) ActiveJob(context.Context) (string, error) { return m.active, nil }
func (m *memStore) SetActiveJob(_ context.Context, id string) error {
	m.active = id
	return nil
}
func (m *memStore) ClearActiveJob(context.Context) error { m.active = ""; return nil }
func (m *memStore) TryLock(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}
func (m *memStore) Unlock(context.Context, string) error { return nil }

type memSched struct{}

func (memSched) Schedule(context.Context, queue.Task, time.Time) error { return nil }

func testServer(products int) *httptest.Server {
	cat := &memCatalog{}
	for i := 1; i <= products; i++ {
		cat.products = append(cat.products, domain.Product{
			ID: int64(i), Title: "P", Status: "publish", Type: domain.Simple, Price: "1.00",
		})
	}
	cfg := sink.Config{BaseURL: "https://api.example", SiteID: "s", APIKey: "k"}
	ctrl := export.New(export.Params{
		Catalog:     cat,
		Sink:        memSink{},
		Transformer: transform.New("USD"),
		Store:       &memStore{recs: map[string]*domain.JobRecord{}},
		Scheduler:   memSched{},
		SinkConfig:  cfg,
		BatchSize:   50,
		Log:         zap.NewNop(),
	})
	syncer := export.NewItemSyncer(nil, nil, transform.New("USD"), cfg, zap.NewNop())
	return httptest.NewServer(NewServer(ctrl, syncer, zap.NewNop()).Router())
}

func TestStartExportEndpoint(t *testing.T) {
	srv := testServer(10)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/export", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body export.StartResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, export.StartQueued, body.Status)
	assert.NotEmpty(t, body.JobID)
	assert.Equal(t, 10, body.Total)

	// Re-trigger while active: same job, 200 instead of 202.
	resp2, err := http.Post(srv.URL+"/v1/export", "application/json", nil)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	var body2 export.StartResult
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&body2))
	assert.Equal(t, export.StartActiveJobFound, body2.Status)
	assert.Equal(t, body.JobID, body2.JobID)
}

func TestStartExportEmptyCatalog(t *testing.T) {
	srv := testServer(0)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/export", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body export.StartResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, export.StartComplete, body.Status)
}

func TestJobStatusNotFound(t *testing.T) {
	srv := testServer(0)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/export/export_nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCurrentJobWithoutActiveExport(t *testing.T) {
	srv := testServer(5)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/export/current")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "no_active_job", body["status"])
}

func TestCurrentJobReturnsActiveRecord(t *testing.T) {
	srv := testServer(5)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/export", "application/json", nil)
	require.NoError(t, err)
	var started export.StartResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&started))
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/export/current")
	require.NoError(t, err)
	defer resp.Body.Close()

	var rec domain.JobRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, started.JobID, rec.JobID)
	assert.Equal(t, domain.Queued, rec.Status)
}

func TestInvalidProductID(t *testing.T) {
	srv := testServer(0)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/products/abc/sync", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := testServer(0)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
