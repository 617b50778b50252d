package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/adscope/collector/internal/collector"
	"github.com/adscope/collector/internal/models"
	"github.com/adscope/collector/internal/observability"
)

type fakeRunner struct {
	gotParams collector.Params
	summary   *models.RunSummary
	err       error
}

func (f *fakeRunner) RunBatch(_ context.Context, params collector.Params) (*models.RunSummary, error) {
	f.gotParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.summary, nil
}

type fakeRunStore struct {
	run *models.BatchRun
	err error
}

func (f *fakeRunStore) GetLatestBatchRun(context.Context) (*models.BatchRun, error) {
	return f.run, f.err
}

type fakeLock struct {
	held     bool
	released int
}

func (f *fakeLock) AcquireRunLock(context.Context, string, time.Duration) (bool, error) {
	return !f.held, nil
}

func (f *fakeLock) ReleaseRunLock(context.Context, string) error {
	f.released++
	return nil
}

func newTestServer(runner BatchRunner, runs RunStore) *Server {
	return NewServer(zap.NewNop(), runner, runs, &observability.MockMetricsRegistry{})
}

func TestHealthHandler(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakeRunStore{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.HealthHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestTriggerRunHandler(t *testing.T) {
	runner := &fakeRunner{summary: &models.RunSummary{
		BatchRunID: "run-1",
		Status:     "completed",
	}}
	srv := newTestServer(runner, &fakeRunStore{})

	body := strings.NewReader(`{"mode":"full","domain":"example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/runs", body)
	rec := httptest.NewRecorder()
	srv.TriggerRunHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "api", runner.gotParams.TriggerType)
	assert.Equal(t, "full", runner.gotParams.Mode)
	assert.Equal(t, "example.com", runner.gotParams.Domain)

	var got models.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.BatchRunID)
}

func TestTriggerRunHandler_EmptyBody(t *testing.T) {
	runner := &fakeRunner{summary: &models.RunSummary{Status: "completed"}}
	srv := newTestServer(runner, &fakeRunStore{})

	req := httptest.NewRequest(http.MethodPost, "/runs", nil)
	rec := httptest.NewRecorder()
	srv.TriggerRunHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, runner.gotParams.Mode)
}

func TestTriggerRunHandler_BadMode(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakeRunStore{})

	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(`{"mode":"sideways"}`))
	rec := httptest.NewRecorder()
	srv.TriggerRunHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerRunHandler_RunFailure(t *testing.T) {
	srv := newTestServer(&fakeRunner{err: fmt.Errorf("postgres down")}, &fakeRunStore{})

	req := httptest.NewRequest(http.MethodPost, "/runs", nil)
	rec := httptest.NewRecorder()
	srv.TriggerRunHandler(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTriggerRunHandler_LockConflict(t *testing.T) {
	srv := newTestServer(&fakeRunner{summary: &models.RunSummary{}}, &fakeRunStore{})
	srv.Lock = &fakeLock{held: true}

	req := httptest.NewRequest(http.MethodPost, "/runs", nil)
	rec := httptest.NewRecorder()
	srv.TriggerRunHandler(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTriggerRunHandler_LockAcquiredAndReleased(t *testing.T) {
	lock := &fakeLock{}
	srv := newTestServer(&fakeRunner{summary: &models.RunSummary{Status: "completed"}}, &fakeRunStore{})
	srv.Lock = lock

	req := httptest.NewRequest(http.MethodPost, "/runs", nil)
	rec := httptest.NewRecorder()
	srv.TriggerRunHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, lock.released)
}

func TestLatestRunHandler(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakeRunStore{run: &models.BatchRun{
		ID:     "run-9",
		Status: models.RunStatusCompleted,
	}})

	req := httptest.NewRequest(http.MethodGet, "/runs/latest", nil)
	rec := httptest.NewRecorder()
	srv.LatestRunHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.BatchRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-9", got.ID)
}

func TestLatestRunHandler_NoRuns(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakeRunStore{})

	req := httptest.NewRequest(http.MethodGet, "/runs/latest", nil)
	rec := httptest.NewRecorder()
	srv.LatestRunHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(&fakeRunner{}, &fakeRunStore{})
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() {
		_ = resp2.Body.Close()
	}()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}
