package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strideworks/stride/pkg/analytics"
	"github.com/strideworks/stride/pkg/backup"
	"github.com/strideworks/stride/pkg/observability"
	"github.com/strideworks/stride/pkg/store"
	"github.com/strideworks/stride/pkg/syncqueue"
)

type testServer struct {
	server     *Server
	store      store.Store
	aggregator *analytics.Aggregator
	manager    *backup.Manager
	queue      *syncqueue.Queue
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	st, err := store.NewWithDB(db)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := observability.NopLogger()
	aggregator := analytics.NewAggregator(st, logger, nil)
	manager, err := backup.NewManager(st, aggregator, t.TempDir(), "test-device", logger, nil)
	require.NoError(t, err)
	queue := syncqueue.NewQueue(st, noopDeliverer{}, nil, 3, logger, nil)

	return &testServer{
		server:     NewServer(aggregator, manager, queue, logger),
		store:      st,
		aggregator: aggregator,
		manager:    manager,
		queue:      queue,
	}
}

type noopDeliverer struct{}

func (noopDeliverer) Deliver(ctx context.Context, item *syncqueue.Item) error { return nil }

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.server.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRecordSessionAndExercise(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/exercises", map[string]interface{}{
		"kind": "squats", "amount": 12,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/analytics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary analytics.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.TotalSessions)
	assert.Equal(t, 12, summary.TotalExercises)
	assert.Equal(t, 12, summary.Distribution[store.ExerciseSquats])

	// Both mutations were queued for sync.
	assert.Equal(t, 2, ts.queue.GetStatus().Pending)
}

func TestRecordExerciseValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/exercises", map[string]interface{}{
		"kind": "juggling", "amount": 5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/exercises", map[string]interface{}{
		"kind": "squats", "amount": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/exercises", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Invalid mutations never reach the queue.
	assert.Zero(t, ts.queue.GetStatus().Pending)
}

func TestExportCSV(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/exercises", map[string]interface{}{
		"kind": "plank", "amount": 3,
	})

	rec := ts.do(t, http.MethodGet, "/api/v1/analytics/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(rec.Body.String(), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Date,Sessions,Exercises,Squats,Pushups,Plank,Stretching,Cardio", lines[0])
}

func TestClearRecords(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/exercises", map[string]interface{}{
		"kind": "cardio", "amount": 20,
	})

	rec := ts.do(t, http.MethodDelete, "/api/v1/records", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/analytics", nil)
	var summary analytics.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Zero(t, summary.TotalExercises)
}

func TestBackupLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/exercises", map[string]interface{}{
		"kind": "pushups", "amount": 15,
	})

	rec := ts.do(t, http.MethodPost, "/api/v1/backups", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Key)

	rec = ts.do(t, http.MethodGet, "/api/v1/backups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []backup.SnapshotInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, created.Key, infos[0].Key)

	rec = ts.do(t, http.MethodGet, "/api/v1/backups/"+created.Key, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Wipe the data, then restore from the snapshot key.
	ts.do(t, http.MethodDelete, "/api/v1/records", nil)
	rec = ts.do(t, http.MethodPost, "/api/v1/backups/restore", map[string]string{
		"key": created.Key,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/analytics", nil)
	var summary analytics.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 15, summary.TotalExercises)
}

func TestRestoreRejectsBadDocuments(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/backups/restore", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/backups/restore", map[string]interface{}{
		"snapshot": map[string]interface{}{
			"formatVersion": "9.0.0",
			"data":          map[string]interface{}{"dailyRecords": []interface{}{}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/backups/restore", map[string]string{
		"key": "stride-backup-00000000000000000001.json",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackupNotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/backups/stride-backup-00000000000000000001.json", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackupSettings(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/backups/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var settings backup.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.True(t, settings.AutoBackupEnabled)
	assert.Equal(t, backup.FrequencyWeekly, settings.BackupFrequency)

	settings.BackupFrequency = backup.FrequencyDaily
	settings.MaxBackupFiles = 5
	rec = ts.do(t, http.MethodPut, "/api/v1/backups/settings", settings)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/backups/settings", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, backup.FrequencyDaily, settings.BackupFrequency)
	assert.Equal(t, 5, settings.MaxBackupFiles)

	// Settings changes replicate through the queue.
	status := ts.queue.GetStatus()
	require.NotEmpty(t, status.Items)
	assert.Equal(t, syncqueue.KindSettingsUpdate, status.Items[len(status.Items)-1].Kind)

	// Invalid settings are rejected.
	settings.BackupFrequency = "hourly"
	rec = ts.do(t, http.MethodPut, "/api/v1/backups/settings", settings)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncStatusAndDrain(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/sessions", nil)

	rec := ts.do(t, http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status syncqueue.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Online)
	assert.Equal(t, 1, status.Pending)

	// Draining while offline changes nothing.
	rec = ts.do(t, http.MethodPost, "/api/v1/sync/drain", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 1, status.Pending)

	rec = ts.do(t, http.MethodPut, "/api/v1/sync/online", map[string]bool{"online": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/sync/drain", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Online)
}

func TestUnknownRouteReturns404(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/%s", "nope"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
