package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulse.monitor/internal/db"
	"github.com/banshee-data/pulse.monitor/internal/fsutil"
	"github.com/banshee-data/pulse.monitor/internal/hrv"
	"github.com/banshee-data/pulse.monitor/internal/tachogram"
	"github.com/banshee-data/pulse.monitor/internal/testutil"
	"github.com/banshee-data/pulse.monitor/internal/ui"
)

type fakeScreen struct {
	data []byte
	err  error
}

func (f fakeScreen) PNG() ([]byte, error) { return f.data, f.err }

type testEnv struct {
	server  *Server
	mux     *http.ServeMux
	db      *db.DB
	history *db.History
	fs      *fsutil.MemoryFileSystem
	reports *tachogram.Writer
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	dbInst, err := db.NewDB(filepath.Join(t.TempDir(), "pulsemon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbInst.Close() })

	mfs := fsutil.NewMemoryFileSystem()
	env := &testEnv{
		db:      dbInst,
		history: db.NewHistory(dbInst, db.DefaultHistoryKeep),
		fs:      mfs,
		reports: tachogram.NewWriter(mfs, "/plots"),
	}
	env.server = NewServer(Config{
		DB:      dbInst,
		History: env.history,
		Status: func() ui.Status {
			return ui.Status{State: "hrv", SelectedRow: 2, Activity: "measuring", History: []string{ui.EmptyLabel}}
		},
		Screen:  fakeScreen{data: []byte("\x89PNG fake")},
		Reports: env.reports,
		FS:      mfs,
	})
	env.mux = env.server.ServeMux()
	return env
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, path))
	return w
}

func sampleCloudResult(at time.Time) hrv.Result {
	return hrv.Result{
		Source:    hrv.SourceCloud,
		MeanRRMs:  812.4,
		MeanHRBpm: 73.9,
		RMSSDMs:   31.2,
		SDNNMs:    28.7,
		Cloud: &hrv.CloudMetrics{
			StressIndex:     9.8,
			Readiness:       71,
			CreateTimestamp: at,
		},
	}
}

func TestListHistory(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	w := env.get(t, "/api/history")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.JSONEq(t, "[]", w.Body.String())

	at := time.Date(2025, 3, 1, 9, 5, 0, 0, time.UTC)
	require.NoError(t, env.history.Append(ctx, sampleCloudResult(at)))

	w = env.get(t, "/api/history")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var recs []db.HistoryRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	require.Len(t, recs, 1)
	assert.True(t, recs[0].CreatedAt.Equal(at))
	assert.Equal(t, 73.9, recs[0].Result.MeanHRBpm)
	require.NotNil(t, recs[0].Result.Cloud)
	assert.Equal(t, 9.8, recs[0].Result.Cloud.StressIndex)
}

func TestMethodNotAllowed(t *testing.T) {
	env := setupTestServer(t)
	for _, path := range []string{"/api/history", "/api/sessions", "/api/status", "/api/reports", "/reports/x.png", "/charts/history", "/display.png"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			env.mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodPost, path))
			testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
		})
	}
}

func TestListSessions(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, outcome := range []string{"completed", "cancelled", "completed"} {
		require.NoError(t, env.db.RecordSession(ctx, db.SessionRecord{
			Mode:      "hrv",
			Outcome:   outcome,
			Intervals: 29,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
			EndedAt:   base.Add(time.Duration(i)*time.Minute + 40*time.Second),
		}))
	}

	w := env.get(t, "/api/sessions?limit=2")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var got []db.SessionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.True(t, got[0].StartedAt.After(got[1].StartedAt), "newest first")

	for _, bad := range []string{"0", "-1", "abc", "501"} {
		w = env.get(t, "/api/sessions?limit="+bad)
		testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
	}
}

func TestShowStatus(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, env.db.RecordSession(ctx, db.SessionRecord{Mode: "heart_rate", Outcome: "cancelled", StartedAt: now, EndedAt: now}))

	w := env.get(t, "/api/status")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var got StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "dev", got.Version)
	require.NotNil(t, got.Device)
	assert.Equal(t, "hrv", got.Device.State)
	assert.Equal(t, "measuring", got.Device.Activity)
	assert.Equal(t, map[string]int{"cancelled": 1}, got.Sessions)
	assert.GreaterOrEqual(t, got.UptimeSeconds, 0.0)
}

func TestReports(t *testing.T) {
	env := setupTestServer(t)

	w := env.get(t, "/api/reports")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.JSONEq(t, "[]", w.Body.String())

	intervals := []int{800, 810, 790, 805, 820}
	r, err := hrv.Analyze(intervals)
	require.NoError(t, err)
	rep, err := env.reports.Write("local", intervals, r)
	require.NoError(t, err)

	w = env.get(t, "/api/reports")
	var names []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &names))
	assert.Equal(t, []string{filepath.Base(rep.Poincare), filepath.Base(rep.Tachogram)}, names)

	w = env.get(t, "/reports/"+filepath.Base(rep.Tachogram))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "\x89PNG"))

	tests := []struct {
		path string
		code int
	}{
		{"/reports/missing.png", http.StatusNotFound},
		{"/reports/bad%20name.png", http.StatusBadRequest},
		{"/reports/notes.txt", http.StatusBadRequest},
		{"/reports/", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			testutil.AssertStatusCode(t, env.get(t, tt.path).Code, tt.code)
		})
	}
}

func TestServeDisplay(t *testing.T) {
	env := setupTestServer(t)
	w := env.get(t, "/display.png")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, "\x89PNG fake", w.Body.String())

	env.server.cfg.Screen = fakeScreen{err: errors.New("encoder broke")}
	testutil.AssertStatusCode(t, env.get(t, "/display.png").Code, http.StatusInternalServerError)
}

func TestMissingCollaborators(t *testing.T) {
	mux := NewServer(Config{}).ServeMux()
	for _, path := range []string{"/api/history", "/api/sessions", "/api/reports", "/reports/a.png", "/charts/history", "/display.png"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, path))
			testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
		})
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/status"))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.NotContains(t, w.Body.String(), "device")
}

func TestHistoryChart(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()
	require.NoError(t, env.history.Append(ctx, sampleCloudResult(time.Date(2025, 3, 1, 9, 5, 0, 0, time.UTC))))
	require.NoError(t, env.db.RecordSession(ctx, db.SessionRecord{Mode: "kubios", Outcome: "completed", Intervals: 29, StartedAt: time.Now(), EndedAt: time.Now()}))

	w := env.get(t, "/charts/history")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "HRV history")
	assert.Contains(t, body, "01.03.25 09:05")
	assert.Contains(t, body, "RMSSD (ms)")
	assert.Contains(t, body, "Measurement sessions")
}

func TestLoggingMiddleware(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/status?x=1"))
	testutil.AssertStatusCode(t, w.Code, http.StatusTeapot)
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen + "200" + colorReset},
		{304, colorYellow + "304" + colorReset},
		{404, colorBoldRed + "404" + colorReset},
		{503, colorBoldRed + "503" + colorReset},
		{101, "101"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCodeColor(tt.code))
	}
}
