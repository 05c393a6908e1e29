package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"salonindex/internal/blobstore"
	"salonindex/internal/config"
)

func newTestApp(t *testing.T) *App {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	settingsCols := []string{"id", "gemini_api_key", "gemini_model", "enrich_rate_per_minute"}
	mock.ExpectQuery(`SELECT id, gemini_api_key, gemini_model, enrich_rate_per_minute FROM settings`).
		WillReturnRows(sqlmock.NewRows(settingsCols).AddRow(1, "", "", 0))
	mock.ExpectExec(`UPDATE settings`).
		WithArgs("", "gemini-1.5-flash", 30).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := &config.Config{
		GeminiModel:          "gemini-1.5-flash",
		EnrichRatePerMinute:  30,
		IndexScanConcurrency: 2,
		ProgressLogCap:       20,
		ServerPort:           8081,
		QueryLogPath:         filepath.Join(t.TempDir(), "query.log"),
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	a, err := New(cfg, db, blobstore.NewMemoryStore(), nil, logger)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
	return a
}

func TestNew(t *testing.T) {
	a := newTestApp(t)
	assert.NotNil(t, a.Handler)
	assert.NotNil(t, a.Builder)
	assert.NotNil(t, a.EnrichConsumer)
	assert.NotNil(t, a.detached, "without a queue runs execute in process")

	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	a.Close()
}

func TestRoutes(t *testing.T) {
	a := newTestApp(t)

	t.Run("Progress starts idle", func(t *testing.T) {
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/enrichment/progress", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "IDLE", body["data"]["status"])
		assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
	})

	t.Run("Index absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/index/tiers/100", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Stop round trip", func(t *testing.T) {
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest("POST", "/stop", strings.NewReader(`{"source":"ops","reason":"quota"}`)))
		require.Equal(t, http.StatusAccepted, w.Code)

		w = httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/stop", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"pending":1`)

		w = httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest("DELETE", "/stop", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"cleared":1`)
	})

	t.Run("Reset with no job running", func(t *testing.T) {
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest("POST", "/enrichment/progress/reset", nil))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), `"NOT_RUNNING"`)
	})

	t.Run("Metrics exposed", func(t *testing.T) {
		w := httptest.NewRecorder()
		a.Handler.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "salonindex_enrichment_running")
	})
}
