package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"sensor-rectifier/analytics"
	"sensor-rectifier/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	latest *models.ProcessedReading
}

func (s *fakeStore) SaveResult(_ context.Context, result models.ProcessedReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = &result
	return nil
}

func (s *fakeStore) GetLatest(_ context.Context) (*models.ProcessedReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, nil
}

type processResponse struct {
	Original  map[string]any  `json:"original"`
	Corrected map[string]any  `json:"corrected"`
	Anomalies map[string]bool `json:"anomalies"`
	Error     string          `json:"error"`
}

func newTestRouter(opts ...analytics.EngineOption) (http.Handler, *analytics.AnalyticsEngine) {
	engine := analytics.NewAnalyticsEngine(analytics.NewAnomalyDetector(analytics.DetectorConfig{}), opts...)
	return NewRouter(engine), engine
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, processResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp processResponse
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestHandleProcess(t *testing.T) {
	t.Parallel()

	t.Run("clamps out of range value on empty history", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter()

		rec, resp := do(t, router, http.MethodPost, "/process", `{"temperature": 55}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"temperature": 55.0}, resp.Original)
		assert.Equal(t, map[string]any{"temperature": 40.0}, resp.Corrected)
		assert.Equal(t, map[string]bool{"temperature": true}, resp.Anomalies)

		rec, resp = do(t, router, http.MethodPost, "/process", `{"temperature": 22}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"temperature": 22.0}, resp.Corrected)
		assert.Equal(t, map[string]bool{"temperature": false}, resp.Anomalies)
	})

	t.Run("echoes unknown keys", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter()

		rec, resp := do(t, router, http.MethodPost, "/process",
			`{"counter": 12, "temperature": 24.1, "humidity": 55, "light": 2000, "timestamp": 99}`)
		require.Equal(t, http.StatusOK, rec.Code)

		assert.Equal(t, 12.0, resp.Original["counter"])
		assert.Equal(t, 12.0, resp.Corrected["counter"])
		assert.Equal(t, 99.0, resp.Corrected["timestamp"])
		assert.Equal(t, 1024.0, resp.Corrected["light"])
		assert.Equal(t, map[string]bool{
			"temperature": false,
			"humidity":    false,
			"light":       true,
		}, resp.Anomalies)
	})

	t.Run("missing body is a bad request", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter()

		for _, body := range []string{"", "{}", "null", "not json"} {
			rec, resp := do(t, router, http.MethodPost, "/process", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
			assert.NotEmpty(t, resp.Error, body)
		}
	})

	t.Run("non-numeric field fails the whole request", func(t *testing.T) {
		t.Parallel()
		router, engine := newTestRouter()

		rec, resp := do(t, router, http.MethodPost, "/process", `{"temperature": 21, "humidity": "wet"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, resp.Error, "humidity")

		for f, vals := range engine.History() {
			assert.Empty(t, vals, "history for %s must be untouched", f)
		}
	})

	t.Run("oversized body is rejected with 413", func(t *testing.T) {
		t.Parallel()
		router, engine := newTestRouter()

		body := `{"temperature": 22, "note": "` + strings.Repeat("x", maxBodyBytes) + `"}`
		rec, resp := do(t, router, http.MethodPost, "/process", body)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Contains(t, resp.Error, "exceeds")
		assert.Empty(t, engine.History()[models.Temperature])
	})

	t.Run("overflowing number is clamped", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter()

		req := httptest.NewRequest(http.MethodPost, "/process", strings.NewReader(`{"temperature": 1e400, "light": true}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Corrected map[string]float64 `json:"corrected"`
			Anomalies map[string]bool    `json:"anomalies"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, map[string]float64{"temperature": 40, "light": 1}, resp.Corrected)
		assert.Equal(t, map[string]bool{"temperature": true, "light": false}, resp.Anomalies)
	})

	t.Run("wrong method", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter()

		rec, _ := do(t, router, http.MethodGet, "/process", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHandleLatest(t *testing.T) {
	t.Parallel()

	t.Run("no store configured", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter()

		rec, _ := do(t, router, http.MethodGet, "/latest", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("nothing processed yet", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter(analytics.WithStore(&fakeStore{}))

		rec, _ := do(t, router, http.MethodGet, "/latest", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("returns last processed reading", func(t *testing.T) {
		t.Parallel()
		router, engine := newTestRouter(analytics.WithStore(&fakeStore{}))

		do(t, router, http.MethodPost, "/process", `{"humidity": 120}`)
		engine.Flush()

		rec, resp := do(t, router, http.MethodGet, "/latest", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"humidity": 90.0}, resp.Corrected)
		assert.Equal(t, map[string]bool{"humidity": true}, resp.Anomalies)
	})
}

func TestHandleHistory(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter()

	do(t, router, http.MethodPost, "/process", `{"light": 300}`)
	do(t, router, http.MethodPost, "/process", `{"light": 5000}`)

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		WindowSize int                  `json:"window_size"`
		History    map[string][]float64 `json:"history"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 20, body.WindowSize)
	assert.Equal(t, []float64{300, 300}, body.History["light"])
	assert.Empty(t, body.History["temperature"])
}

func TestHealthAndIndex(t *testing.T) {
	t.Parallel()
	router, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var health models.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "AnomalyDetector v1.0", health.Model)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"online"`)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("generates request id", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter()

		rec, _ := do(t, router, http.MethodGet, "/health", "")
		assert.Len(t, rec.Header().Get(requestIDHeader), 36)
	})

	t.Run("keeps caller request id", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter()

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(requestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
	})

	t.Run("cors preflight", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter()

		req := httptest.NewRequest(http.MethodOptions, "/process", nil)
		req.Header.Set("Origin", "http://dashboard.local")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	})

	t.Run("counts requests by route template", func(t *testing.T) {
		t.Parallel()
		router, _ := newTestRouter()

		scrape := httpRequestsTotal.WithLabelValues(http.MethodGet, "/metrics", "200")
		notFound := httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedEndpoint, "404")
		beforeScrape := testutil.ToFloat64(scrape)
		beforeNotFound := testutil.ToFloat64(notFound)

		rec, _ := do(t, router, http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, rec.Code)
		rec, _ = do(t, router, http.MethodGet, "/no-such-path", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

		assert.Equal(t, beforeScrape+1, testutil.ToFloat64(scrape))
		assert.Equal(t, beforeNotFound+1, testutil.ToFloat64(notFound))
	})

	t.Run("recovers from panic", func(t *testing.T) {
		t.Parallel()
		h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "internal server error")
	})
}
