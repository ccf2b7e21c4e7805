package server

import (
	"bytes"
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

	"github.com/rewired-gh/flareline/internal/metrics"
	"github.com/rewired-gh/flareline/internal/models"
	"github.com/rewired-gh/flareline/internal/storage"
	"github.com/rewired-gh/flareline/internal/timeline"
)

var day0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type testEnv struct {
	server *Server
	store  *storage.Storage
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New(false)
	svc := timeline.New(store, store, timeline.Options{Metrics: m})
	s, err := NewServer(svc, store, m, zap.NewNop(), &Config{Host: "localhost", Port: 8080, DefaultRange: 14 * 24 * time.Hour})
	require.NoError(t, err)
	s.now = func() time.Time { return day0.Add(14 * 24 * time.Hour) }
	return &testEnv{server: s, store: store}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func dairyHeadache(n int) []models.TimelineEvent {
	var events []models.TimelineEvent
	for d := 0; d < n; d++ {
		at := day0.Add(time.Duration(d) * 24 * time.Hour)
		events = append(events,
			models.TimelineEvent{ID: fmt.Sprintf("f-%02d", d), Type: models.EventFood, Timestamp: at.Add(8 * time.Hour), Items: []string{"Dairy"}},
			models.TimelineEvent{ID: fmt.Sprintf("s-%02d", d), Type: models.EventSymptom, Timestamp: at.Add(11 * time.Hour), Items: []string{"Headache"}},
		)
	}
	return events
}

func TestNewServer(t *testing.T) {
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	svc := timeline.New(store, store, timeline.Options{})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		s, err := NewServer(svc, store, nil, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", s.config.Host)
		assert.Equal(t, 8080, s.config.Port)
		assert.Equal(t, 7*24*time.Hour, s.config.DefaultRange)
		assert.Equal(t, "localhost:8080", s.config.Address())
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(svc, store, nil, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when service is nil", func(t *testing.T) {
		_, err := NewServer(nil, store, nil, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeline service cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestEventsRecalculatePatterns(t *testing.T) {
	env := setupTestServer(t)

	events := dairyHeadache(10)
	events[0].ID = ""
	rec := env.do(t, http.MethodPost, "/api/v1/users/u1/events", EventsRequest{Events: events})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var saved EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Equal(t, 20, saved.Saved)
	assert.Len(t, saved.IDs[0], 36, "missing ids are generated")

	rec = env.do(t, http.MethodPost, "/api/v1/users/u1/recalculate", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var recalc RecalculateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recalc))
	require.Len(t, recalc.Correlations, 1)
	assert.True(t, recalc.Start.Equal(day0))

	rec = env.do(t, http.MethodGet, "/api/v1/users/u1/patterns", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp PatternsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, 20, resp.EventCount)
	require.Len(t, resp.Patterns, 1)
	assert.Equal(t, 10, resp.Patterns[0].Frequency)
	assert.Equal(t, []string{"food-symptom"}, resp.Presentation.AvailableTypes)
	assert.Equal(t, []string{resp.Patterns[0].ID}, resp.Presentation.PatternsByEventID["s-05"])
	assert.Empty(t, resp.Skipped)
	assert.Empty(t, rec.Header().Get("X-Flareline-Superseded"))
}

func TestHandlePatterns_ExplicitRange(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodPost, "/api/v1/users/u1/events", EventsRequest{Events: dairyHeadache(3)})
	require.Equal(t, http.StatusCreated, rec.Code)

	target := "/api/v1/users/u1/patterns?start=2026-03-02T00:00:00Z&end=2026-03-03T00:00:00Z"
	rec = env.do(t, http.MethodGet, target, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PatternsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.EventCount)
	assert.NotNil(t, resp.Patterns)
	assert.Empty(t, resp.Patterns)
}

func TestHandlePatterns_BadRange(t *testing.T) {
	env := setupTestServer(t)

	tests := []string{
		"/api/v1/users/u1/patterns?start=yesterday",
		"/api/v1/users/u1/patterns?end=not-a-time",
		"/api/v1/users/u1/patterns?start=2026-03-05T00:00:00Z&end=2026-03-01T00:00:00Z",
	}
	for _, target := range tests {
		rec := env.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestHandleEvents_Invalid(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/users/u1/events", EventsRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	bad := EventsRequest{Events: []models.TimelineEvent{{ID: "x", Type: "nap", Timestamp: day0}}}
	rec = env.do(t, http.MethodPost, "/api/v1/users/u1/events", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "event 0")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/u1/events", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	raw := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestHandleMetrics(t *testing.T) {
	env := setupTestServer(t)
	env.do(t, http.MethodGet, "/api/v1/users/u1/patterns", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flareline_detections_total 1")
}
