package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadflow/internal/entity"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	clock := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "limits are per client")

	clock = clock.Add(61 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "window reset")
}

func TestRateLimiterCleanupDropsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	clock := time.Date(2024, 12, 1, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	rl.lastCleanup = clock

	rl.Allow("10.0.0.1")
	clock = clock.Add(11 * time.Minute)
	rl.Allow("10.0.0.2")

	_, stale := rl.visitors["10.0.0.1"]
	assert.False(t, stale)
	assert.Len(t, rl.visitors, 1)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	h := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/leads", nil)
	req.RemoteAddr = "192.0.2.1:5555"

	first := httptest.NewRecorder()
	h.ServeHTTP(first, req)
	assert.Equal(t, http.StatusNoContent, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body["error"])
}

func TestRateLimitNilLimiter(t *testing.T) {
	h := RateLimit(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:1234"
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.RemoteAddr = "198.51.100.7"
	assert.Equal(t, "198.51.100.7", clientIP(req))
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/widgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/widgets/{id}", "418"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/widgets/42", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/widgets/{id}", "418")))
}

type stubPublisher struct {
	events []entity.StageChangedEvent
	err    error
}

func (p *stubPublisher) PublishStageChanged(ctx context.Context, ev entity.StageChangedEvent) error {
	p.events = append(p.events, ev)
	return p.err
}

func TestInstrumentPublisher(t *testing.T) {
	next := &stubPublisher{err: errors.New("broker down")}
	pub := InstrumentPublisher(next)

	created := testutil.ToFloat64(leadsCreated)
	moved := testutil.ToFloat64(stageTransitions.WithLabelValues("New", "Contacted"))

	require.NoError(t, InstrumentPublisher(&stubPublisher{}).PublishStageChanged(context.Background(),
		entity.StageChangedEvent{LeadID: 1, To: entity.StageNew}))

	err := pub.PublishStageChanged(context.Background(),
		entity.StageChangedEvent{LeadID: 1, From: entity.StageNew, To: entity.StageContacted})
	assert.EqualError(t, err, "broker down")
	assert.Len(t, next.events, 1)

	assert.Equal(t, created+1, testutil.ToFloat64(leadsCreated))
	assert.Equal(t, moved+1, testutil.ToFloat64(stageTransitions.WithLabelValues("New", "Contacted")))
}

func TestRecordImport(t *testing.T) {
	imported := testutil.ToFloat64(importRows.WithLabelValues("imported"))
	skipped := testutil.ToFloat64(importRows.WithLabelValues("skipped"))

	RecordImport(3, 2)

	assert.Equal(t, imported+3, testutil.ToFloat64(importRows.WithLabelValues("imported")))
	assert.Equal(t, skipped+2, testutil.ToFloat64(importRows.WithLabelValues("skipped")))
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(logger))
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "/boom", entry["path"])
	assert.Equal(t, float64(500), entry["status"])
	assert.NotEmpty(t, entry["request_id"])
}
