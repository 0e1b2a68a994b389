package middleware

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(GetClientFromContext(r.Context())))
	})
}

func TestAPIKeyAuth(t *testing.T) {
	h := APIKeyAuth(map[string]string{"farm-app": "s3cret"})(okHandler())

	cases := []struct {
		name   string
		path   string
		header string
		code   int
		body   string
	}{
		{"missing header", "/v1/backends", "", http.StatusUnauthorized, ""},
		{"wrong key", "/v1/backends", "Bearer nope", http.StatusUnauthorized, ""},
		{"bearer key", "/v1/backends", "Bearer s3cret", http.StatusOK, "farm-app"},
		{"bare key", "/v1/backends", "s3cret", http.StatusOK, "farm-app"},
		{"public path", "/healthz", "", http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
			if tc.code == http.StatusOK {
				assert.Equal(t, tc.body, rec.Body.String())
			}
		})
	}
}

func TestAPIKeyAuthDisabled(t *testing.T) {
	h := APIKeyAuth(nil)(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/backends", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenBucketRefill(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewTokenBucket(2, 1, t0) // 1 token/s

	assert.True(t, b.Allow(t0))
	assert.True(t, b.Allow(t0))
	assert.False(t, b.Allow(t0))
	assert.Equal(t, time.Second, b.RetryAfter())

	assert.False(t, b.Allow(t0.Add(500*time.Millisecond)))
	assert.True(t, b.Allow(t0.Add(1500*time.Millisecond)))
	// never above capacity
	later := t0.Add(time.Hour)
	assert.True(t, b.Allow(later))
	assert.True(t, b.Allow(later))
	assert.False(t, b.Allow(later))
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	h := rl.Middleware(okHandler())
	do := func(path, addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("/v1/backends", "10.0.0.1:1234").Code)
	rec := do("/v1/backends", "10.0.0.1:5678")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// other client ip has its own bucket
	assert.Equal(t, http.StatusOK, do("/v1/backends", "10.0.0.2:1234").Code)
	// health is never limited
	assert.Equal(t, http.StatusOK, do("/health", "10.0.0.1:1234").Code)

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, do("/v1/backends", "10.0.0.1:1234").Code)
}

func TestRateLimiterEvictsIdle(t *testing.T) {
	rl := NewRateLimiter(60, 5)
	rl.Stop()
	rl.Stop()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("a")
	now = now.Add(11 * time.Minute)
	rl.Allow("b")
	rl.evictIdle(10 * time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Len(t, rl.buckets, 1)
	assert.Contains(t, rl.buckets, "b")
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "[::1]", clientIP(r))
	r.RemoteAddr = "192.0.2.1"
	assert.Equal(t, "192.0.2.1", clientIP(r))
}

func TestLoggingLevels(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	h := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "boom") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("hello"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(5), entries[0].ContextMap()["bytes"])
	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, int64(500), entries[1].ContextMap()["status"])
}

func TestHTTPMetricsUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/analyses/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/analyses/a1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/analyses/a2", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/v1/analyses/{id}", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestHealthHandler(t *testing.T) {
	h := HealthHandler(map[string]HealthChecker{
		"store":   CheckFunc(func(context.Context) error { return nil }),
		"archive": CheckFunc(func(context.Context) error { return errors.New("bucket gone") }),
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
	assert.Contains(t, rec.Body.String(), "bucket gone")

	rec = httptest.NewRecorder()
	HealthHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthHandlerRunsChecksConcurrently(t *testing.T) {
	// both checks wait for each other; sequential checks would time out
	var ready sync.WaitGroup
	ready.Add(2)
	wait := CheckFunc(func(ctx context.Context) error {
		ready.Done()
		done := make(chan struct{})
		go func() { ready.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	h := HealthHandler(map[string]HealthChecker{"database": wait, "archive": wait})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status    string `json:"status"`
			LatencyMS *int64 `json:"latency_ms"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "healthy", report.Status)
	require.Len(t, report.Checks, 2)
	assert.NotNil(t, report.Checks["archive"].LatencyMS)
}

func TestDatabaseHealthChecker(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	c := &DatabaseHealthChecker{DB: db}
	assert.NoError(t, c.Check(context.Background()))
	assert.EqualError(t, c.Check(context.Background()), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://cdn.example.com/leaf.jpg"))
	for _, bad := range []string{
		"",
		"ftp://example.com/a.jpg",
		"http://localhost/a.jpg",
		"http://127.0.0.1/a.jpg",
		"http://[::1]/a.jpg",
		"http://10.1.2.3/a.jpg",
		"http://192.168.0.10/a.jpg",
		"http://169.254.169.254/latest",
		"https:///nohost",
	} {
		assert.Error(t, ValidateURL(bad), bad)
	}
}

func TestValidateImageData(t *testing.T) {
	assert.NoError(t, ValidateImageData(base64.StdEncoding.EncodeToString([]byte("\xff\xd8\xff"))))
	assert.Error(t, ValidateImageData(""))
	assert.Error(t, ValidateImageData("not base64!!"))
	big := strings.Repeat("A", base64.StdEncoding.EncodedLen(MaxImageBytes+3))
	assert.Error(t, ValidateImageData(big))
}

func TestValidateIDs(t *testing.T) {
	assert.NoError(t, ValidateAnalysisID("3f2a9c1e-8b7d-4e6f-9a0b-1c2d3e4f5a6b"))
	assert.Error(t, ValidateAnalysisID(""))
	assert.Error(t, ValidateAnalysisID("../etc/passwd"))

	assert.NoError(t, ValidateBackendID("plant_id"))
	assert.NoError(t, ValidateBackendID("gemini-2.5"))
	assert.Error(t, ValidateBackendID("Plant ID"))
	assert.Error(t, ValidateBackendID(""))
}

func TestSanitizeAndLimit(t *testing.T) {
	assert.Equal(t, "tomato leaf", SanitizeString("  tomato\x00 leaf\x07 "))
	assert.Equal(t, 20, ValidateLimit(0))
	assert.Equal(t, 100, ValidateLimit(500))
	assert.Equal(t, 7, ValidateLimit(7))
}
