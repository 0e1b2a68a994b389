package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	healthTimeout = 5 * time.Second
	// satu dependency lambat tidak boleh menahan yang lain
	checkTimeout = 2 * time.Second
)

// HealthChecker is one dependency the engine needs to serve analyses.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseHealthChecker pings the Result Store's database.
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}

type healthReport struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]checkResult `json:"checks"`
}

type checkResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// HealthHandler runs every checker concurrently and answers 503 when any fails.
func HealthHandler(checkers map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		report := healthReport{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
			Checks:    make(map[string]checkResult, len(checkers)),
		}
		var (
			mu sync.Mutex
			g  errgroup.Group
		)
		for name, checker := range checkers {
			g.Go(func() error {
				res := runCheck(ctx, checker)
				mu.Lock()
				defer mu.Unlock()
				report.Checks[name] = res
				if res.Status != "healthy" {
					report.Status = "unhealthy"
				}
				return nil
			})
		}
		_ = g.Wait()

		code := http.StatusOK
		if report.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}
}

func runCheck(ctx context.Context, c HealthChecker) checkResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	err := c.Check(ctx)
	res := checkResult{Status: "healthy", LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = "unhealthy"
		res.Message = err.Error()
	}
	return res
}

// LivenessHandler answers as long as the process serves HTTP.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
