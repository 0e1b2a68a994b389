package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

const namespace = "agrivision"

// Metrics is the prometheus side of the engine: backend latency, failures by
// kind and analysis outcomes. It satisfies the service Recorder and
// domain.FailureReporter.
type Metrics struct {
	backendDuration *prometheus.HistogramVec
	backendFailures *prometheus.CounterVec
	analyses        *prometheus.CounterVec
	confidence      prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Backend call latency by backend and outcome.",
			Buckets:   []float64{.25, .5, 1, 2, 5, 10, 20, 40, 90},
		}, []string{"backend", "outcome"}),
		backendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "failures_total",
			Help:      "Backend failures by backend and error kind.",
		}, []string{"backend", "kind"}),
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Completed analyses by status.",
		}, []string{"status"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_confidence",
			Help:      "Weighted confidence of stored analyses.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
	}
	reg.MustRegister(m.backendDuration, m.backendFailures, m.analyses, m.confidence)
	return m
}

// ObserveBackend records one branch; an empty kind means success.
func (m *Metrics) ObserveBackend(id domain.BackendID, d time.Duration, kind domain.ErrorKind) {
	outcome := "ok"
	if kind != "" {
		outcome = string(kind)
	}
	m.backendDuration.WithLabelValues(string(id), outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveAnalysis(status domain.Status, confidence float64) {
	m.analyses.WithLabelValues(string(status)).Inc()
	m.confidence.Observe(confidence)
}

// ReportFailure counts failures, including the ones recorded without a call (unknown backend, cancelled).
func (m *Metrics) ReportFailure(_ context.Context, _ domain.AnalysisID, f domain.BackendFailure) {
	m.backendFailures.WithLabelValues(string(f.Backend), string(f.Kind)).Inc()
}
