package observability

import (
	"context"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

// LogReporter writes every backend failure as a structured warning.
type LogReporter struct {
	Log *zap.Logger
}

func NewLogReporter(log *zap.Logger) *LogReporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogReporter{Log: log.Named("failures")}
}

func (r *LogReporter) ReportFailure(_ context.Context, id domain.AnalysisID, f domain.BackendFailure) {
	r.Log.Warn("backend failure",
		zap.String("analysis_id", string(id)),
		zap.String("backend", string(f.Backend)),
		zap.String("kind", string(f.Kind)),
		zap.String("message", f.Message),
		zap.Time("at", f.At),
	)
}
