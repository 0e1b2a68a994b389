package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

const reportTimeout = 3 * time.Second

// FailureRepository is the SQL failure log. It implements domain.FailureReporter.
type FailureRepository struct {
	db  *sql.DB
	log *zap.Logger
}

func NewFailureRepository(db *sql.DB, log *zap.Logger) *FailureRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &FailureRepository{db: db, log: log}
}

func (r *FailureRepository) Save(ctx context.Context, id domain.AnalysisID, f domain.BackendFailure) error {
	const q = `
INSERT INTO analysis_backend_errors
  (analysis_id, backend, kind, message, created_at)
VALUES (?,?,?,?,?)
`
	msg := f.Message
	if strings.TrimSpace(msg) == "" {
		msg = "-"
	}
	created := f.At
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q, dashIfEmpty(string(id)), dashIfEmpty(string(f.Backend)), dashIfEmpty(string(f.Kind)), msg, created.UTC())
	return err
}

// ReportFailure writes with a short timeout and only logs on error.
func (r *FailureRepository) ReportFailure(ctx context.Context, id domain.AnalysisID, f domain.BackendFailure) {
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()
	if err := r.Save(ctx, id, f); err != nil {
		r.log.Warn("failed to record backend failure",
			zap.String("analysis_id", string(id)),
			zap.String("backend", string(f.Backend)),
			zap.Error(err),
		)
	}
}

func (r *FailureRepository) ListByAnalysis(ctx context.Context, id domain.AnalysisID, limit int) ([]domain.BackendFailure, error) {
	const q = `
SELECT backend, kind, message, created_at
FROM analysis_backend_errors
WHERE analysis_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, string(id), domain.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.BackendFailure
	for rows.Next() {
		var f domain.BackendFailure
		if err := rows.Scan(&f.Backend, &f.Kind, &f.Message, &f.At); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
