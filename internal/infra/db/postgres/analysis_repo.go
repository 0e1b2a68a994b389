package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

type AnalysisRepository struct{ db *sql.DB }

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository { return &AnalysisRepository{db: db} }

// Put inserts the analysis document; write-once, no ON CONFLICT.
func (r *AnalysisRepository) Put(ctx context.Context, a *domain.CombinedAnalysisResult) error {
	const q = `
INSERT INTO plant_analyses (id, status, confidence, created_at, document)
VALUES ($1,$2,$3,$4,$5)`
	doc, err := domain.MarshalDocument(a)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, string(a.ID), stringOrDash(string(a.Status)), a.Confidence, a.CreatedAt.UTC(), doc)
	if isDuplicate(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *AnalysisRepository) Get(ctx context.Context, id domain.AnalysisID) (*domain.CombinedAnalysisResult, error) {
	const q = `SELECT document FROM plant_analyses WHERE id=$1 LIMIT 1`
	var doc []byte
	if err := r.db.QueryRowContext(ctx, q, string(id)).Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return domain.UnmarshalDocument(doc)
}

// List newest first
func (r *AnalysisRepository) List(ctx context.Context, limit int) ([]*domain.CombinedAnalysisResult, error) {
	const q = `
SELECT document
FROM plant_analyses
ORDER BY created_at DESC, id DESC
LIMIT $1`
	rows, err := r.db.QueryContext(ctx, q, domain.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CombinedAnalysisResult
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		a, err := domain.UnmarshalDocument(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
