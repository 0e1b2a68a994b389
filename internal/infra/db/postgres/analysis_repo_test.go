package postgres

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

func TestPutGetRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	a, err := domain.Canonical(&domain.CombinedAnalysisResult{
		ID:        "an-9",
		CreatedAt: at,
		Request: domain.AnalysisRequest{
			ImageData: "aGVsbG8=",
			ImageMIME: "image/png",
			Context:   map[string]any{"plant_age": 40, "indoor": true},
			Backends:  []domain.BackendID{"plant_id", "gemini"},
		},
		Results: []domain.BackendResult{{
			Backend:   "gemini",
			Timestamp: at,
			Result: domain.NormalizedResult{
				Confidence:      0.9,
				Diseases:        []domain.DiseaseDetection{},
				Recommendations: []string{},
			},
			Raw: []byte(`{ "candidates": [ ] , "z": 1, "a": 2 }`),
		}},
		Failures:   []domain.BackendFailure{{Backend: "plant_id", Kind: domain.KindTimeout, Message: "deadline", At: at}},
		Confidence: 0.9,
		Status:     domain.StatusPartial,
	})
	require.NoError(t, err)
	doc, err := domain.MarshalDocument(a)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO plant_analyses (id, status, confidence, created_at, document)")).
		WithArgs("an-9", "partial", 0.9, a.CreatedAt, doc).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT document FROM plant_analyses WHERE id=$1")).
		WithArgs("an-9").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow(doc))

	repo := NewAnalysisRepository(db)
	require.NoError(t, repo.Put(context.Background(), a))

	got, err := repo.Get(context.Background(), "an-9")
	require.NoError(t, err)
	assert.Equal(t, a, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO plant_analyses").WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err = NewAnalysisRepository(db).Put(context.Background(), &domain.CombinedAnalysisResult{ID: "an-9"})
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT document FROM plant_analyses").WillReturnError(sql.ErrNoRows)

	_, err = NewAnalysisRepository(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListDefaultLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $1")).
		WithArgs(domain.DefaultListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"document"}))

	list, err := NewAnalysisRepository(db).List(context.Background(), -1)
	require.NoError(t, err)
	assert.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBadDocument(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM plant_analyses").
		WillReturnRows(sqlmock.NewRows([]string{"document"}).AddRow([]byte("{broken")))

	_, err = NewAnalysisRepository(db).List(context.Background(), 10)
	assert.Error(t, err)
}

func TestFailureRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 5, 2, 10, 0, 2, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO analysis_backend_errors")).
		WithArgs("an-9", "plant_id", "timeout", "context deadline exceeded", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE analysis_id=$1")).
		WithArgs("an-9", 5).
		WillReturnRows(sqlmock.NewRows([]string{"backend", "kind", "message", "created_at"}).
			AddRow("plant_id", "timeout", "context deadline exceeded", at))

	repo := NewFailureRepository(db, nil)
	repo.ReportFailure(context.Background(), "an-9", domain.BackendFailure{
		Backend: "plant_id", Kind: domain.KindTimeout, Message: "context deadline exceeded", At: at,
	})

	list, err := repo.ListByAnalysis(context.Background(), "an-9", 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, at, list[0].At)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`(?s)CREATE TABLE IF NOT EXISTS plant_analyses .*document\s+JSON\s+NOT NULL`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}
