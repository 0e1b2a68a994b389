package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"
)

// unique_violation
const codeUniqueViolation = "23505"

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS plant_analyses (
  id          TEXT PRIMARY KEY,
  status      TEXT NOT NULL,
  confidence  DOUBLE PRECISION NOT NULL,
  created_at  TIMESTAMPTZ NOT NULL,
  document    JSON  NOT NULL  -- json keeps the input text, jsonb does not
);
CREATE INDEX IF NOT EXISTS idx_plant_analyses_created ON plant_analyses (created_at DESC);
CREATE TABLE IF NOT EXISTS analysis_backend_errors (
  id           BIGSERIAL PRIMARY KEY,
  analysis_id  TEXT NOT NULL,
  backend      TEXT NOT NULL,
  kind         TEXT NOT NULL,
  message      TEXT NOT NULL,
  created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backend_errors_analysis ON analysis_backend_errors (analysis_id);
`

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

func isDuplicate(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}

// stringOrDash returns "-" when the input is empty/whitespace
func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
