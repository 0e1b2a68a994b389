package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// schema dijalankan satu per satu, driver tidak pakai multiStatements
var schema = []string{
	`CREATE TABLE IF NOT EXISTS plant_analyses (
  id          VARCHAR(64)  NOT NULL PRIMARY KEY,
  status      VARCHAR(16)  NOT NULL,
  confidence  DOUBLE       NOT NULL,
  created_at  DATETIME(6)  NOT NULL,
  document    LONGTEXT     NOT NULL, -- byte-for-byte, JSON columns reformat the document
  INDEX idx_plant_analyses_created (created_at)
)`,
	`CREATE TABLE IF NOT EXISTS analysis_backend_errors (
  id           BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
  analysis_id  VARCHAR(64)  NOT NULL,
  backend      VARCHAR(64)  NOT NULL,
  kind         VARCHAR(32)  NOT NULL,
  message      TEXT         NOT NULL,
  created_at   DATETIME(6)  NOT NULL,
  INDEX idx_backend_errors_analysis (analysis_id)
)`,
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
