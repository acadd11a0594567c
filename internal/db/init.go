// Package db handles database initialization and background maintenance for
// the document server.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS budgets (
    budget_id TEXT PRIMARY KEY,
    snapshot TEXT NOT NULL,
    version BIGINT NOT NULL,
    last_updated BIGINT NOT NULL,
    cleared BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS budget_authors (
    budget_id TEXT NOT NULL,
    author_id TEXT NOT NULL,
    user_name TEXT NOT NULL,
    user_color TEXT,
    device_fingerprint TEXT,
    last_seen BIGINT NOT NULL,
    PRIMARY KEY (budget_id, author_id)
);
`

func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
