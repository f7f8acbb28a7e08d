package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Connect opens the database for driver ("postgres" or "sqlite3") and checks it with a ping.
func Connect(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if driver == "sqlite3" {
		// single writer; a :memory: database is lost when its connection closes
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
	}
	return db, nil
}

var schema = map[string][]string{
	"postgres": {
		`CREATE TABLE IF NOT EXISTS statistics (
			id            BIGSERIAL PRIMARY KEY,
			user_id       BIGINT NOT NULL,
			course_id     TEXT,
			assessment_id TEXT NOT NULL,
			title         TEXT NOT NULL,
			kind          TEXT NOT NULL,
			submitted     BOOLEAN NOT NULL DEFAULT FALSE,
			grade         DOUBLE PRECISION,
			recorded_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT statistics_identity UNIQUE (user_id, assessment_id, kind)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_statistics_course_recorded ON statistics (course_id, recorded_at DESC)`,
	},
	"sqlite3": {
		`CREATE TABLE IF NOT EXISTS statistics (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id       INTEGER NOT NULL,
			course_id     TEXT,
			assessment_id TEXT NOT NULL,
			title         TEXT NOT NULL,
			kind          TEXT NOT NULL,
			submitted     BOOLEAN NOT NULL DEFAULT FALSE,
			grade         REAL,
			recorded_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, assessment_id, kind)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_statistics_course_recorded ON statistics (course_id, recorded_at DESC)`,
	},
}

// Migrate creates the statistics table and its indexes if they do not exist.
func Migrate(db *sqlx.DB) error {
	stmts, ok := schema[db.DriverName()]
	if !ok {
		return fmt.Errorf("no schema for driver %q", db.DriverName())
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
