package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InitSchema creates the tables used by the route repository and the
// geocode cache. The DDL is portable between SQLite and Postgres.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createAgentsQuery := `
	CREATE TABLE IF NOT EXISTS agents (
		agent_id   TEXT PRIMARY KEY,
		name       TEXT NOT NULL DEFAULT '',
		phone      TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL,
		lat        DOUBLE PRECISION,
		lng        DOUBLE PRECISION,
		bearing    DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TEXT
	);
	`

	createStopsQuery := `
	CREATE TABLE IF NOT EXISTS stops (
		stop_id  TEXT PRIMARY KEY,
		address  TEXT NOT NULL,
		phone    TEXT NOT NULL DEFAULT '',
		lat      DOUBLE PRECISION,
		lng      DOUBLE PRECISION,
		status   TEXT NOT NULL,
		agent_id TEXT NOT NULL DEFAULT '',
		seq      INTEGER NOT NULL DEFAULT 0,
		notified BOOLEAN NOT NULL DEFAULT FALSE
	);
	`

	createGeocodeCacheQuery := `
	CREATE TABLE IF NOT EXISTS geocode_cache (
		address TEXT PRIMARY KEY,
		lat     DOUBLE PRECISION NOT NULL,
		lng     DOUBLE PRECISION NOT NULL
	);
	`

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_stops_agent_seq
	ON stops(agent_id, seq);
	`

	statements := []string{
		createAgentsQuery,
		createStopsQuery,
		createGeocodeCacheQuery,
		createIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}
