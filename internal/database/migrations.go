package database

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Up      string
	Down    string
}

// Migrations contains all database migrations
var Migrations = []Migration{
	{
		Version: 1,
		Up: `
			CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

			CREATE TABLE IF NOT EXISTS broadcast_sessions (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				broadcast_id VARCHAR(255) NOT NULL,
				station_name VARCHAR(255) NOT NULL,
				display_name VARCHAR(255) NOT NULL,
				peak_listeners INTEGER NOT NULL DEFAULT 0,
				total_calls INTEGER NOT NULL DEFAULT 0,
				started_at TIMESTAMP NOT NULL,
				ended_at TIMESTAMP,
				end_reason TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_sessions_broadcast ON broadcast_sessions(broadcast_id);
			CREATE INDEX IF NOT EXISTS idx_sessions_started ON broadcast_sessions(started_at);
		`,
		Down: `
			DROP TABLE IF EXISTS broadcast_sessions;
		`,
	},
	{
		Version: 2,
		Up: `
			CREATE TABLE IF NOT EXISTS call_log (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				call_id UUID NOT NULL,
				broadcast_id VARCHAR(255) NOT NULL,
				caller_name VARCHAR(255) NOT NULL,
				outcome VARCHAR(50) NOT NULL,
				requested_at TIMESTAMP NOT NULL,
				ended_at TIMESTAMP
			);

			CREATE INDEX IF NOT EXISTS idx_call_log_broadcast ON call_log(broadcast_id);
		`,
		Down: `
			DROP TABLE IF EXISTS call_log;
		`,
	},
}

// RunMigrations applies all pending migrations in version order
func RunMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return err
		}
		applied[version] = true
	}

	pending := make([]Migration, 0, len(Migrations))
	for _, m := range Migrations {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, m := range pending {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.Version, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
