// Package sqlitestore is a single-file store for local runs. It implements the
// same contracts as the Postgres repositories.
package sqlitestore

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) a SQLite database at the given path.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single writer avoids SQLITE_BUSY between the api and its worker loop
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const currentSchemaVersion = 1

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}
	var version int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	migrations := []func(*sql.DB) error{
		migrateV1,
	}
	for i := version; i < len(migrations); i++ {
		if err := migrations[i](db); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := db.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}
	return nil
}

func migrateV1(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS products (
		id          TEXT PRIMARY KEY,
		user_id     TEXT,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		tags        TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS brand_profiles (
		user_id           TEXT PRIMARY KEY,
		name              TEXT NOT NULL DEFAULT '',
		tone              TEXT NOT NULL DEFAULT '',
		forbidden_phrases TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS templates (
		id                   TEXT PRIMARY KEY,
		name                 TEXT NOT NULL,
		style_directives     TEXT NOT NULL DEFAULT '[]',
		reference_image_urls TEXT NOT NULL DEFAULT '[]',
		aspect_ratio         TEXT NOT NULL DEFAULT '',
		archived_at          TEXT
	);

	CREATE TABLE IF NOT EXISTS generations (
		id           TEXT PRIMARY KEY,
		user_id      TEXT,
		request_id   TEXT NOT NULL,
		mime_type    TEXT NOT NULL,
		width        INTEGER NOT NULL,
		height       INTEGER NOT NULL,
		provider     TEXT NOT NULL,
		model        TEXT NOT NULL,
		cost_credits INTEGER NOT NULL,
		storage_key  TEXT NOT NULL,
		created_at   TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS usage_events (
		id            TEXT PRIMARY KEY,
		generation_id TEXT NOT NULL REFERENCES generations(id),
		user_id       TEXT,
		request_id    TEXT NOT NULL,
		latency_ms    INTEGER NOT NULL,
		properties    TEXT NOT NULL,
		created_at    TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS generation_requests (
		id           TEXT PRIMARY KEY,
		user_id      TEXT,
		status       TEXT NOT NULL,
		request_json TEXT NOT NULL,
		result_json  TEXT,
		error_code   TEXT,
		record_id    TEXT,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_generation_requests_status ON generation_requests(status, created_at);
	`)
	return err
}
