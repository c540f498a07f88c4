package db

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the schema version written by this build
const SchemaVersion = 1

// RunMigrations creates the schema on a fresh database and checks the
// version of an existing one.
func RunMigrations(db *DB) error {
	var tableExists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}

	if !tableExists {
		if err := initializeSchema(db); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
		return nil
	}

	var currentVersion int
	err = db.QueryRow(`
		SELECT version FROM schema_version
		ORDER BY applied_at DESC LIMIT 1
	`).Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion < 1 || currentVersion > SchemaVersion {
		return fmt.Errorf("invalid schema version: %d", currentVersion)
	}

	return nil
}

// initializeSchema creates all tables for a new database
func initializeSchema(db *DB) error {
	tx, err := db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := execSQL(tx, schemaVersionTable); err != nil {
		return err
	}

	if err := execSQL(tx, licensesTable); err != nil {
		return err
	}
	if err := execSQL(tx, licensesIndexes); err != nil {
		return err
	}

	if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}

// execSQL executes a SQL statement
func execSQL(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

const (
	schemaVersionTable = `
CREATE TABLE schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

	licensesTable = `
CREATE TABLE IF NOT EXISTS licenses (
    account_id  TEXT PRIMARY KEY,
    owner_id    INTEGER NOT NULL,
    license_key TEXT NOT NULL UNIQUE,
    expires_on  TEXT NOT NULL,
    status      TEXT NOT NULL CHECK (status IN ('active', 'inactive'))
)`

	licensesIndexes = `
CREATE INDEX IF NOT EXISTS idx_licenses_status ON licenses(status)`
)
