package db

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
)

const schemaName = "vsix_downloader"

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// NewDB opens a PostgreSQL connection and makes sure the run history tables
// exist
func NewDB(connStr string) (*DB, error) {
	if connStr == "" {
		return nil, fmt.Errorf("database connection string is empty")
	}

	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// a single connection keeps the search_path set below for every query
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables if they don't exist
func (db *DB) initSchema() error {
	_, err := db.conn.Exec(`CREATE SCHEMA IF NOT EXISTS ` + schemaName)
	if err != nil {
		log.Printf("Note: Could not create schema (may already exist): %v\n", err)
	}

	_, err = db.conn.Exec(`SET search_path TO ` + schemaName)
	if err != nil {
		return fmt.Errorf("failed to set search path: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS batch_runs (
			id UUID PRIMARY KEY,
			output_dir TEXT NOT NULL,
			total INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT valid_counts CHECK (succeeded + failed = total)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create batch_runs table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS item_results (
			id SERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES batch_runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			item TEXT NOT NULL,
			status VARCHAR(20) NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			file TEXT,
			last_error TEXT,
			duration_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT valid_item_status CHECK (status IN ('succeeded', 'failed'))
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create item_results table: %w", err)
	}

	_, err = db.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_item_results_run_id ON item_results(run_id)`)
	if err != nil {
		log.Printf("Warning: Failed to create index on item_results.run_id: %v\n", err)
	}

	_, err = db.conn.Exec(`CREATE INDEX IF NOT EXISTS idx_item_results_item ON item_results(item)`)
	if err != nil {
		log.Printf("Warning: Failed to create index on item_results.item: %v\n", err)
	}

	return nil
}
