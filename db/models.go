package db

import (
	"context"
	"database/sql"
	"fmt"

	"vsix-downloader/models"
)

// ItemRow is one item_results row
type ItemRow struct {
	Position   int
	Item       string
	Status     string // "succeeded", "failed"
	Attempts   int
	File       sql.NullString
	LastError  sql.NullString
	DurationMS int64
}

// newItemRow maps a terminal item result to its stored form
func newItemRow(position int, r models.ItemResult) ItemRow {
	row := ItemRow{
		Position:   position,
		Item:       r.Item,
		Status:     models.StateFailed.String(),
		Attempts:   r.Attempts,
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Succeeded() {
		row.Status = models.StateSucceeded.String()
	}
	if r.File != "" {
		row.File = sql.NullString{String: r.File, Valid: true}
	}
	if r.LastError != "" {
		row.LastError = sql.NullString{String: r.LastError, Valid: true}
	}
	return row
}

// Name implements the report sink interface
func (db *DB) Name() string { return "postgres" }

// Report implements the report sink interface
func (db *DB) Report(ctx context.Context, res *models.BatchResult) error {
	return db.SaveRun(ctx, res)
}

// SaveRun stores a finished batch and all of its item results in one
// transaction. The history is write only; runs never read it back.
func (db *DB) SaveRun(ctx context.Context, res *models.BatchResult) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batch_runs (id, output_dir, total, succeeded, failed, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, res.RunID, res.OutputDir, res.Total, res.Succeeded, res.Failed, res.StartedAt, res.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to insert batch run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO item_results (run_id, position, item, status, attempts, file, last_error, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range res.Results {
		row := newItemRow(i+1, r)
		_, err := stmt.ExecContext(ctx, res.RunID, row.Position, row.Item, row.Status,
			row.Attempts, row.File, row.LastError, row.DurationMS)
		if err != nil {
			return fmt.Errorf("failed to insert result for %s: %w", r.Item, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}
