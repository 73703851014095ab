package auditdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses. A run stays "running" until FinishRun records its
// outcome.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	ConfigHash string
	Status     string
	Detail     *string
}

// StageCount records how many rows entered and left a pipeline stage.
type StageCount struct {
	RunID   string
	Stage   string
	RowsIn  int
	RowsOut int
}

// UnmatchedCode records a local authority code the geography lookup
// could not assign to a police force area.
type UnmatchedCode struct {
	RunID  string
	Stage  string
	Code   string
	Name   string
	Detail string
}

// CreateRun inserts a new run in the running state and returns its ID.
// configHash identifies the configuration the run executed with, so
// audit rows from different configs are distinguishable.
func (db *DB) CreateRun(configHash string) (string, error) {
	id := uuid.New().String()
	_, err := db.Exec(
		"INSERT INTO runs (run_id, started_at, config_hash, status) VALUES (?, ?, ?, ?)",
		id, time.Now().UTC(), configHash, StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// FinishRun marks a run completed or failed. detail carries the failure
// message for failed runs and may be empty otherwise.
func (db *DB) FinishRun(runID, status, detail string) error {
	var d *string
	if detail != "" {
		d = &detail
	}
	res, err := db.Exec(
		"UPDATE runs SET finished_at = ?, status = ?, detail = ? WHERE run_id = ?",
		time.Now().UTC(), status, d, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no run with ID %s", runID)
	}
	return nil
}

// GetRun returns a run by ID.
func (db *DB) GetRun(runID string) (*Run, error) {
	run := &Run{}
	err := db.QueryRow(
		"SELECT run_id, started_at, finished_at, config_hash, status, detail FROM runs WHERE run_id = ?",
		runID,
	).Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.ConfigHash, &run.Status, &run.Detail)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no run with ID %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return run, nil
}

// RecordStageCount stores the row counts for one stage of a run.
func (db *DB) RecordStageCount(sc StageCount) error {
	_, err := db.Exec(
		"INSERT INTO stage_counts (run_id, stage, rows_in, rows_out) VALUES (?, ?, ?, ?)",
		sc.RunID, sc.Stage, sc.RowsIn, sc.RowsOut,
	)
	if err != nil {
		return fmt.Errorf("failed to record stage count for %s: %w", sc.Stage, err)
	}
	return nil
}

// StageCounts returns the stage counts for a run in insertion order.
func (db *DB) StageCounts(runID string) ([]StageCount, error) {
	rows, err := db.Query(
		"SELECT run_id, stage, rows_in, rows_out FROM stage_counts WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stage counts: %w", err)
	}
	defer rows.Close()

	var counts []StageCount
	for rows.Next() {
		var sc StageCount
		if err := rows.Scan(&sc.RunID, &sc.Stage, &sc.RowsIn, &sc.RowsOut); err != nil {
			return nil, fmt.Errorf("failed to scan stage count: %w", err)
		}
		counts = append(counts, sc)
	}
	return counts, rows.Err()
}

// RecordUnmatchedCode stores one unmatched geography code for a run.
func (db *DB) RecordUnmatchedCode(uc UnmatchedCode) error {
	_, err := db.Exec(
		"INSERT INTO unmatched_codes (run_id, stage, code, name, detail) VALUES (?, ?, ?, ?, ?)",
		uc.RunID, uc.Stage, uc.Code, uc.Name, uc.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record unmatched code %s: %w", uc.Code, err)
	}
	return nil
}

// UnmatchedCodes returns the unmatched geography codes for a run.
func (db *DB) UnmatchedCodes(runID string) ([]UnmatchedCode, error) {
	rows, err := db.Query(
		"SELECT run_id, stage, code, name, detail FROM unmatched_codes WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unmatched codes: %w", err)
	}
	defer rows.Close()

	var codes []UnmatchedCode
	for rows.Next() {
		var uc UnmatchedCode
		if err := rows.Scan(&uc.RunID, &uc.Stage, &uc.Code, &uc.Name, &uc.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan unmatched code: %w", err)
		}
		codes = append(codes, uc)
	}
	return codes, rows.Err()
}
