// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite provides a pure-Go (modernc.org/sqlite, no cgo) State Store
// backend for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marktoflow/flowcore/internal/controller/backend"
	"github.com/marktoflow/flowcore/pkg/workflow"
	_ "modernc.org/sqlite"
)

var (
	_ backend.RunStore        = (*Backend)(nil)
	_ backend.RunLister       = (*Backend)(nil)
	_ backend.CheckpointStore = (*Backend)(nil)
	_ backend.Backend         = (*Backend)(nil)
)

// Backend is a SQLite storage backend.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New creates a new SQLite backend, configures its pragmas, and runs
// migrations.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; a single connection avoids SQLITE_BUSY
	// contention between goroutines sharing this *sql.DB.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return b, nil
}

func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			workflow_path TEXT,
			parent_run_id TEXT,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			current_step INTEGER DEFAULT 0,
			total_steps INTEGER DEFAULT 0,
			inputs TEXT,
			outputs TEXT,
			error TEXT,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_workflow_id ON runs(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_parent_run_id ON runs(parent_run_id)`,
		// Composite primary key: every step of a run gets its own
		// checkpoint row, not just the run's most recent one.
		`CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT NOT NULL,
			step_index INTEGER NOT NULL,
			step_id TEXT NOT NULL,
			step_name TEXT,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			inputs TEXT,
			outputs TEXT,
			error TEXT,
			retry_count INTEGER DEFAULT 0,
			wait_mode TEXT,
			resume_at TEXT,
			resume_token TEXT,
			webhook_path TEXT,
			PRIMARY KEY (run_id, step_index),
			FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_run_id ON checkpoints(run_id)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (b *Backend) CreateRun(ctx context.Context, run *workflow.ExecutionRecord) error {
	inputsJSON, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(run.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}
	metadataJSON, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO runs (run_id, workflow_id, workflow_path, parent_run_id, status,
			started_at, completed_at, current_step, total_steps, inputs, outputs, error, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = b.db.ExecContext(ctx, query,
		run.RunID, run.WorkflowID, nullString(run.WorkflowPath), nullStringPtr(run.ParentRunID),
		string(run.Status), run.StartedAt.Format(time.RFC3339), formatTimePtr(run.CompletedAt),
		run.CurrentStep, run.TotalSteps, string(inputsJSON), string(outputsJSON),
		nullString(run.Error), string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (b *Backend) GetRun(ctx context.Context, id string) (*workflow.ExecutionRecord, error) {
	query := `
		SELECT run_id, workflow_id, workflow_path, parent_run_id, status,
			started_at, completed_at, current_step, total_steps, inputs, outputs, error, metadata
		FROM runs WHERE run_id = ?
	`
	row := b.db.QueryRowContext(ctx, query, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (b *Backend) UpdateRun(ctx context.Context, run *workflow.ExecutionRecord) error {
	outputsJSON, err := json.Marshal(run.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}
	metadataJSON, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE runs SET
			status = ?, completed_at = ?, current_step = ?, total_steps = ?,
			outputs = ?, error = ?, metadata = ?
		WHERE run_id = ?
	`
	result, err := b.db.ExecContext(ctx, query,
		string(run.Status), formatTimePtr(run.CompletedAt), run.CurrentStep, run.TotalSteps,
		string(outputsJSON), nullString(run.Error), string(metadataJSON), run.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("run not found: %s", run.RunID)
	}
	return nil
}

func (b *Backend) ListRuns(ctx context.Context, filter backend.RunFilter) ([]*workflow.ExecutionRecord, error) {
	query := `
		SELECT run_id, workflow_id, workflow_path, parent_run_id, status,
			started_at, completed_at, current_step, total_steps, inputs, outputs, error, metadata
		FROM runs WHERE 1=1
	`
	var args []any
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.WorkflowID != "" {
		query += " AND workflow_id = ?"
		args = append(args, filter.WorkflowID)
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*workflow.ExecutionRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (b *Backend) DeleteRun(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}

func (b *Backend) SaveCheckpoint(ctx context.Context, cp *workflow.Checkpoint) error {
	inputsJSON, err := json.Marshal(cp.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}
	outputsJSON, err := json.Marshal(cp.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal outputs: %w", err)
	}

	query := `
		INSERT INTO checkpoints (run_id, step_index, step_id, step_name, status, started_at,
			completed_at, inputs, outputs, error, retry_count, wait_mode, resume_at, resume_token, webhook_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, step_index) DO UPDATE SET
			step_id = excluded.step_id,
			step_name = excluded.step_name,
			status = excluded.status,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			inputs = excluded.inputs,
			outputs = excluded.outputs,
			error = excluded.error,
			retry_count = excluded.retry_count,
			wait_mode = excluded.wait_mode,
			resume_at = excluded.resume_at,
			resume_token = excluded.resume_token,
			webhook_path = excluded.webhook_path
	`
	_, err = b.db.ExecContext(ctx, query,
		cp.RunID, cp.StepIndex, cp.StepID, nullString(cp.StepName), string(cp.Status),
		cp.StartedAt.Format(time.RFC3339), formatTimePtr(cp.CompletedAt),
		string(inputsJSON), string(outputsJSON), nullString(cp.Error), cp.RetryCount,
		nullString(cp.WaitMode), formatTimePtr(cp.ResumeAt), nullString(cp.ResumeToken), nullString(cp.WebhookPath),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (b *Backend) GetCheckpoint(ctx context.Context, runID string, stepIndex int) (*workflow.Checkpoint, error) {
	row := b.db.QueryRowContext(ctx, checkpointSelect+" WHERE run_id = ? AND step_index = ?", runID, stepIndex)
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("checkpoint not found for run %s step %d", runID, stepIndex)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return cp, nil
}

func (b *Backend) GetLatestCheckpoint(ctx context.Context, runID string) (*workflow.Checkpoint, error) {
	row := b.db.QueryRowContext(ctx, checkpointSelect+" WHERE run_id = ? ORDER BY step_index DESC LIMIT 1", runID)
	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no checkpoints for run: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest checkpoint: %w", err)
	}
	return cp, nil
}

func (b *Backend) ListCheckpoints(ctx context.Context, runID string) ([]*workflow.Checkpoint, error) {
	rows, err := b.db.QueryContext(ctx, checkpointSelect+" WHERE run_id = ? ORDER BY step_index ASC", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*workflow.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

// --- scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

const checkpointSelect = `
	SELECT run_id, step_index, step_id, step_name, status, started_at, completed_at,
		inputs, outputs, error, retry_count, wait_mode, resume_at, resume_token, webhook_path
	FROM checkpoints
`

func scanRun(row rowScanner) (*workflow.ExecutionRecord, error) {
	var run workflow.ExecutionRecord
	var workflowPath, parentRunID, errorStr sql.NullString
	var startedAt, completedAt sql.NullString
	var inputsJSON, outputsJSON, metadataJSON sql.NullString
	var status string

	err := row.Scan(
		&run.RunID, &run.WorkflowID, &workflowPath, &parentRunID, &status,
		&startedAt, &completedAt, &run.CurrentStep, &run.TotalSteps,
		&inputsJSON, &outputsJSON, &errorStr, &metadataJSON,
	)
	if err != nil {
		return nil, err
	}

	run.Status = workflow.RunStatus(status)
	if workflowPath.Valid {
		run.WorkflowPath = workflowPath.String
	}
	if parentRunID.Valid {
		id := parentRunID.String
		run.ParentRunID = &id
	}
	if errorStr.Valid {
		run.Error = errorStr.String
	}
	if startedAt.Valid {
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt.String)
	}
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		run.CompletedAt = &t
	}
	if inputsJSON.Valid && inputsJSON.String != "" {
		json.Unmarshal([]byte(inputsJSON.String), &run.Inputs)
	}
	if outputsJSON.Valid && outputsJSON.String != "" {
		json.Unmarshal([]byte(outputsJSON.String), &run.Outputs)
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		json.Unmarshal([]byte(metadataJSON.String), &run.Metadata)
	}
	return &run, nil
}

func scanCheckpoint(row rowScanner) (*workflow.Checkpoint, error) {
	var cp workflow.Checkpoint
	var stepName, errorStr, waitMode, resumeToken, webhookPath sql.NullString
	var startedAt, completedAt, resumeAt sql.NullString
	var inputsJSON, outputsJSON sql.NullString
	var status string

	err := row.Scan(
		&cp.RunID, &cp.StepIndex, &cp.StepID, &stepName, &status, &startedAt, &completedAt,
		&inputsJSON, &outputsJSON, &errorStr, &cp.RetryCount, &waitMode, &resumeAt, &resumeToken, &webhookPath,
	)
	if err != nil {
		return nil, err
	}

	cp.Status = workflow.StepStatus(status)
	if stepName.Valid {
		cp.StepName = stepName.String
	}
	if errorStr.Valid {
		cp.Error = errorStr.String
	}
	if waitMode.Valid {
		cp.WaitMode = waitMode.String
	}
	if resumeToken.Valid {
		cp.ResumeToken = resumeToken.String
	}
	if webhookPath.Valid {
		cp.WebhookPath = webhookPath.String
	}
	if startedAt.Valid {
		cp.StartedAt, _ = time.Parse(time.RFC3339, startedAt.String)
	}
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		cp.CompletedAt = &t
	}
	if resumeAt.Valid {
		t, _ := time.Parse(time.RFC3339, resumeAt.String)
		cp.ResumeAt = &t
	}
	if inputsJSON.Valid && inputsJSON.String != "" {
		json.Unmarshal([]byte(inputsJSON.String), &cp.Inputs)
	}
	if outputsJSON.Valid && outputsJSON.String != "" {
		json.Unmarshal([]byte(outputsJSON.String), &cp.Outputs)
	}
	return &cp, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStringPtr(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
