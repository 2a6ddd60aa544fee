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

// Package sqlstore provides a SQLite-backed workflow.Store implementation
// for single-node deployments that need runs to survive a restart.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	flowerrors "github.com/tombee/flowengine/pkg/errors"
	"github.com/tombee/flowengine/pkg/workflow"
)

var _ workflow.Store = (*Store)(nil)

// Store is a SQLite-backed workflow.Store.
type Store struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path, or ":memory:" for a transient
	// in-process database (chiefly useful in tests of this package).
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens (creating if necessary) a SQLite-backed Store at cfg.Path and
// runs its migrations.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes; one connection keeps the driver from
	// juggling SQLITE_BUSY across goroutines.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}

	if err := s.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *Store) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			is_active INTEGER DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS steps (
			id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			label TEXT,
			position TEXT,
			config TEXT,
			step_order INTEGER DEFAULT 0,
			PRIMARY KEY (id),
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_steps_workflow ON steps(workflow_id)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			label TEXT,
			PRIMARY KEY (id),
			FOREIGN KEY (workflow_id) REFERENCES workflows(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_workflow ON edges(workflow_id)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT,
			error TEXT,
			outputs TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_workflow ON executions(workflow_id)`,
		`CREATE TABLE IF NOT EXISTS step_executions (
			id TEXT PRIMARY KEY,
			workflow_execution_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT,
			error TEXT,
			input TEXT,
			output TEXT,
			FOREIGN KEY (workflow_execution_id) REFERENCES executions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_step_executions_run ON step_executions(workflow_execution_id)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			name TEXT,
			secret TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_credentials_type ON credentials(type)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	query := `SELECT id, name, description, is_active, created_at, updated_at FROM workflows WHERE id = ?`

	var wf workflow.Workflow
	var isActive int
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&wf.ID, &wf.Name, &wf.Description, &isActive, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("workflow not found: %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	wf.IsActive = isActive == 1
	wf.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	wf.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &wf, nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
	query := `SELECT id, name, description, is_active, created_at, updated_at FROM workflows ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var result []*workflow.Workflow
	for rows.Next() {
		var wf workflow.Workflow
		var isActive int
		var createdAt, updatedAt string
		if err := rows.Scan(&wf.ID, &wf.Name, &wf.Description, &isActive, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		wf.IsActive = isActive == 1
		wf.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		wf.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		result = append(result, &wf)
	}
	return result, nil
}

func (s *Store) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	now := time.Now()
	isActive := 0
	if wf.IsActive {
		isActive = 1
	}
	query := `INSERT INTO workflows (id, name, description, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, wf.ID, wf.Name, wf.Description, isActive, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	wf.CreatedAt = now
	wf.UpdatedAt = now
	return nil
}

func (s *Store) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow, steps []*workflow.Step, edges []*workflow.Edge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	isActive := 0
	if wf.IsActive {
		isActive = 1
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE workflows SET name = ?, description = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		wf.Name, wf.Description, isActive, now.Format(time.RFC3339), wf.ID)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("workflow not found: %s", wf.ID))
	}

	if edges != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE workflow_id = ?`, wf.ID); err != nil {
			return fmt.Errorf("failed to clear edges: %w", err)
		}
	}
	if steps != nil {
		if _, err := tx.ExecContext(ctx, `DELETE FROM steps WHERE workflow_id = ?`, wf.ID); err != nil {
			return fmt.Errorf("failed to clear steps: %w", err)
		}
		for _, st := range steps {
			positionJSON, err := json.Marshal(st.Position)
			if err != nil {
				return fmt.Errorf("failed to marshal step position: %w", err)
			}
			configJSON, err := json.Marshal(st.Config)
			if err != nil {
				return fmt.Errorf("failed to marshal step config: %w", err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO steps (id, workflow_id, kind, label, position, config, step_order) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				st.ID, wf.ID, string(st.Kind), st.Label, string(positionJSON), string(configJSON), st.Order)
			if err != nil {
				return fmt.Errorf("failed to insert step %s: %w", st.ID, err)
			}
		}
	}
	if edges != nil {
		for _, e := range edges {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO edges (id, workflow_id, source_id, target_id, label) VALUES (?, ?, ?, ?, ?)`,
				e.ID, wf.ID, e.SourceID, e.TargetID, e.Label)
			if err != nil {
				return fmt.Errorf("failed to insert edge %s: %w", e.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit workflow update: %w", err)
	}
	wf.UpdatedAt = now
	return nil
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("workflow not found: %s", id))
	}
	// executions has no foreign key to workflows; step_executions cascade
	// from executions.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE workflow_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete workflow executions: %w", err)
	}
	return nil
}

func (s *Store) GetSteps(ctx context.Context, workflowID string) ([]*workflow.Step, error) {
	query := `SELECT id, workflow_id, kind, label, position, config, step_order FROM steps WHERE workflow_id = ? ORDER BY step_order ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get steps: %w", err)
	}
	defer rows.Close()

	var result []*workflow.Step
	for rows.Next() {
		var st workflow.Step
		var kind string
		var positionJSON, configJSON sql.NullString
		if err := rows.Scan(&st.ID, &st.WorkflowID, &kind, &st.Label, &positionJSON, &configJSON, &st.Order); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		st.Kind = workflow.StepKind(kind)
		if positionJSON.Valid && positionJSON.String != "" {
			if err := json.Unmarshal([]byte(positionJSON.String), &st.Position); err != nil {
				return nil, fmt.Errorf("failed to unmarshal step position: %w", err)
			}
		}
		if configJSON.Valid && configJSON.String != "" {
			if err := json.Unmarshal([]byte(configJSON.String), &st.Config); err != nil {
				return nil, fmt.Errorf("failed to unmarshal step config: %w", err)
			}
		}
		result = append(result, &st)
	}
	return result, nil
}

func (s *Store) GetEdges(ctx context.Context, workflowID string) ([]*workflow.Edge, error) {
	query := `SELECT id, workflow_id, source_id, target_id, label FROM edges WHERE workflow_id = ?`

	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get edges: %w", err)
	}
	defer rows.Close()

	var result []*workflow.Edge
	for rows.Next() {
		var e workflow.Edge
		var label sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.SourceID, &e.TargetID, &label); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		e.Label = label.String
		result = append(result, &e)
	}
	return result, nil
}

func (s *Store) CreateExecution(ctx context.Context, exec *workflow.WorkflowExecution) error {
	outputsJSON, err := json.Marshal(exec.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal execution outputs: %w", err)
	}
	query := `INSERT INTO executions (id, workflow_id, status, start_time, end_time, error, outputs) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, exec.ID, exec.WorkflowID, string(exec.Status),
		exec.StartTime.Format(time.RFC3339), formatTimePtr(exec.EndTime), nullString(exec.Error), string(outputsJSON))
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

func (s *Store) UpdateExecution(ctx context.Context, exec *workflow.WorkflowExecution) error {
	outputsJSON, err := json.Marshal(exec.Outputs)
	if err != nil {
		return fmt.Errorf("failed to marshal execution outputs: %w", err)
	}
	query := `UPDATE executions SET status = ?, end_time = ?, error = ?, outputs = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, string(exec.Status), formatTimePtr(exec.EndTime), nullString(exec.Error), string(outputsJSON), exec.ID)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("execution not found: %s", exec.ID))
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*workflow.WorkflowExecution, error) {
	query := `SELECT id, workflow_id, status, start_time, end_time, error, outputs FROM executions WHERE id = ?`

	var exec workflow.WorkflowExecution
	var status, startTime string
	var endTime, errStr, outputsJSON sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(&exec.ID, &exec.WorkflowID, &status, &startTime, &endTime, &errStr, &outputsJSON)
	if err == sql.ErrNoRows {
		return nil, flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("execution not found: %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	exec.Status = workflow.RunStatus(status)
	exec.StartTime, _ = time.Parse(time.RFC3339, startTime)
	if endTime.Valid {
		t, _ := time.Parse(time.RFC3339, endTime.String)
		exec.EndTime = &t
	}
	exec.Error = errStr.String
	if outputsJSON.Valid && outputsJSON.String != "" {
		if err := json.Unmarshal([]byte(outputsJSON.String), &exec.Outputs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution outputs: %w", err)
		}
	}
	return &exec, nil
}

func (s *Store) ListExecutions(ctx context.Context, workflowID string) ([]*workflow.WorkflowExecution, error) {
	query := `SELECT id, workflow_id, status, start_time, end_time, error, outputs FROM executions WHERE workflow_id = ? ORDER BY start_time DESC`

	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var result []*workflow.WorkflowExecution
	for rows.Next() {
		var exec workflow.WorkflowExecution
		var status, startTime string
		var endTime, errStr, outputsJSON sql.NullString
		if err := rows.Scan(&exec.ID, &exec.WorkflowID, &status, &startTime, &endTime, &errStr, &outputsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		exec.Status = workflow.RunStatus(status)
		exec.StartTime, _ = time.Parse(time.RFC3339, startTime)
		if endTime.Valid {
			t, _ := time.Parse(time.RFC3339, endTime.String)
			exec.EndTime = &t
		}
		exec.Error = errStr.String
		if outputsJSON.Valid && outputsJSON.String != "" {
			if err := json.Unmarshal([]byte(outputsJSON.String), &exec.Outputs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal execution outputs: %w", err)
			}
		}
		result = append(result, &exec)
	}
	return result, nil
}

func (s *Store) CreateStepExecution(ctx context.Context, se *workflow.StepExecution) error {
	inputJSON, err := json.Marshal(se.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}
	outputJSON, err := json.Marshal(se.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}
	query := `INSERT INTO step_executions (id, workflow_execution_id, step_id, status, start_time, end_time, error, input, output) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, se.ID, se.WorkflowExecutionID, se.StepID, string(se.Status),
		se.StartTime.Format(time.RFC3339), formatTimePtr(se.EndTime), nullString(se.Error), string(inputJSON), string(outputJSON))
	if err != nil {
		return fmt.Errorf("failed to create step execution: %w", err)
	}
	return nil
}

func (s *Store) UpdateStepExecution(ctx context.Context, se *workflow.StepExecution) error {
	inputJSON, err := json.Marshal(se.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}
	outputJSON, err := json.Marshal(se.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}
	query := `UPDATE step_executions SET status = ?, end_time = ?, error = ?, input = ?, output = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, string(se.Status), formatTimePtr(se.EndTime), nullString(se.Error), string(inputJSON), string(outputJSON), se.ID)
	if err != nil {
		return fmt.Errorf("failed to update step execution: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return flowerrors.NewWorkflowError(flowerrors.KindStepNotFound, fmt.Sprintf("step execution not found: %s", se.ID))
	}
	return nil
}

func (s *Store) ListCredentials(ctx context.Context) ([]*workflow.Credential, error) {
	query := `SELECT id, type, name, created_at FROM credentials ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var result []*workflow.Credential
	for rows.Next() {
		var c workflow.Credential
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Type, &c.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		result = append(result, &c)
	}
	return result, nil
}

func (s *Store) GetCredentialByType(ctx context.Context, credType string) (*workflow.Credential, error) {
	query := `SELECT id, type, name, secret, created_at FROM credentials WHERE type = ? LIMIT 1`

	var c workflow.Credential
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, credType).Scan(&c.ID, &c.Type, &c.Name, &c.Secret, &createdAt)
	if err == sql.ErrNoRows {
		return nil, flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("credential not found for type: %s", credType))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func (s *Store) CreateCredential(ctx context.Context, cred *workflow.Credential) error {
	now := time.Now()
	query := `INSERT INTO credentials (id, type, name, secret, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, cred.ID, cred.Type, cred.Name, cred.Secret, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}
	cred.CreatedAt = now
	return nil
}

func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("credential not found: %s", id))
	}
	return nil
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
