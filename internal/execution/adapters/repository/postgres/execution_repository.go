// Package postgres implements execution persistence on top of the
// platform's database/sql wrapper, the way the teacher's other postgres
// adapters do (raw SQL + a Transaction helper, not an ORM).
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/linkflow-ai/linkflow-ai/internal/execution/domain/model"
	"github.com/linkflow-ai/linkflow-ai/internal/execution/domain/repository"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/database"
)

// ExecutionRepository implements repository.ExecutionRepository on Postgres.
type ExecutionRepository struct {
	db *database.DB
}

// NewExecutionRepository creates a new PostgreSQL execution repository.
func NewExecutionRepository(db *database.DB) repository.ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Save inserts the Execution row created when the engine starts a run.
func (r *ExecutionRepository) Save(ctx context.Context, execution *model.Execution) error {
	triggerData, err := json.Marshal(execution.TriggerData())
	if err != nil {
		return fmt.Errorf("marshal trigger data: %w", err)
	}
	snapshot, err := json.Marshal(execution.WorkflowSnapshot())
	if err != nil {
		return fmt.Errorf("marshal workflow snapshot: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (
			id, workflow_id, trigger_node_id, mode, status,
			trigger_data, workflow_snapshot, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		execution.ID().String(),
		execution.WorkflowID(),
		execution.TriggerNodeID(),
		string(execution.Mode()),
		string(execution.Status()),
		triggerData,
		snapshot,
		execution.StartedAt(),
	)
	if err != nil {
		return fmt.Errorf("save execution: %w", err)
	}
	return nil
}

// FinishTransactional updates the Execution row to its terminal status and
// inserts every recorded NodeExecution row in the same transaction, so a
// crash mid-write never leaves a terminal status with missing node rows.
func (r *ExecutionRepository) FinishTransactional(ctx context.Context, execution *model.Execution) error {
	var errData []byte
	if execution.Error() != nil {
		var err error
		errData, err = json.Marshal(execution.Error())
		if err != nil {
			return fmt.Errorf("marshal execution error: %w", err)
		}
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, ne := range execution.NodeExecutions() {
			if err := insertNodeExecution(ctx, tx, ne); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, `
			UPDATE executions SET status = $2, finished_at = $3, error = $4
			WHERE id = $1`,
			execution.ID().String(),
			string(execution.Status()),
			execution.FinishedAt(),
			errData,
		)
		if err != nil {
			return fmt.Errorf("finish execution: %w", err)
		}
		return nil
	})
}

func insertNodeExecution(ctx context.Context, tx *sql.Tx, ne *model.NodeExecution) error {
	inputData, err := json.Marshal(ne.InputData)
	if err != nil {
		return fmt.Errorf("marshal node input: %w", err)
	}
	outputData, err := json.Marshal(ne.OutputData)
	if err != nil {
		return fmt.Errorf("marshal node output: %w", err)
	}
	var errData []byte
	if ne.Error != nil {
		errData, err = json.Marshal(ne.Error)
		if err != nil {
			return fmt.Errorf("marshal node error: %w", err)
		}
	}

	// ON CONFLICT DO NOTHING makes a retried finish-write idempotent on
	// the content-addressable (executionId, nodeId) id; a true
	// double-write from application logic is still a bug the unique
	// constraint alone would have caught.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO node_executions (
			id, execution_id, node_id, status, started_at, finished_at,
			input_data, output_data, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		ne.ID,
		ne.ExecutionID.String(),
		ne.NodeID,
		string(ne.Status),
		ne.StartedAt,
		ne.FinishedAt,
		inputData,
		outputData,
		errData,
	)
	if err != nil {
		return fmt.Errorf("insert node execution %s: %w", ne.ID, err)
	}
	return nil
}

// FindByID loads an execution and all of its node executions.
func (r *ExecutionRepository) FindByID(ctx context.Context, id model.ExecutionID) (*model.Execution, error) {
	var row executionRow
	err := r.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, trigger_node_id, mode, status,
			trigger_data, workflow_snapshot, error, started_at, finished_at
		FROM executions WHERE id = $1`, id.String(),
	).Scan(
		&row.ID, &row.WorkflowID, &row.TriggerNodeID, &row.Mode, &row.Status,
		&row.TriggerData, &row.WorkflowSnapshot, &row.Error, &row.StartedAt, &row.FinishedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find execution: %w", err)
	}

	nodeExecutions, err := r.findNodeExecutions(ctx, id)
	if err != nil {
		return nil, err
	}

	return row.toDomain(nodeExecutions)
}

func (r *ExecutionRepository) findNodeExecutions(ctx context.Context, id model.ExecutionID) (map[string]*model.NodeExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, node_id, status, started_at, finished_at,
			input_data, output_data, error
		FROM node_executions WHERE execution_id = $1`, id.String())
	if err != nil {
		return nil, fmt.Errorf("find node executions: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*model.NodeExecution)
	for rows.Next() {
		var nr nodeExecutionRow
		if err := rows.Scan(&nr.ID, &nr.ExecutionID, &nr.NodeID, &nr.Status,
			&nr.StartedAt, &nr.FinishedAt, &nr.InputData, &nr.OutputData, &nr.Error); err != nil {
			return nil, fmt.Errorf("scan node execution: %w", err)
		}
		ne, err := nr.toDomain()
		if err != nil {
			return nil, err
		}
		result[ne.NodeID] = ne
	}
	return result, nil
}

// FindByWorkflowID lists executions of a workflow, most recent first.
func (r *ExecutionRepository) FindByWorkflowID(ctx context.Context, workflowID string, offset, limit int) ([]*model.Execution, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, trigger_node_id, mode, status,
			trigger_data, workflow_snapshot, error, started_at, finished_at
		FROM executions WHERE workflow_id = $1
		ORDER BY started_at DESC LIMIT $2 OFFSET $3`, workflowID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("find executions: %w", err)
	}
	defer rows.Close()

	var executions []*model.Execution
	for rows.Next() {
		var row executionRow
		if err := rows.Scan(&row.ID, &row.WorkflowID, &row.TriggerNodeID, &row.Mode, &row.Status,
			&row.TriggerData, &row.WorkflowSnapshot, &row.Error, &row.StartedAt, &row.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		nodeExecutions, err := r.findNodeExecutions(ctx, model.ExecutionID(row.ID))
		if err != nil {
			return nil, err
		}
		execution, err := row.toDomain(nodeExecutions)
		if err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	return executions, nil
}

// FindRunningOrphans returns executions still RUNNING that started before
// the given unix-millis cutoff, candidates for partial-failure recovery.
func (r *ExecutionRepository) FindRunningOrphans(ctx context.Context, olderThanMs int64) ([]*model.Execution, error) {
	cutoff := time.UnixMilli(olderThanMs)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, workflow_id, trigger_node_id, mode, status,
			trigger_data, workflow_snapshot, error, started_at, finished_at
		FROM executions WHERE status = 'RUNNING' AND started_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find running orphans: %w", err)
	}
	defer rows.Close()

	var executions []*model.Execution
	for rows.Next() {
		var row executionRow
		if err := rows.Scan(&row.ID, &row.WorkflowID, &row.TriggerNodeID, &row.Mode, &row.Status,
			&row.TriggerData, &row.WorkflowSnapshot, &row.Error, &row.StartedAt, &row.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		nodeExecutions, err := r.findNodeExecutions(ctx, model.ExecutionID(row.ID))
		if err != nil {
			return nil, err
		}
		execution, err := row.toDomain(nodeExecutions)
		if err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	return executions, nil
}

type executionRow struct {
	ID               string
	WorkflowID       string
	TriggerNodeID    sql.NullString
	Mode             string
	Status           string
	TriggerData      []byte
	WorkflowSnapshot []byte
	Error            []byte
	StartedAt        time.Time
	FinishedAt       sql.NullTime
}

func (row *executionRow) toDomain(nodeExecutions map[string]*model.NodeExecution) (*model.Execution, error) {
	var triggerData map[string]interface{}
	if len(row.TriggerData) > 0 {
		if err := json.Unmarshal(row.TriggerData, &triggerData); err != nil {
			return nil, fmt.Errorf("unmarshal trigger data: %w", err)
		}
	}
	var snapshot map[string]interface{}
	if len(row.WorkflowSnapshot) > 0 {
		if err := json.Unmarshal(row.WorkflowSnapshot, &snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal workflow snapshot: %w", err)
		}
	}
	var execErr *model.ExecutionError
	if len(row.Error) > 0 {
		if err := json.Unmarshal(row.Error, &execErr); err != nil {
			return nil, fmt.Errorf("unmarshal execution error: %w", err)
		}
	}

	var finishedAt *time.Time
	if row.FinishedAt.Valid {
		finishedAt = &row.FinishedAt.Time
	}
	triggerNodeID := ""
	if row.TriggerNodeID.Valid {
		triggerNodeID = row.TriggerNodeID.String
	}

	return model.ReconstructExecution(
		model.ExecutionID(row.ID),
		row.WorkflowID,
		triggerNodeID,
		model.ExecutionMode(row.Mode),
		model.ExecutionStatus(row.Status),
		row.StartedAt,
		finishedAt,
		triggerData,
		snapshot,
		execErr,
		nodeExecutions,
	), nil
}

type nodeExecutionRow struct {
	ID          string
	ExecutionID string
	NodeID      string
	Status      string
	StartedAt   time.Time
	FinishedAt  time.Time
	InputData   []byte
	OutputData  []byte
	Error       []byte
}

func (row *nodeExecutionRow) toDomain() (*model.NodeExecution, error) {
	var inputData map[string]interface{}
	if len(row.InputData) > 0 {
		if err := json.Unmarshal(row.InputData, &inputData); err != nil {
			return nil, fmt.Errorf("unmarshal node input: %w", err)
		}
	}
	var outputData map[string]interface{}
	if len(row.OutputData) > 0 {
		if err := json.Unmarshal(row.OutputData, &outputData); err != nil {
			return nil, fmt.Errorf("unmarshal node output: %w", err)
		}
	}
	var nodeErr *model.NormalizedError
	if len(row.Error) > 0 {
		if err := json.Unmarshal(row.Error, &nodeErr); err != nil {
			return nil, fmt.Errorf("unmarshal node error: %w", err)
		}
	}

	return &model.NodeExecution{
		ID:          row.ID,
		ExecutionID: model.ExecutionID(row.ExecutionID),
		NodeID:      row.NodeID,
		Status:      model.NodeExecutionStatus(row.Status),
		InputData:   inputData,
		OutputData:  outputData,
		Error:       nodeErr,
		StartedAt:   row.StartedAt,
		FinishedAt:  row.FinishedAt,
	}, nil
}
