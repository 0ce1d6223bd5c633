package repository

import (
	"context"
	"errors"

	"github.com/linkflow-ai/linkflow-ai/internal/execution/domain/model"
)

var (
	// ErrNotFound is returned when an execution is not found.
	ErrNotFound = errors.New("execution not found")
)

// ExecutionRepository persists Execution aggregates and their child
// NodeExecution rows. Writes on engine completion are expected to be
// transactional: the terminal Execution update and its NodeExecution
// inserts commit together, or the Execution row is updated last so
// orphaned NodeExecution rows under a still-RUNNING execution are
// detectable during recovery.
type ExecutionRepository interface {
	// Save inserts a new Execution row (engine-start write).
	Save(ctx context.Context, execution *model.Execution) error

	// FinishTransactional updates the Execution row to a terminal status
	// and inserts all of its recorded NodeExecution rows in one
	// transaction.
	FinishTransactional(ctx context.Context, execution *model.Execution) error

	// FindByID returns an execution with all of its node executions.
	FindByID(ctx context.Context, id model.ExecutionID) (*model.Execution, error)

	// FindByWorkflowID lists executions of a workflow, most recent first.
	FindByWorkflowID(ctx context.Context, workflowID string, offset, limit int) ([]*model.Execution, error)

	// FindRunningOrphans returns executions still RUNNING that started
	// before the olderThan cutoff (unix milliseconds).
	FindRunningOrphans(ctx context.Context, olderThan int64) ([]*model.Execution, error)
}
