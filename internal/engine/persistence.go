package engine

import (
	"context"

	execmodel "github.com/linkflow-ai/linkflow-ai/internal/execution/domain/model"
	"github.com/linkflow-ai/linkflow-ai/internal/execution/domain/repository"
)

// Persistence is the scheduler's narrow view onto execution storage:
// start the Execution row when a run begins, then commit its terminal
// status and every NodeExecution row in one transaction when the run
// drains. The scheduler never touches
// repository.ExecutionRepository or adapters/repository/postgres
// directly — this thin wrapper is the only thing it depends on, so a
// different storage adapter can be swapped in by constructing a
// different repository.ExecutionRepository, not by touching the engine.
type Persistence struct {
	repo repository.ExecutionRepository
}

func NewPersistence(repo repository.ExecutionRepository) *Persistence {
	return &Persistence{repo: repo}
}

// SaveStart writes the Execution row's initial RUNNING state.
func (p *Persistence) SaveStart(ctx context.Context, execution *execmodel.Execution) error {
	return p.repo.Save(ctx, execution)
}

// FinishTransactional commits the terminal Execution status together
// with every NodeExecution row recorded during the run.
func (p *Persistence) FinishTransactional(ctx context.Context, execution *execmodel.Execution) error {
	return p.repo.FinishTransactional(ctx, execution)
}

// FindByID loads a persisted execution, used by the façade's
// GET /executions/{id}.
func (p *Persistence) FindByID(ctx context.Context, id execmodel.ExecutionID) (*execmodel.Execution, error) {
	return p.repo.FindByID(ctx, id)
}

// RecoverOrphans finds executions left RUNNING by a process that died
// mid-run so the caller can mark them terminal on startup instead of
// leaving them stuck forever.
func (p *Persistence) RecoverOrphans(ctx context.Context, olderThanUnixMs int64) ([]*execmodel.Execution, error) {
	return p.repo.FindRunningOrphans(ctx, olderThanUnixMs)
}
