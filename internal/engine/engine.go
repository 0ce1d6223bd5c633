// Package engine implements the Flow Execution Engine: the graph
// scheduler, progress tracker, event bus, and persistence wiring that run
// a workflow snapshot to completion.
package engine

import (
	"context"
	"time"

	execmodel "github.com/linkflow-ai/linkflow-ai/internal/execution/domain/model"
	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/cache"
	workflowmodel "github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/model"
	"github.com/linkflow-ai/linkflow-ai/pkg/expression"
)

// Engine is the entry point the Execution Façade calls into. It owns
// the long-lived components — registry, tracker, bus, worker pool,
// scheduler, persistence — for the life of the process and exposes the
// four operations a run can ever need: start a full workflow, start a
// single node, cancel a run, or read its progress.
type Engine struct {
	registry  *runtime.Registry
	scheduler *Scheduler
	tracker   *Tracker
	bus       *EventBus
	pool      *WorkerPool
	persist   *Persistence
}

// New wires the engine's components together. resolver satisfies
// credentialResolver (ResolveAll); callers pass the concrete
// *credential.Resolver. maxConcurrency is MAX_EXECUTION_CONCURRENCY;
// redisCache and executionRetention configure the Progress Tracker
// (both optional — nil cache is fine).
func New(
	registry *runtime.Registry,
	resolver credentialResolver,
	parser *expression.Parser,
	persistRepo persistenceRepo,
	redisCache *cache.RedisCache,
	maxConcurrency int,
	executionRetention time.Duration,
) *Engine {
	tracker := NewTracker(redisCache, executionRetention)
	bus := NewEventBus()
	pool := NewWorkerPool(maxConcurrency)
	persist := &Persistence{repo: persistRepo}
	scheduler := NewScheduler(registry, resolver, parser, tracker, bus, pool, persist)

	return &Engine{
		registry:  registry,
		scheduler: scheduler,
		tracker:   tracker,
		bus:       bus,
		pool:      pool,
		persist:   persist,
	}
}

// ExecuteWorkflow starts a full workflow run from triggerNodeID, minting
// a fresh execution id, and blocks until it reaches a terminal state.
func (e *Engine) ExecuteWorkflow(ctx context.Context, wf *workflowmodel.Workflow, triggerNodeID string, mode execmodel.ExecutionMode, triggerData map[string]interface{}) (*Result, error) {
	return e.scheduler.ExecuteWorkflow(ctx, wf, triggerNodeID, mode, triggerData)
}

// ExecuteWorkflowWithID behaves like ExecuteWorkflow but runs under a
// caller-supplied execution id. An empty executionID falls back to
// minting a fresh one, same as ExecuteWorkflow.
func (e *Engine) ExecuteWorkflowWithID(ctx context.Context, wf *workflowmodel.Workflow, triggerNodeID string, mode execmodel.ExecutionMode, triggerData map[string]interface{}, executionID string) (*Result, error) {
	return e.scheduler.ExecuteWorkflowWithID(ctx, wf, triggerNodeID, mode, triggerData, executionID)
}

// ExecuteSingleNode starts single-node mode and blocks until the node
// reaches a terminal state.
func (e *Engine) ExecuteSingleNode(ctx context.Context, wf *workflowmodel.Workflow, nodeID string, inputData map[string]interface{}, paramOverrides map[string]interface{}) (*Result, error) {
	return e.scheduler.ExecuteSingleNode(ctx, wf, nodeID, inputData, paramOverrides)
}

// CancelExecution requests cancellation of a running full-workflow
// execution. Returns false if executionID isn't currently running in
// this process.
func (e *Engine) CancelExecution(executionID string) bool {
	return e.scheduler.CancelExecution(executionID)
}

// GetExecutionStatus returns the Progress Tracker's live view of an
// execution, for the façade's GET /executions/{id}/progress.
func (e *Engine) GetExecutionStatus(ctx context.Context, executionID string) (*ExecutionStatusView, bool) {
	return e.tracker.GetExecutionStatus(ctx, executionID)
}

// GetExecution loads a persisted execution by id, for the façade's
// GET /executions/{id}.
func (e *Engine) GetExecution(ctx context.Context, id execmodel.ExecutionID) (*execmodel.Execution, error) {
	return e.persist.FindByID(ctx, id)
}

// Registry exposes the node registry for handlers that list node types.
func (e *Engine) Registry() *runtime.Registry { return e.registry }

// EventBus exposes the bus so the websocket bridge and Kafka audit sink
// can subscribe/register without the engine depending on either.
func (e *Engine) EventBus() *EventBus { return e.bus }

// WorkerPool exposes pool stats for the /metrics handler.
func (e *Engine) WorkerPool() *WorkerPool { return e.pool }

// persistenceRepo is declared locally, mirroring credentialResolver in
// scheduler.go, so this package's exported constructor doesn't force
// callers to import internal/execution/domain/repository just to call
// New — they already have a concrete value of that type from wiring the
// rest of the app together.
type persistenceRepo interface {
	Save(ctx context.Context, execution *execmodel.Execution) error
	FinishTransactional(ctx context.Context, execution *execmodel.Execution) error
	FindByID(ctx context.Context, id execmodel.ExecutionID) (*execmodel.Execution, error)
	FindByWorkflowID(ctx context.Context, workflowID string, offset, limit int) ([]*execmodel.Execution, error)
	FindRunningOrphans(ctx context.Context, olderThan int64) ([]*execmodel.Execution, error)
}

