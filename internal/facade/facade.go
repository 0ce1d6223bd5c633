// Package facade implements the Execution Façade: the single public
// entry point that unifies "run full workflow" and "run single node"
// under one request shape, one response shape, and one persistence
// path. A nodeId in the request body is the sole switch between the two
// modes.
package facade

import (
	"context"
	"errors"
	"fmt"

	execmodel "github.com/linkflow-ai/linkflow-ai/internal/execution/domain/model"
	"github.com/linkflow-ai/linkflow-ai/internal/engine"
	workflowmodel "github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/model"
)

// WorkflowRepository is the narrow read slice the façade needs to load
// the workflow a request targets.
type WorkflowRepository interface {
	FindByID(ctx context.Context, id workflowmodel.WorkflowID) (*workflowmodel.Workflow, error)
}

// Engine is the subset of *engine.Engine the façade drives. Declared
// locally so this package's tests can supply a fake.
type Engine interface {
	ExecuteWorkflow(ctx context.Context, wf *workflowmodel.Workflow, triggerNodeID string, mode execmodel.ExecutionMode, triggerData map[string]interface{}) (*engine.Result, error)
	ExecuteWorkflowWithID(ctx context.Context, wf *workflowmodel.Workflow, triggerNodeID string, mode execmodel.ExecutionMode, triggerData map[string]interface{}, executionID string) (*engine.Result, error)
	ExecuteSingleNode(ctx context.Context, wf *workflowmodel.Workflow, nodeID string, inputData map[string]interface{}, paramOverrides map[string]interface{}) (*engine.Result, error)
	GetExecutionStatus(ctx context.Context, executionID string) (*engine.ExecutionStatusView, bool)
	GetExecution(ctx context.Context, id execmodel.ExecutionID) (*execmodel.Execution, error)
}

// Request is the body of POST /executions.
type Request struct {
	WorkflowID    string                 `json:"workflowId"`
	TriggerNodeID string                 `json:"triggerNodeId,omitempty"`
	NodeID        string                 `json:"nodeId,omitempty"`
	InputData     map[string]interface{} `json:"inputData,omitempty"`
	Parameters    map[string]interface{} `json:"parameters,omitempty"`
	Mode          string                 `json:"mode,omitempty"`
	// ExecutionID lets a caller that must report the id before the run
	// finishes (an async webhook response) reserve it up front instead
	// of letting the engine mint one. Empty means let the engine mint.
	ExecutionID string `json:"executionId,omitempty"`
}

// Response is the unified shape returned by POST /executions regardless
// of which mode served the request.
type Response struct {
	ExecutionID   string   `json:"executionId"`
	Status        string   `json:"status"`
	ExecutedNodes []string `json:"executedNodes"`
	FailedNodes   []string `json:"failedNodes"`
	Duration      int64    `json:"duration"`
	HasFailures   bool     `json:"hasFailures"`
}

// statusLabel maps the persisted ExecutionStatus onto the façade's
// lowercase outward vocabulary: "completed" | "failed" | "cancelled" |
// "partial". "partial" is reserved for a continue-policy run that lost
// some nodes but still completed others — the engine computes this
// itself via Result.Partial, since only it knows the run's error
// policy; a stop-policy run that fails partway through is "failed" even
// though earlier nodes already succeeded.
func statusLabel(r *engine.Result) string {
	switch r.Status {
	case execmodel.ExecutionStatusSuccess:
		return "completed"
	case execmodel.ExecutionStatusCancelled:
		return "cancelled"
	case execmodel.ExecutionStatusError:
		if r.Partial {
			return "partial"
		}
		return "failed"
	default:
		return string(r.Status)
	}
}

// ErrAmbiguousTrigger is returned when a full-workflow request omits
// triggerNodeId and the workflow declares more than one trigger node.
var ErrAmbiguousTrigger = errors.New("workflow has more than one trigger; triggerNodeId is required")

// ErrNoTrigger is returned when a full-workflow request omits
// triggerNodeId and the workflow declares no trigger node at all.
var ErrNoTrigger = errors.New("workflow has no trigger node")

// Facade is the Execution Façade.
type Facade struct {
	workflows WorkflowRepository
	engine    Engine
}

// New creates a Façade wired to a workflow repository and the engine.
func New(workflows WorkflowRepository, eng Engine) *Facade {
	return &Facade{workflows: workflows, engine: eng}
}

// Execute dispatches req: nodeId present means single-node mode,
// otherwise full-workflow mode using triggerNodeId or the workflow's
// sole trigger.
func (f *Facade) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.WorkflowID == "" {
		return nil, errors.New("workflowId is required")
	}

	wf, err := f.workflows.FindByID(ctx, workflowmodel.WorkflowID(req.WorkflowID))
	if err != nil {
		return nil, fmt.Errorf("workflow %s not found: %w", req.WorkflowID, err)
	}

	if req.NodeID != "" {
		return f.executeSingleNode(ctx, wf, req)
	}
	return f.executeWorkflow(ctx, wf, req)
}

func (f *Facade) executeSingleNode(ctx context.Context, wf *workflowmodel.Workflow, req Request) (*Response, error) {
	result, err := f.engine.ExecuteSingleNode(ctx, wf, req.NodeID, req.InputData, req.Parameters)
	if err != nil {
		return nil, err
	}
	return toResponse(result), nil
}

func (f *Facade) executeWorkflow(ctx context.Context, wf *workflowmodel.Workflow, req Request) (*Response, error) {
	triggerNodeID := req.TriggerNodeID
	if triggerNodeID == "" {
		triggers := wf.Triggers()
		switch len(triggers) {
		case 0:
			return nil, ErrNoTrigger
		case 1:
			triggerNodeID = triggers[0].ID
		default:
			return nil, ErrAmbiguousTrigger
		}
	}

	mode := execmodel.ExecutionModeWorkflow
	if req.Mode != "" {
		mode = execmodel.ExecutionMode(req.Mode)
	}

	result, err := f.engine.ExecuteWorkflowWithID(ctx, wf, triggerNodeID, mode, req.InputData, req.ExecutionID)
	if err != nil {
		return nil, err
	}
	return toResponse(result), nil
}

func toResponse(r *engine.Result) *Response {
	executed := r.ExecutedNodes
	if executed == nil {
		executed = []string{}
	}
	failed := r.FailedNodes
	if failed == nil {
		failed = []string{}
	}
	return &Response{
		ExecutionID:   r.ExecutionID,
		Status:        statusLabel(r),
		ExecutedNodes: executed,
		FailedNodes:   failed,
		Duration:      r.Duration.Milliseconds(),
		HasFailures:   r.HasFailures,
	}
}

// Execution returns the persisted execution row (GET /executions/{id}).
func (f *Facade) Execution(ctx context.Context, id string) (*execmodel.Execution, error) {
	return f.engine.GetExecution(ctx, execmodel.ExecutionID(id))
}

// Progress returns the engine's live in-memory view of an execution (GET
// /executions/{id}/progress), or false if it has already left the
// tracker's retention window — callers should fall back to Execution in
// that case.
func (f *Facade) Progress(ctx context.Context, id string) (*engine.ExecutionStatusView, bool) {
	return f.engine.GetExecutionStatus(ctx, id)
}
