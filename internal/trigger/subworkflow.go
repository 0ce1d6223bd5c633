package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/linkflow-ai/linkflow-ai/internal/facade"
	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime/nodes"
	workflowmodel "github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/model"
)

// maxSubWorkflowDepth bounds the call chain an Execute Workflow node can
// build, mirroring the depth guard in the teacher's sub-workflow feature.
const maxSubWorkflowDepth = 10

// ErrMaxDepthExceeded is returned when a chain of Execute Workflow calls
// nests deeper than maxSubWorkflowDepth.
var ErrMaxDepthExceeded = fmt.Errorf("maximum sub-workflow nesting depth (%d) exceeded", maxSubWorkflowDepth)

// ErrNoCallTrigger is returned when the target workflow has no
// executeWorkflowTrigger node to receive the call.
var ErrNoCallTrigger = errors.New("target workflow has no Execute Workflow Trigger node")

// SubWorkflowRunner implements the workflow-call trigger: an Execute
// Workflow node in one workflow invokes another as a child execution,
// blocking until the child reaches a terminal state. Cancelling the
// parent's context cancels the child because both share the same ctx
// passed down from the engine's per-execution goroutine.
type SubWorkflowRunner struct {
	workflows WorkflowRepository
	executor  Executor

	mu    sync.Mutex
	depth map[string]int // executionID -> current call depth
}

// WorkflowRepository is the narrow read slice the runner needs.
type WorkflowRepository interface {
	FindByID(ctx context.Context, id workflowmodel.WorkflowID) (*workflowmodel.Workflow, error)
}

// NewSubWorkflowRunner creates a runner wired to the workflow repository
// and the façade.
func NewSubWorkflowRunner(workflows WorkflowRepository, executor Executor) *SubWorkflowRunner {
	return &SubWorkflowRunner{
		workflows: workflows,
		executor:  executor,
		depth:     make(map[string]int),
	}
}

// Run invokes childWorkflowID as a sub-execution, passing parentOutput as
// the child's triggerData, and blocks until the child finishes.
// parentExecutionID scopes the nesting-depth counter to one top-level run
// so sibling calls across different executions don't interfere.
func (r *SubWorkflowRunner) Run(ctx context.Context, parentExecutionID, childWorkflowID string, parentOutput map[string]interface{}) (*facade.Response, error) {
	if err := r.enter(parentExecutionID); err != nil {
		return nil, err
	}
	defer r.leave(parentExecutionID)

	child, err := r.workflows.FindByID(ctx, workflowmodel.WorkflowID(childWorkflowID))
	if err != nil {
		return nil, fmt.Errorf("sub-workflow %s not found: %w", childWorkflowID, err)
	}

	triggerNodeID, err := callTriggerNodeID(child)
	if err != nil {
		return nil, err
	}

	// The child runs under an id minted here and starts at this call's
	// depth, so a call the child makes in turn counts one level deeper.
	childExecutionID := uuid.New().String()
	r.mu.Lock()
	r.depth[childExecutionID] = r.depth[parentExecutionID]
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.depth, childExecutionID)
		r.mu.Unlock()
	}()

	return r.executor.Execute(ctx, facade.Request{
		WorkflowID:    childWorkflowID,
		TriggerNodeID: triggerNodeID,
		InputData:     parentOutput,
		ExecutionID:   childExecutionID,
	})
}

func (r *SubWorkflowRunner) enter(executionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.depth[executionID] + 1
	if next > maxSubWorkflowDepth {
		return ErrMaxDepthExceeded
	}
	r.depth[executionID] = next
	return nil
}

func (r *SubWorkflowRunner) leave(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depth[executionID]--
	if r.depth[executionID] <= 0 {
		delete(r.depth, executionID)
	}
}

// AsSubWorkflowCaller adapts r to nodes.SubWorkflowCaller, the interface
// ExecuteWorkflowNode depends on without importing this package.
func (r *SubWorkflowRunner) AsSubWorkflowCaller() nodes.SubWorkflowCaller {
	return subWorkflowCallerAdapter{r}
}

type subWorkflowCallerAdapter struct {
	runner *SubWorkflowRunner
}

func (a subWorkflowCallerAdapter) Run(ctx context.Context, parentExecutionID, childWorkflowID string, parentOutput map[string]interface{}) (nodes.SubWorkflowResult, error) {
	resp, err := a.runner.Run(ctx, parentExecutionID, childWorkflowID, parentOutput)
	if err != nil {
		return nodes.SubWorkflowResult{}, err
	}
	return nodes.SubWorkflowResult{
		ExecutionID: resp.ExecutionID,
		Status:      resp.Status,
		HasFailures: resp.HasFailures,
	}, nil
}

func callTriggerNodeID(wf *workflowmodel.Workflow) (string, error) {
	for _, n := range wf.Triggers() {
		if n.Type == "executeWorkflowTrigger" {
			return n.ID, nil
		}
	}
	return "", ErrNoCallTrigger
}
