package facade

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-ai/linkflow-ai/internal/engine"
	execmodel "github.com/linkflow-ai/linkflow-ai/internal/execution/domain/model"
	workflowmodel "github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/model"
)

type fakeRepo struct {
	workflows map[workflowmodel.WorkflowID]*workflowmodel.Workflow
}

func (r *fakeRepo) FindByID(ctx context.Context, id workflowmodel.WorkflowID) (*workflowmodel.Workflow, error) {
	wf, ok := r.workflows[id]
	if !ok {
		return nil, assert.AnError
	}
	return wf, nil
}

type fakeEngine struct {
	workflowCalls   []string
	singleNodeCalls []string
	result          *engine.Result
	err             error
}

func (f *fakeEngine) ExecuteWorkflow(ctx context.Context, wf *workflowmodel.Workflow, triggerNodeID string, mode execmodel.ExecutionMode, triggerData map[string]interface{}) (*engine.Result, error) {
	f.workflowCalls = append(f.workflowCalls, triggerNodeID)
	return f.result, f.err
}

func (f *fakeEngine) ExecuteWorkflowWithID(ctx context.Context, wf *workflowmodel.Workflow, triggerNodeID string, mode execmodel.ExecutionMode, triggerData map[string]interface{}, executionID string) (*engine.Result, error) {
	f.workflowCalls = append(f.workflowCalls, triggerNodeID)
	return f.result, f.err
}

func (f *fakeEngine) ExecuteSingleNode(ctx context.Context, wf *workflowmodel.Workflow, nodeID string, inputData map[string]interface{}, paramOverrides map[string]interface{}) (*engine.Result, error) {
	f.singleNodeCalls = append(f.singleNodeCalls, nodeID)
	return f.result, f.err
}

func (f *fakeEngine) GetExecutionStatus(ctx context.Context, executionID string) (*engine.ExecutionStatusView, bool) {
	return nil, false
}

func (f *fakeEngine) GetExecution(ctx context.Context, id execmodel.ExecutionID) (*execmodel.Execution, error) {
	return nil, nil
}

func newWorkflowWithNodes(t *testing.T, nodes ...workflowmodel.Node) *workflowmodel.Workflow {
	t.Helper()
	wf, err := workflowmodel.NewWorkflow("user-1", "Test Workflow", "")
	require.NoError(t, err)
	for _, n := range nodes {
		require.NoError(t, wf.AddNode(n))
	}
	return wf
}

func triggerNode(id, name string) workflowmodel.Node {
	return workflowmodel.Node{ID: id, Type: "manualTrigger", Name: name, ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger}
}

func actionNode(id, name string) workflowmodel.Node {
	return workflowmodel.Node{ID: id, Type: "set", Name: name, ExecutionCapability: workflowmodel.ExecutionCapabilityAction}
}

// A request carrying nodeId is routed to single-node execution regardless
// of what else the workflow declares.
func TestFacade_ExecuteDispatchesToSingleNode(t *testing.T) {
	wf := newWorkflowWithNodes(t, triggerNode("t1", "Trigger"), actionNode("a1", "Action"))
	repo := &fakeRepo{workflows: map[workflowmodel.WorkflowID]*workflowmodel.Workflow{wf.ID(): wf}}
	eng := &fakeEngine{result: &engine.Result{ExecutionID: "exec-1", Status: execmodel.ExecutionStatusSuccess}}
	f := New(repo, eng)

	resp, err := f.Execute(context.Background(), Request{WorkflowID: string(wf.ID()), NodeID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, eng.singleNodeCalls)
	assert.Empty(t, eng.workflowCalls)
	assert.Equal(t, "completed", resp.Status)
}

// No nodeId and exactly one trigger node: the façade infers the trigger
// rather than requiring triggerNodeId.
func TestFacade_ExecuteInfersSoleTrigger(t *testing.T) {
	wf := newWorkflowWithNodes(t, triggerNode("t1", "Trigger"), actionNode("a1", "Action"))
	repo := &fakeRepo{workflows: map[workflowmodel.WorkflowID]*workflowmodel.Workflow{wf.ID(): wf}}
	eng := &fakeEngine{result: &engine.Result{ExecutionID: "exec-2", Status: execmodel.ExecutionStatusSuccess}}
	f := New(repo, eng)

	_, err := f.Execute(context.Background(), Request{WorkflowID: string(wf.ID())})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, eng.workflowCalls)
}

// Multiple trigger nodes with no triggerNodeId is ambiguous and must be
// rejected rather than guessing one.
func TestFacade_ExecuteAmbiguousTrigger(t *testing.T) {
	wf := newWorkflowWithNodes(t, triggerNode("t1", "Trigger A"), triggerNode("t2", "Trigger B"))
	repo := &fakeRepo{workflows: map[workflowmodel.WorkflowID]*workflowmodel.Workflow{wf.ID(): wf}}
	eng := &fakeEngine{}
	f := New(repo, eng)

	_, err := f.Execute(context.Background(), Request{WorkflowID: string(wf.ID())})
	assert.ErrorIs(t, err, ErrAmbiguousTrigger)
}

// A workflow with no trigger node at all cannot be run in full-workflow
// mode.
func TestFacade_ExecuteNoTrigger(t *testing.T) {
	wf := newWorkflowWithNodes(t, actionNode("a1", "Action"))
	repo := &fakeRepo{workflows: map[workflowmodel.WorkflowID]*workflowmodel.Workflow{wf.ID(): wf}}
	eng := &fakeEngine{}
	f := New(repo, eng)

	_, err := f.Execute(context.Background(), Request{WorkflowID: string(wf.ID())})
	assert.ErrorIs(t, err, ErrNoTrigger)
}

func TestFacade_ExecuteRequiresWorkflowID(t *testing.T) {
	f := New(&fakeRepo{workflows: map[workflowmodel.WorkflowID]*workflowmodel.Workflow{}}, &fakeEngine{})
	_, err := f.Execute(context.Background(), Request{})
	assert.Error(t, err)
}

// statusLabel trusts the engine's own Partial verdict rather than
// guessing from ExecutedNodes: a stop-policy failure reports "failed"
// even when earlier nodes already succeeded, while a continue-policy
// run that lost some nodes but kept others reports "partial".
func TestFacade_StatusLabelPartialVsFailed(t *testing.T) {
	wholelyFailed := &engine.Result{Status: execmodel.ExecutionStatusError}
	assert.Equal(t, "failed", statusLabel(wholelyFailed))

	stopPolicyMidFailure := &engine.Result{Status: execmodel.ExecutionStatusError, ExecutedNodes: []string{"t1", "a1", "b1"}, FailedNodes: []string{"b1"}}
	assert.Equal(t, "failed", statusLabel(stopPolicyMidFailure))

	partial := &engine.Result{Status: execmodel.ExecutionStatusError, ExecutedNodes: []string{"a1"}, Partial: true}
	assert.Equal(t, "partial", statusLabel(partial))

	cancelled := &engine.Result{Status: execmodel.ExecutionStatusCancelled}
	assert.Equal(t, "cancelled", statusLabel(cancelled))
}

// The unified response never surfaces nil slices for executedNodes or
// failedNodes.
func TestFacade_ToResponseNeverNilSlices(t *testing.T) {
	resp := toResponse(&engine.Result{
		ExecutionID: "exec-3",
		Status:      execmodel.ExecutionStatusSuccess,
		Duration:    250 * time.Millisecond,
	})
	assert.NotNil(t, resp.ExecutedNodes)
	assert.NotNil(t, resp.FailedNodes)
	assert.Equal(t, int64(250), resp.Duration)
}
