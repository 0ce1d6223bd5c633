package trigger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-ai/linkflow-ai/internal/facade"
	workflowmodel "github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/model"
)

type fakeWorkflowRepo struct {
	workflows map[workflowmodel.WorkflowID]*workflowmodel.Workflow
}

func (r *fakeWorkflowRepo) FindByID(ctx context.Context, id workflowmodel.WorkflowID) (*workflowmodel.Workflow, error) {
	wf, ok := r.workflows[id]
	if !ok {
		return nil, assert.AnError
	}
	return wf, nil
}

type fakeExecutor struct {
	calls []facade.Request
	resp  *facade.Response
	err   error
}

func (e *fakeExecutor) Execute(ctx context.Context, req facade.Request) (*facade.Response, error) {
	e.calls = append(e.calls, req)
	return e.resp, e.err
}

func callTriggerWorkflow(t *testing.T) *workflowmodel.Workflow {
	t.Helper()
	wf, err := workflowmodel.NewWorkflow("user-1", "Child", "")
	require.NoError(t, err)
	require.NoError(t, wf.AddNode(workflowmodel.Node{
		ID:                  "call1",
		Type:                "executeWorkflowTrigger",
		Name:                "Call Trigger",
		ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger,
	}))
	return wf
}

func TestSubWorkflowRunner_RunSuccess(t *testing.T) {
	child := callTriggerWorkflow(t)
	repo := &fakeWorkflowRepo{workflows: map[workflowmodel.WorkflowID]*workflowmodel.Workflow{child.ID(): child}}
	exec := &fakeExecutor{resp: &facade.Response{ExecutionID: "exec-child", Status: "completed"}}
	r := NewSubWorkflowRunner(repo, exec)

	resp, err := r.Run(context.Background(), "exec-parent", string(child.ID()), map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, "exec-child", resp.ExecutionID)
	require.Len(t, exec.calls, 1)
	assert.Equal(t, "call1", exec.calls[0].TriggerNodeID)
}

func TestSubWorkflowRunner_RunNoCallTrigger(t *testing.T) {
	wf, err := workflowmodel.NewWorkflow("user-1", "Child", "")
	require.NoError(t, err)
	require.NoError(t, wf.AddNode(triggerNode("t1", "Manual")))

	repo := &fakeWorkflowRepo{workflows: map[workflowmodel.WorkflowID]*workflowmodel.Workflow{wf.ID(): wf}}
	r := NewSubWorkflowRunner(repo, &fakeExecutor{})

	_, err = r.Run(context.Background(), "exec-parent", string(wf.ID()), nil)
	assert.ErrorIs(t, err, ErrNoCallTrigger)
}

func TestSubWorkflowRunner_RunUnknownWorkflow(t *testing.T) {
	repo := &fakeWorkflowRepo{workflows: map[workflowmodel.WorkflowID]*workflowmodel.Workflow{}}
	r := NewSubWorkflowRunner(repo, &fakeExecutor{})

	_, err := r.Run(context.Background(), "exec-parent", "missing", nil)
	require.Error(t, err)
}

// A single top-level execution nesting calls beyond the depth limit is
// rejected, but the counter is scoped per execution id so unrelated runs
// don't interfere with each other.
func TestSubWorkflowRunner_MaxDepthExceeded(t *testing.T) {
	child := callTriggerWorkflow(t)
	repo := &fakeWorkflowRepo{workflows: map[workflowmodel.WorkflowID]*workflowmodel.Workflow{child.ID(): child}}
	exec := &fakeExecutor{resp: &facade.Response{ExecutionID: "exec-child", Status: "completed"}}
	r := NewSubWorkflowRunner(repo, exec)

	for i := 0; i < maxSubWorkflowDepth; i++ {
		require.NoError(t, r.enter("exec-parent"))
	}
	assert.ErrorIs(t, r.enter("exec-parent"), ErrMaxDepthExceeded)

	// A different execution id is unaffected by exec-parent's depth.
	require.NoError(t, r.enter("exec-other"))
}

func triggerNode(id, name string) workflowmodel.Node {
	return workflowmodel.Node{ID: id, Type: "manualTrigger", Name: name, ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger}
}
