package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	execmodel "github.com/linkflow-ai/linkflow-ai/internal/execution/domain/model"
	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime/nodes"
	workflowmodel "github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/model"
	"github.com/linkflow-ai/linkflow-ai/pkg/expression"
)

// fakeRepo is an in-memory stand-in for the execution repository,
// sufficient for driving the scheduler end to end without a database.
type fakeRepo struct {
	mu         sync.Mutex
	executions map[execmodel.ExecutionID]*execmodel.Execution
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{executions: make(map[execmodel.ExecutionID]*execmodel.Execution)}
}

func (f *fakeRepo) Save(ctx context.Context, execution *execmodel.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions[execution.ID()] = execution
	return nil
}

func (f *fakeRepo) FinishTransactional(ctx context.Context, execution *execmodel.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions[execution.ID()] = execution
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id execmodel.ExecutionID) (*execmodel.Execution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.executions[id]
	if !ok {
		return nil, errors.New("execution not found")
	}
	return e, nil
}

func (f *fakeRepo) FindByWorkflowID(ctx context.Context, workflowID string, offset, limit int) ([]*execmodel.Execution, error) {
	return nil, nil
}

func (f *fakeRepo) FindRunningOrphans(ctx context.Context, olderThan int64) ([]*execmodel.Execution, error) {
	return nil, nil
}

// noCredsResolver satisfies credentialResolver for nodes that declare no
// credentials, which is every node exercised by these tests.
type noCredsResolver struct{}

func (noCredsResolver) ResolveAll(ctx context.Context, node workflowmodel.Node) (map[string]interface{}, error) {
	return nil, nil
}

// testRegistry returns a fresh, hermetic registry carrying only the
// built-in nodes these tests need, rather than depending on the process
// global registry's init-order side effects.
func testRegistry(t *testing.T) *runtime.Registry {
	t.Helper()
	reg := runtime.NewRegistry()
	require.NoError(t, reg.Register(nodes.NewManualTriggerNode()))
	require.NoError(t, reg.Register(nodes.NewNoOpNode()))
	require.NoError(t, reg.Register(nodes.NewSetNode()))
	require.NoError(t, reg.Register(nodes.NewIFNode()))
	return reg
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeRepo) {
	repo := newFakeRepo()
	sched := NewScheduler(
		testRegistry(t),
		noCredsResolver{},
		expression.NewParser(),
		NewTracker(nil, time.Minute),
		NewEventBus(),
		NewWorkerPool(8),
		NewPersistence(repo),
	)
	return sched, repo
}

func buildLinearWorkflow(t *testing.T) *workflowmodel.Workflow {
	t.Helper()
	wf, err := workflowmodel.NewWorkflow("owner-1", "linear", "")
	require.NoError(t, err)
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "trigger", Type: "manualTrigger", Name: "Start", ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "n1", Type: "noOp", Name: "NoOp1", ExecutionCapability: workflowmodel.ExecutionCapabilityAction}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "n2", Type: "noOp", Name: "NoOp2", ExecutionCapability: workflowmodel.ExecutionCapabilityAction}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c1", SourceNodeID: "trigger", TargetNodeID: "n1"}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c2", SourceNodeID: "n1", TargetNodeID: "n2"}))
	return wf
}

// Scenario: ManualTrigger -> NoOp -> NoOp completes successfully and
// records all three nodes.
func TestScheduler_LinearPassThrough(t *testing.T) {
	sched, _ := newTestScheduler(t)
	wf := buildLinearWorkflow(t)

	result, err := sched.ExecuteWorkflow(context.Background(), wf, "trigger", execmodel.ExecutionModeWorkflow, map[string]interface{}{"x": float64(1)})
	require.NoError(t, err)

	assert.Equal(t, execmodel.ExecutionStatusSuccess, result.Status)
	assert.ElementsMatch(t, []string{"trigger", "n1", "n2"}, result.ExecutedNodes)
	assert.Empty(t, result.FailedNodes)
	assert.False(t, result.HasFailures)
}

// Boundary behavior: a single disconnected trigger with no downstream
// nodes still succeeds, recording exactly one node execution.
func TestScheduler_SingleTriggerNoDownstream(t *testing.T) {
	sched, _ := newTestScheduler(t)
	wf, err := workflowmodel.NewWorkflow("owner-1", "solo", "")
	require.NoError(t, err)
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "trigger", Type: "manualTrigger", ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger}))

	result, err := sched.ExecuteWorkflow(context.Background(), wf, "trigger", execmodel.ExecutionModeWorkflow, map[string]interface{}{})
	require.NoError(t, err)

	assert.Equal(t, execmodel.ExecutionStatusSuccess, result.Status)
	assert.Equal(t, []string{"trigger"}, result.ExecutedNodes)
}

// An IF node only activates dependents on the port that actually
// received items; the other port's dependent is SKIPPED, not run.
func TestScheduler_BranchSemantics(t *testing.T) {
	sched, _ := newTestScheduler(t)
	wf, err := workflowmodel.NewWorkflow("owner-1", "branch", "")
	require.NoError(t, err)

	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "trigger", Type: "manualTrigger", ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{
		ID: "cond", Type: "if", ExecutionCapability: workflowmodel.ExecutionCapabilityAction,
		Parameters: map[string]interface{}{
			"conditions": []interface{}{
				map[string]interface{}{"field": "flag", "operator": "equals", "value": "true"},
			},
		},
	}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "onTrue", Type: "noOp", ExecutionCapability: workflowmodel.ExecutionCapabilityAction}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "onFalse", Type: "noOp", ExecutionCapability: workflowmodel.ExecutionCapabilityAction}))

	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c1", SourceNodeID: "trigger", TargetNodeID: "cond"}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c2", SourceNodeID: "cond", SourceOutput: "true", TargetNodeID: "onTrue"}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c3", SourceNodeID: "cond", SourceOutput: "false", TargetNodeID: "onFalse"}))

	result, err := sched.ExecuteWorkflow(context.Background(), wf, "trigger", execmodel.ExecutionModeWorkflow, map[string]interface{}{"flag": "true"})
	require.NoError(t, err)

	assert.Equal(t, execmodel.ExecutionStatusSuccess, result.Status)
	assert.Contains(t, result.ExecutedNodes, "onTrue")
	assert.NotContains(t, result.ExecutedNodes, "onFalse")
}

// A disabled node forwards its input to its output unchanged and is
// recorded SKIPPED, not run.
func TestScheduler_DisabledNodePassThrough(t *testing.T) {
	sched, repo := newTestScheduler(t)
	wf, err := workflowmodel.NewWorkflow("owner-1", "disabled", "")
	require.NoError(t, err)

	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "trigger", Type: "manualTrigger", ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "skip", Type: "noOp", Disabled: true, ExecutionCapability: workflowmodel.ExecutionCapabilityAction}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c1", SourceNodeID: "trigger", TargetNodeID: "skip"}))

	result, err := sched.ExecuteWorkflow(context.Background(), wf, "trigger", execmodel.ExecutionModeWorkflow, map[string]interface{}{"a": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, execmodel.ExecutionStatusSuccess, result.Status)

	stored, err := repo.FindByID(context.Background(), execmodel.ExecutionID(result.ExecutionID))
	require.NoError(t, err)
	ne := stored.NodeExecutions()["skip"]
	require.NotNil(t, ne)
	assert.Equal(t, execmodel.NodeExecutionSkipped, ne.Status)
	assert.Equal(t, ne.InputData, ne.OutputData)
}

// stop policy: a failing node aborts the run; its successors are
// cancelled rather than run.
func TestScheduler_StopPolicyOnFailure(t *testing.T) {
	sched, _ := newTestScheduler(t)
	wf, err := workflowmodel.NewWorkflow("owner-1", "stop", "")
	require.NoError(t, err)

	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "trigger", Type: "manualTrigger", ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{
		ID: "bad", Type: "set", ExecutionCapability: workflowmodel.ExecutionCapabilityAction,
		Parameters: map[string]interface{}{"mode": "json", "jsonData": "{not valid json"},
	}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "after", Type: "noOp", ExecutionCapability: workflowmodel.ExecutionCapabilityAction}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c1", SourceNodeID: "trigger", TargetNodeID: "bad"}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c2", SourceNodeID: "bad", TargetNodeID: "after"}))

	settings := wf.Settings()
	settings.ErrorPolicy = workflowmodel.ErrorHandlingStop
	require.NoError(t, wf.UpdateSettings(settings))

	result, err := sched.ExecuteWorkflow(context.Background(), wf, "trigger", execmodel.ExecutionModeWorkflow, map[string]interface{}{})
	require.NoError(t, err)

	assert.Equal(t, execmodel.ExecutionStatusError, result.Status)
	assert.Contains(t, result.FailedNodes, "bad")
	assert.NotContains(t, result.ExecutedNodes, "after")
	assert.True(t, result.HasFailures)
}

// continue policy: a failing branch doesn't stop siblings, but its own
// downstream dependent is skipped since it produced no output.
func TestScheduler_ContinuePolicySkipsOnlyFailedBranch(t *testing.T) {
	sched, _ := newTestScheduler(t)
	wf, err := workflowmodel.NewWorkflow("owner-1", "continue", "")
	require.NoError(t, err)

	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "trigger", Type: "manualTrigger", ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{
		ID: "bad", Type: "set", ExecutionCapability: workflowmodel.ExecutionCapabilityAction,
		Parameters: map[string]interface{}{"mode": "json", "jsonData": "{not valid json"},
	}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "downstreamOfBad", Type: "noOp", ExecutionCapability: workflowmodel.ExecutionCapabilityAction}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "good", Type: "noOp", ExecutionCapability: workflowmodel.ExecutionCapabilityAction}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c1", SourceNodeID: "trigger", TargetNodeID: "bad"}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c2", SourceNodeID: "bad", TargetNodeID: "downstreamOfBad"}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c3", SourceNodeID: "trigger", TargetNodeID: "good"}))

	settings := wf.Settings()
	settings.ErrorPolicy = workflowmodel.ErrorHandlingContinue
	require.NoError(t, wf.UpdateSettings(settings))

	result, err := sched.ExecuteWorkflow(context.Background(), wf, "trigger", execmodel.ExecutionModeWorkflow, map[string]interface{}{})
	require.NoError(t, err)

	assert.Equal(t, execmodel.ExecutionStatusError, result.Status)
	assert.Contains(t, result.FailedNodes, "bad")
	assert.Contains(t, result.ExecutedNodes, "good")
	assert.NotContains(t, result.ExecutedNodes, "downstreamOfBad")
}

// A cyclic graph executes each node at most once and does not livelock.
func TestScheduler_CyclicGraphTerminates(t *testing.T) {
	sched, _ := newTestScheduler(t)
	wf, err := workflowmodel.NewWorkflow("owner-1", "cyclic", "")
	require.NoError(t, err)

	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "trigger", Type: "manualTrigger", ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "a", Type: "noOp", ExecutionCapability: workflowmodel.ExecutionCapabilityAction}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "b", Type: "noOp", ExecutionCapability: workflowmodel.ExecutionCapabilityAction}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c1", SourceNodeID: "trigger", TargetNodeID: "a"}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c2", SourceNodeID: "a", TargetNodeID: "b"}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c3", SourceNodeID: "b", TargetNodeID: "a"}))

	done := make(chan struct{})
	var result *Result
	var runErr error
	go func() {
		result, runErr = sched.ExecuteWorkflow(context.Background(), wf, "trigger", execmodel.ExecutionModeWorkflow, map[string]interface{}{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler livelocked on a cyclic graph")
	}

	require.NoError(t, runErr)
	assert.Equal(t, execmodel.ExecutionStatusSuccess, result.Status)
	seen := map[string]int{}
	for _, id := range result.ExecutedNodes {
		seen[id]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "node %s ran %d times", id, count)
	}
}

// Two concurrent executions of the same workflow never let one observe
// the other's node state or get conflated in the result.
func TestScheduler_ExecutionIsolation(t *testing.T) {
	sched, _ := newTestScheduler(t)
	wf := buildLinearWorkflow(t)

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wg.Done()
			r, err := sched.ExecuteWorkflow(context.Background(), wf, "trigger", execmodel.ExecutionModeWorkflow, map[string]interface{}{"run": float64(i)})
			require.NoError(t, err)
			results[i] = r
		}()
	}
	wg.Wait()

	require.NotEqual(t, results[0].ExecutionID, results[1].ExecutionID)
	for _, r := range results {
		assert.Equal(t, execmodel.ExecutionStatusSuccess, r.Status)
		assert.ElementsMatch(t, []string{"trigger", "n1", "n2"}, r.ExecutedNodes)
	}
}

// Single-node mode runs the node's real Execute against caller-supplied
// input and reports through the same Result shape as a full run.
func TestScheduler_SingleNodeMode(t *testing.T) {
	sched, repo := newTestScheduler(t)
	wf := buildLinearWorkflow(t)

	result, err := sched.ExecuteSingleNode(context.Background(), wf, "n1", map[string]interface{}{"hello": "world"}, nil)
	require.NoError(t, err)

	assert.Equal(t, execmodel.ExecutionStatusSuccess, result.Status)
	assert.Equal(t, []string{"n1"}, result.ExecutedNodes)

	stored, err := repo.FindByID(context.Background(), execmodel.ExecutionID(result.ExecutionID))
	require.NoError(t, err)
	assert.Len(t, stored.NodeExecutions(), 1)
	ne := stored.NodeExecutions()["n1"]
	require.NotNil(t, ne)
	assert.Equal(t, map[string]interface{}{"hello": "world"}, ne.OutputData)
}

// slowNode is a test-only NodeExecutor that blocks until its context is
// cancelled, used to exercise CancelExecution against a node that is
// still running when the cancel arrives.
type slowNode struct{ delay time.Duration }

func (s *slowNode) Execute(ctx context.Context, input *runtime.ExecutionInput) (*runtime.ExecutionOutput, error) {
	select {
	case <-time.After(s.delay):
		return runtime.NewOutput(input.Main()), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
func (s *slowNode) Validate(config map[string]interface{}) error { return nil }
func (s *slowNode) GetType() string                              { return "slowTestNode" }
func (s *slowNode) GetMetadata() runtime.NodeMetadata {
	return runtime.NodeMetadata{Type: "slowTestNode", Name: "Slow"}
}

// Cancelling a running execution marks its non-terminal node CANCELLED
// and the overall result status CANCELLED.
func TestScheduler_CancelExecution(t *testing.T) {
	reg := runtime.NewRegistry()
	require.NoError(t, reg.Register(nodes.NewManualTriggerNode()))
	require.NoError(t, reg.Register(&slowNode{delay: 10 * time.Second}))

	sched := NewScheduler(
		reg, noCredsResolver{}, expression.NewParser(),
		NewTracker(nil, time.Minute), NewEventBus(), NewWorkerPool(8), NewPersistence(newFakeRepo()),
	)

	wf, err := workflowmodel.NewWorkflow("owner-1", "cancel", "")
	require.NoError(t, err)
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "trigger", Type: "manualTrigger", ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "slow", Type: "slowTestNode", ExecutionCapability: workflowmodel.ExecutionCapabilityAction}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c1", SourceNodeID: "trigger", TargetNodeID: "slow"}))

	settings := wf.Settings()
	settings.GracePeriodMs = 50
	require.NoError(t, wf.UpdateSettings(settings))

	done := make(chan *Result, 1)
	go func() {
		r, err := sched.ExecuteWorkflow(context.Background(), wf, "trigger", execmodel.ExecutionModeWorkflow, map[string]interface{}{})
		require.NoError(t, err)
		done <- r
	}()

	require.Eventually(t, func() bool {
		sched.mu.Lock()
		defer sched.mu.Unlock()
		return len(sched.runs) == 1
	}, time.Second, 5*time.Millisecond)

	sched.mu.Lock()
	var execID string
	for id := range sched.runs {
		execID = id
	}
	sched.mu.Unlock()
	require.True(t, sched.CancelExecution(execID))

	select {
	case r := <-done:
		assert.Equal(t, execmodel.ExecutionStatusCancelled, r.Status)
	case <-time.After(3 * time.Second):
		t.Fatal("cancelled execution never finished")
	}
}
