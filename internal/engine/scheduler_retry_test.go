package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	execmodel "github.com/linkflow-ai/linkflow-ai/internal/execution/domain/model"
	workflowmodel "github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/model"
)

// A node with retryOnFail set is retried maxTries times before the
// scheduler gives up on it, waiting at least waitBetweenTries between
// attempts, wired through runNodeWithRetry.
func TestScheduler_RetryOnFailRetriesThenFails(t *testing.T) {
	sched, _ := newTestScheduler(t)
	wf, err := workflowmodel.NewWorkflow("owner-1", "retry", "")
	require.NoError(t, err)

	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "trigger", Type: "manualTrigger", ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{
		ID: "bad", Type: "set", ExecutionCapability: workflowmodel.ExecutionCapabilityAction,
		Parameters: map[string]interface{}{
			"mode":             "json",
			"jsonData":         "{not valid json",
			"retryOnFail":      true,
			"maxTries":         float64(3),
			"waitBetweenTries": float64(5),
		},
	}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c1", SourceNodeID: "trigger", TargetNodeID: "bad"}))

	start := time.Now()
	result, err := sched.ExecuteWorkflow(context.Background(), wf, "trigger", execmodel.ExecutionModeWorkflow, map[string]interface{}{})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, execmodel.ExecutionStatusError, result.Status)
	assert.Contains(t, result.FailedNodes, "bad")
	assert.GreaterOrEqual(t, elapsed, 10*time.Millisecond, "two inter-attempt waits of 5ms should elapse across 3 attempts")
}

// Without retryOnFail, a failing node fails on the first attempt with no
// inter-attempt delay.
func TestScheduler_NoRetryWithoutOptIn(t *testing.T) {
	sched, _ := newTestScheduler(t)
	wf, err := workflowmodel.NewWorkflow("owner-1", "noretry", "")
	require.NoError(t, err)

	require.NoError(t, wf.AddNode(workflowmodel.Node{ID: "trigger", Type: "manualTrigger", ExecutionCapability: workflowmodel.ExecutionCapabilityTrigger}))
	require.NoError(t, wf.AddNode(workflowmodel.Node{
		ID: "bad", Type: "set", ExecutionCapability: workflowmodel.ExecutionCapabilityAction,
		Parameters: map[string]interface{}{
			"mode":     "json",
			"jsonData": "{not valid json",
		},
	}))
	require.NoError(t, wf.AddConnection(workflowmodel.Connection{ID: "c1", SourceNodeID: "trigger", TargetNodeID: "bad"}))

	start := time.Now()
	result, err := sched.ExecuteWorkflow(context.Background(), wf, "trigger", execmodel.ExecutionModeWorkflow, map[string]interface{}{})
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, execmodel.ExecutionStatusError, result.Status)
	assert.Less(t, elapsed, 10*time.Millisecond)
}
