package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StartExecution seeds the trigger node QUEUED and everything else IDLE.
func TestTracker_StartExecutionInitialStates(t *testing.T) {
	tr := NewTracker(nil, time.Minute)
	tr.StartExecution("exec-1", "trigger", []string{"trigger", "a", "b"})

	view, ok := tr.GetExecutionStatus(context.Background(), "exec-1")
	require.True(t, ok)
	assert.Equal(t, NodeQueued, view.Nodes["trigger"].Status)
	assert.Equal(t, NodeIdle, view.Nodes["a"].Status)
	assert.Equal(t, NodeIdle, view.Nodes["b"].Status)
	assert.False(t, view.Done)
}

// Two concurrent executions of the same workflow must never let one
// observe the other's node state, even when they share node ids.
func TestTracker_ExecutionIsolation(t *testing.T) {
	tr := NewTracker(nil, time.Minute)
	tr.StartExecution("exec-A", "trigger", []string{"trigger", "n1"})
	tr.StartExecution("exec-B", "trigger", []string{"trigger", "n1"})

	tr.SetRunning("exec-A", "n1", time.Now())

	assert.True(t, tr.IsNodeRunning("exec-A", "n1"))
	assert.False(t, tr.IsNodeRunning("exec-B", "n1"), "execution B must not see execution A's running node")

	viewB, ok := tr.GetExecutionStatus(context.Background(), "exec-B")
	require.True(t, ok)
	assert.Equal(t, NodeIdle, viewB.Nodes["n1"].Status)
}

// IsNodeRunning is false for a node id outside this execution's affected
// set entirely, even if that id happens to be RUNNING elsewhere.
func TestTracker_IsNodeRunningOutsideAffectedSet(t *testing.T) {
	tr := NewTracker(nil, time.Minute)
	tr.StartExecution("exec-1", "trigger", []string{"trigger"})
	assert.False(t, tr.IsNodeRunning("exec-1", "not-in-this-run"))
}

// GetExecutionStatus returns ok=false for an unknown execution id.
func TestTracker_GetExecutionStatusUnknown(t *testing.T) {
	tr := NewTracker(nil, time.Minute)
	_, ok := tr.GetExecutionStatus(context.Background(), "never-started")
	assert.False(t, ok)
}

// MarkDone schedules eviction after the retention window; ClearExecution
// before that window is a no-op, and the state is gone after it elapses.
func TestTracker_RetentionEviction(t *testing.T) {
	tr := NewTracker(nil,20*time.Millisecond)
	tr.StartExecution("exec-1", "trigger", []string{"trigger"})

	tr.ClearExecution("exec-1")
	_, ok := tr.GetExecutionStatus(context.Background(), "exec-1")
	assert.True(t, ok, "clearing a still-running execution must be a no-op")

	tr.MarkDone("exec-1")
	require.Eventually(t, func() bool {
		_, ok := tr.GetExecutionStatus(context.Background(), "exec-1")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

// SetCompleted/SetFailed transitions carry through to the status view.
func TestTracker_CompletedAndFailedTransitions(t *testing.T) {
	tr := NewTracker(nil, time.Minute)
	tr.StartExecution("exec-1", "trigger", []string{"trigger", "a", "b"})

	tr.SetCompleted("exec-1", "a", nil, time.Now())
	tr.SetFailed("exec-1", "b", nil, time.Now())

	view, ok := tr.GetExecutionStatus(context.Background(), "exec-1")
	require.True(t, ok)
	assert.Equal(t, NodeCompleted, view.Nodes["a"].Status)
	assert.Equal(t, NodeFailed, view.Nodes["b"].Status)
}
