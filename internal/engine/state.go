package engine

import (
	"time"

	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
)

// NodeStatus is the in-memory lifecycle of one node within one execution.
// Distinct from execution/domain/model.NodeExecutionStatus, which is the
// narrower, persisted, terminal-only status recorded on a NodeExecution
// row.
type NodeStatus string

const (
	NodeIdle      NodeStatus = "IDLE"
	NodeQueued    NodeStatus = "QUEUED"
	NodeRunning   NodeStatus = "RUNNING"
	NodeCompleted NodeStatus = "COMPLETED"
	NodeFailed    NodeStatus = "FAILED"
	NodeCancelled NodeStatus = "CANCELLED"
	NodeSkipped   NodeStatus = "SKIPPED"
)

// Terminal reports whether status will never change again for this node
// within this execution.
func (s NodeStatus) Terminal() bool {
	switch s {
	case NodeCompleted, NodeFailed, NodeCancelled, NodeSkipped:
		return true
	}
	return false
}

// NodeState is the Progress Tracker's per-node, per-execution record.
type NodeState struct {
	NodeID    string
	Status    NodeStatus
	StartTime *time.Time
	EndTime   *time.Time
	Output    map[string][]runtime.Item
	Error     *runtime.NodeError
}

// ExecutionStatusView is what GetExecutionStatus returns: a snapshot of
// every affected node's state plus the execution-level status, safe to
// hand to a caller without leaking the tracker's internal locks.
type ExecutionStatusView struct {
	ExecutionID   string
	TriggerNodeID string
	Nodes         map[string]NodeState
	Done          bool
}
