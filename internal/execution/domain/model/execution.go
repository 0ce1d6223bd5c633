// Package model holds the Execution aggregate: the durable record of one
// workflow run, and the NodeExecution rows recorded for each node that
// reached a terminal state during that run.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExecutionID is the opaque identifier of one workflow run.
type ExecutionID string

// NewExecutionID mints a fresh execution id.
func NewExecutionID() ExecutionID {
	return ExecutionID(uuid.New().String())
}

func (id ExecutionID) String() string { return string(id) }

// ExecutionStatus is the persisted, terminal-or-not status of an Execution row.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "PENDING"
	ExecutionStatusRunning   ExecutionStatus = "RUNNING"
	ExecutionStatusSuccess   ExecutionStatus = "SUCCESS"
	ExecutionStatusError     ExecutionStatus = "ERROR"
	ExecutionStatusCancelled ExecutionStatus = "CANCELLED"
)

// ExecutionMode distinguishes full-workflow runs from single-node runs.
// Both modes persist and report through the same shape.
type ExecutionMode string

const (
	ExecutionModeWorkflow ExecutionMode = "workflow"
	ExecutionModeSingle   ExecutionMode = "single"
)

// NodeExecutionStatus is the terminal status of one node's participation
// in one execution. Distinct from the in-memory NodeState status enum
// (engine.NodeStatus) and from ExecutionStatus: the source shared one
// enum across all three, which hid the difference between "this execution
// failed" and "this particular node inside it was skipped".
type NodeExecutionStatus string

const (
	NodeExecutionSuccess   NodeExecutionStatus = "SUCCESS"
	NodeExecutionError     NodeExecutionStatus = "ERROR"
	NodeExecutionCancelled NodeExecutionStatus = "CANCELLED"
	NodeExecutionSkipped   NodeExecutionStatus = "SKIPPED"
)

// NormalizedError is the persisted shape of any error value: Error
// instances, plain objects, and primitives are all normalized to this
// before being written to a NodeExecution or Execution row.
type NormalizedError struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// NormalizeError turns an arbitrary Go error into the persisted error
// shape. Circular references cannot occur in Go error chains the way they
// can in a duck-typed object graph, so there is nothing to strip here.
func NormalizeError(err error) *NormalizedError {
	if err == nil {
		return nil
	}
	return &NormalizedError{Message: err.Error()}
}

// ExecutionError is the aggregated error recorded on an Execution row when
// the run as a whole ends in ERROR.
type ExecutionError struct {
	Message       string   `json:"message"`
	FailedNodes   []string `json:"failedNodes,omitempty"`
	ExecutionPath []string `json:"executionPath,omitempty"`
}

// NodeExecution is the persisted record of one node's participation in one
// execution. Its id is content-addressable: "{executionId}_{nodeId}".
type NodeExecution struct {
	ID          string                 `json:"id"`
	ExecutionID ExecutionID            `json:"executionId"`
	NodeID      string                 `json:"nodeId"`
	Status      NodeExecutionStatus    `json:"status"`
	InputData   map[string]interface{} `json:"inputData,omitempty"`
	OutputData  map[string]interface{} `json:"outputData,omitempty"`
	Error       *NormalizedError       `json:"error,omitempty"`
	StartedAt   time.Time              `json:"startedAt"`
	FinishedAt  time.Time              `json:"finishedAt"`
}

// NodeExecutionID builds the stable, content-addressable id for a node
// execution row.
func NodeExecutionID(executionID ExecutionID, nodeID string) string {
	return fmt.Sprintf("%s_%s", executionID, nodeID)
}

// Execution is the aggregate root persisted per workflow run.
type Execution struct {
	id               ExecutionID
	workflowID       string
	triggerNodeID    string
	mode             ExecutionMode
	status           ExecutionStatus
	startedAt        time.Time
	finishedAt       *time.Time
	triggerData      map[string]interface{}
	workflowSnapshot map[string]interface{}
	error            *ExecutionError
	nodeExecutions   map[string]*NodeExecution
}

// NewExecution creates and starts a new Execution row with a freshly
// minted id; the engine begins every run with status RUNNING.
func NewExecution(
	workflowID string,
	triggerNodeID string,
	mode ExecutionMode,
	triggerData map[string]interface{},
	workflowSnapshot map[string]interface{},
) (*Execution, error) {
	return NewExecutionWithID(NewExecutionID(), workflowID, triggerNodeID, mode, triggerData, workflowSnapshot)
}

// NewExecutionWithID behaves like NewExecution but starts the row under
// a caller-supplied id instead of minting one, for callers that must
// hand the id to a client before the run itself has started (a webhook
// response returned before its triggered execution completes, say).
func NewExecutionWithID(
	id ExecutionID,
	workflowID string,
	triggerNodeID string,
	mode ExecutionMode,
	triggerData map[string]interface{},
	workflowSnapshot map[string]interface{},
) (*Execution, error) {
	if workflowID == "" {
		return nil, errors.New("workflow ID is required")
	}
	if id == "" {
		id = NewExecutionID()
	}

	return &Execution{
		id:               id,
		workflowID:       workflowID,
		triggerNodeID:    triggerNodeID,
		mode:             mode,
		status:           ExecutionStatusRunning,
		startedAt:        time.Now(),
		triggerData:      triggerData,
		workflowSnapshot: workflowSnapshot,
		nodeExecutions:   make(map[string]*NodeExecution),
	}, nil
}

// Getters.
func (e *Execution) ID() ExecutionID                           { return e.id }
func (e *Execution) WorkflowID() string                        { return e.workflowID }
func (e *Execution) TriggerNodeID() string                     { return e.triggerNodeID }
func (e *Execution) Mode() ExecutionMode                       { return e.mode }
func (e *Execution) Status() ExecutionStatus                   { return e.status }
func (e *Execution) StartedAt() time.Time                      { return e.startedAt }
func (e *Execution) FinishedAt() *time.Time                    { return e.finishedAt }
func (e *Execution) TriggerData() map[string]interface{}       { return e.triggerData }
func (e *Execution) WorkflowSnapshot() map[string]interface{}  { return e.workflowSnapshot }
func (e *Execution) Error() *ExecutionError                    { return e.error }
func (e *Execution) NodeExecutions() map[string]*NodeExecution { return e.nodeExecutions }

// Finish transitions the execution to a terminal status and records the
// aggregated error, if any. Called once, by the engine, when the run
// loop drains.
func (e *Execution) Finish(status ExecutionStatus, execErr *ExecutionError) error {
	if e.status != ExecutionStatusRunning {
		return fmt.Errorf("cannot finish execution in status %s", e.status)
	}
	if status == ExecutionStatusPending || status == ExecutionStatusRunning {
		return fmt.Errorf("finish requires a terminal status, got %s", status)
	}

	now := time.Now()
	e.status = status
	e.finishedAt = &now
	e.error = execErr
	return nil
}

// RecordNodeExecution inserts the one NodeExecution row for a node that
// just reached a terminal state. A node may only record once per
// execution.
func (e *Execution) RecordNodeExecution(ne *NodeExecution) error {
	if _, exists := e.nodeExecutions[ne.NodeID]; exists {
		return fmt.Errorf("node execution for node %s already recorded", ne.NodeID)
	}
	ne.ID = NodeExecutionID(e.id, ne.NodeID)
	ne.ExecutionID = e.id
	e.nodeExecutions[ne.NodeID] = ne
	return nil
}

// ReconstructExecution rebuilds an Execution from persisted rows without
// re-running its constructor invariants; used by the postgres repository.
func ReconstructExecution(
	id ExecutionID,
	workflowID string,
	triggerNodeID string,
	mode ExecutionMode,
	status ExecutionStatus,
	startedAt time.Time,
	finishedAt *time.Time,
	triggerData map[string]interface{},
	workflowSnapshot map[string]interface{},
	execErr *ExecutionError,
	nodeExecutions map[string]*NodeExecution,
) *Execution {
	if nodeExecutions == nil {
		nodeExecutions = make(map[string]*NodeExecution)
	}
	return &Execution{
		id:               id,
		workflowID:       workflowID,
		triggerNodeID:    triggerNodeID,
		mode:             mode,
		status:           status,
		startedAt:        startedAt,
		finishedAt:       finishedAt,
		triggerData:      triggerData,
		workflowSnapshot: workflowSnapshot,
		error:            execErr,
		nodeExecutions:   nodeExecutions,
	}
}
