// Package nodes provides built-in node implementations
package nodes

import (
	"context"
	"fmt"
	"sync"

	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
)

// SubWorkflowCaller starts a workflow-call trigger and blocks until the
// child execution reaches a terminal state. Implemented
// by *trigger.SubWorkflowRunner; declared here to avoid this package
// importing internal/trigger.
type SubWorkflowCaller interface {
	Run(ctx context.Context, parentExecutionID, childWorkflowID string, parentOutput map[string]interface{}) (SubWorkflowResult, error)
}

// SubWorkflowResult is the shape a SubWorkflowCaller returns; it mirrors
// facade.Response's fields the node needs to surface downstream.
type SubWorkflowResult struct {
	ExecutionID string
	Status      string
	HasFailures bool
}

var (
	subWorkflowMu     sync.RWMutex
	subWorkflowCaller SubWorkflowCaller
)

// SetSubWorkflowCaller installs the runner ExecuteWorkflowNode calls into.
// Wired once from cmd/server/main.go.
func SetSubWorkflowCaller(caller SubWorkflowCaller) {
	subWorkflowMu.Lock()
	defer subWorkflowMu.Unlock()
	subWorkflowCaller = caller
}

func getSubWorkflowCaller() SubWorkflowCaller {
	subWorkflowMu.RLock()
	defer subWorkflowMu.RUnlock()
	return subWorkflowCaller
}

// ExecuteWorkflowNode is the action-side counterpart of
// ExecuteWorkflowTriggerNode: it calls another workflow as a blocking
// sub-execution and surfaces the child's result.
type ExecuteWorkflowNode struct{}

// NewExecuteWorkflowNode creates a new Execute Workflow node.
func NewExecuteWorkflowNode() *ExecuteWorkflowNode {
	return &ExecuteWorkflowNode{}
}

func (n *ExecuteWorkflowNode) GetType() string {
	return "executeWorkflow"
}

func (n *ExecuteWorkflowNode) GetMetadata() runtime.NodeMetadata {
	return runtime.NodeMetadata{
		Type:        "executeWorkflow",
		Name:        "Execute Workflow",
		Description: "Calls another workflow and waits for its result",
		Category:    "flow",
		Icon:        "git-merge",
		Color:       "#909399",
		Version:     "1.0.0",
		Inputs: []runtime.PortDefinition{
			{Name: "main", Type: "any", Description: "Data passed to the called workflow"},
		},
		Outputs: []runtime.PortDefinition{
			{Name: "main", Type: "any", Description: "The called workflow's result"},
		},
		Properties: []runtime.PropertyDefinition{
			{Name: "workflowId", Type: "string", Required: true, Description: "The workflow to call"},
		},
	}
}

func (n *ExecuteWorkflowNode) Validate(config map[string]interface{}) error {
	if getStringConfig(config, "workflowId", "") == "" {
		return fmt.Errorf("workflowId is required")
	}
	return nil
}

func (n *ExecuteWorkflowNode) Execute(ctx context.Context, input *runtime.ExecutionInput) (*runtime.ExecutionOutput, error) {
	caller := getSubWorkflowCaller()
	if caller == nil {
		return nil, fmt.Errorf("sub-workflow execution is not configured")
	}

	childWorkflowID := getStringConfig(input.Parameters, "workflowId", "")
	if childWorkflowID == "" {
		return nil, fmt.Errorf("workflowId is required")
	}

	parentOutput := map[string]interface{}{}
	if items := input.Main(); len(items) > 0 {
		parentOutput = items[0].JSON
	}

	result, err := caller.Run(ctx, input.Context.ExecutionID, childWorkflowID, parentOutput)
	if err != nil {
		return nil, err
	}

	return runtime.NewOutput([]runtime.Item{{JSON: map[string]interface{}{
		"executionId": result.ExecutionID,
		"status":      result.Status,
		"hasFailures": result.HasFailures,
	}}}), nil
}

func init() {
	runtime.Register(NewExecuteWorkflowNode())
}
