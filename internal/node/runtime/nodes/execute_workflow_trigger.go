// Package nodes provides built-in node implementations
package nodes

import (
	"context"

	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
)

// ExecuteWorkflowTriggerNode marks the entry point of a workflow meant to
// be called from another workflow's "Execute Workflow" node rather than
// from an external event. It surfaces whatever input the calling
// workflow passed down as its output.
type ExecuteWorkflowTriggerNode struct{}

// NewExecuteWorkflowTriggerNode creates a new execute-workflow trigger node.
func NewExecuteWorkflowTriggerNode() *ExecuteWorkflowTriggerNode {
	return &ExecuteWorkflowTriggerNode{}
}

func (n *ExecuteWorkflowTriggerNode) GetType() string {
	return "executeWorkflowTrigger"
}

func (n *ExecuteWorkflowTriggerNode) GetTriggerType() runtime.TriggerType {
	return runtime.TriggerTypeWorkflowCall
}

func (n *ExecuteWorkflowTriggerNode) GetMetadata() runtime.NodeMetadata {
	return runtime.NodeMetadata{
		Type:        "executeWorkflowTrigger",
		Name:        "Execute Workflow Trigger",
		Description: "Starts the workflow when called from another workflow",
		Category:    "trigger",
		Icon:        "git-branch",
		Color:       "#909399",
		Version:     "1.0.0",
		Outputs: []runtime.PortDefinition{
			{Name: "main", Type: "any", Description: "Input passed by the calling workflow"},
		},
		Properties: []runtime.PropertyDefinition{
			{Name: "inputSchema", Type: "json", Description: "Documents the shape callers should pass"},
		},
		IsTrigger: true,
	}
}

func (n *ExecuteWorkflowTriggerNode) Validate(config map[string]interface{}) error {
	return nil
}

func (n *ExecuteWorkflowTriggerNode) Execute(ctx context.Context, input *runtime.ExecutionInput) (*runtime.ExecutionOutput, error) {
	return runtime.NewOutput(input.Main()), nil
}

// Start/Stop satisfy TriggerExecutor; this trigger has no external
// listener to set up — the Trigger Dispatcher invokes the workflow
// directly via internal/trigger/subworkflow.go when an Execute Workflow
// node calls it.
func (n *ExecuteWorkflowTriggerNode) Start(ctx context.Context, config map[string]interface{}, callback runtime.TriggerCallback) error {
	return nil
}

func (n *ExecuteWorkflowTriggerNode) Stop(ctx context.Context) error {
	return nil
}

func init() {
	runtime.Register(NewExecuteWorkflowTriggerNode())
}
