// Package nodes provides built-in node implementations
package nodes

import (
	"context"
	"time"

	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
)

// ManualTriggerNode starts a workflow run when a user fires it directly,
// carrying whatever payload the caller supplied as input data.
type ManualTriggerNode struct{}

// NewManualTriggerNode creates a new manual trigger node.
func NewManualTriggerNode() *ManualTriggerNode {
	return &ManualTriggerNode{}
}

func (n *ManualTriggerNode) GetType() string {
	return "manualTrigger"
}

func (n *ManualTriggerNode) GetMetadata() runtime.NodeMetadata {
	return runtime.NodeMetadata{
		Type:        "manualTrigger",
		Name:        "Manual Trigger",
		Description: "Starts the workflow when triggered directly",
		Category:    "trigger",
		Icon:        "play",
		Color:       "#909399",
		Version:     "1.0.0",
		Outputs: []runtime.PortDefinition{
			{Name: "main", Type: "any", Description: "Trigger payload"},
		},
		IsTrigger: true,
	}
}

func (n *ManualTriggerNode) Validate(config map[string]interface{}) error {
	return nil
}

// Execute returns the trigger's sole input item (the triggerData the
// façade assembled for a manual run) unchanged on the "main" port.
func (n *ManualTriggerNode) Execute(ctx context.Context, input *runtime.ExecutionInput) (*runtime.ExecutionOutput, error) {
	items := input.Main()
	if items == nil {
		items = []runtime.Item{{JSON: map[string]interface{}{
			"triggerType": "manual",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		}}}
	}
	return runtime.NewOutput(items), nil
}

func init() {
	runtime.Register(NewManualTriggerNode())
}
