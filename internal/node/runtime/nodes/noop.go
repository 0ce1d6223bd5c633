// Package nodes provides built-in node implementations
package nodes

import (
	"context"

	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
)

// NoOpNode passes its input through unchanged. Useful as a graph anchor
// point (merge target, visual grouping) that does no work of its own.
type NoOpNode struct{}

// NewNoOpNode creates a new no-op node.
func NewNoOpNode() *NoOpNode {
	return &NoOpNode{}
}

func (n *NoOpNode) GetType() string {
	return "noOp"
}

func (n *NoOpNode) GetMetadata() runtime.NodeMetadata {
	return runtime.NodeMetadata{
		Type:        "noOp",
		Name:        "No Operation",
		Description: "Passes input through unchanged",
		Category:    "core",
		Icon:        "minus",
		Color:       "#909399",
		Version:     "1.0.0",
		Inputs: []runtime.PortDefinition{
			{Name: "main", Type: "any", Required: false, Description: "Input data"},
		},
		Outputs: []runtime.PortDefinition{
			{Name: "main", Type: "any", Description: "Same data, unmodified"},
		},
		IsTrigger: false,
	}
}

func (n *NoOpNode) Validate(config map[string]interface{}) error {
	return nil
}

func (n *NoOpNode) Execute(ctx context.Context, input *runtime.ExecutionInput) (*runtime.ExecutionOutput, error) {
	return runtime.NewOutput(input.Main()), nil
}

func init() {
	runtime.Register(NewNoOpNode())
}
