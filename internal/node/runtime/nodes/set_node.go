// Package nodes provides built-in node implementations
package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
	"github.com/linkflow-ai/linkflow-ai/pkg/expression"
)

// SetNode implements data transformation/setting
type SetNode struct {
	parser *expression.Parser
}

// NewSetNode creates a new Set node
func NewSetNode() *SetNode {
	return &SetNode{
		parser: expression.NewParser(),
	}
}

// GetType returns the node type
func (n *SetNode) GetType() string {
	return "set"
}

// GetMetadata returns node metadata
func (n *SetNode) GetMetadata() runtime.NodeMetadata {
	return runtime.NodeMetadata{
		Type:        "set",
		Name:        "Set",
		Description: "Set, modify, or create data fields",
		Category:    "core",
		Icon:        "edit",
		Color:       "#2196F3",
		Version:     "1.0.0",
		Inputs: []runtime.PortDefinition{
			{Name: "main", Type: "any", Required: true, Description: "Input data"},
		},
		Outputs: []runtime.PortDefinition{
			{Name: "main", Type: "any", Description: "Modified data"},
		},
		Properties: []runtime.PropertyDefinition{
			{Name: "mode", Type: "options", Default: "manual", Description: "How to set values", Options: []runtime.PropertyOption{
				{Label: "Manual Mapping", Value: "manual"},
				{Label: "JSON", Value: "json"},
				{Label: "Expression", Value: "expression"},
			}},
			{Name: "values", Type: "json", Description: "Values to set (for manual mode)", Default: []interface{}{
				map[string]interface{}{
					"name":  "",
					"value": "",
					"type":  "string",
				},
			}},
			{Name: "jsonData", Type: "json", Description: "JSON data (for JSON mode)"},
			{Name: "expression", Type: "string", Description: "Expression producing the whole output item (for expression mode)"},
			{Name: "keepOnlySet", Type: "bool", Default: false, Description: "Keep only the fields being set"},
			{Name: "dotNotation", Type: "bool", Default: true, Description: "Support dot notation for nested fields"},
		},
		IsTrigger: false,
	}
}

// Validate validates the node configuration
func (n *SetNode) Validate(config map[string]interface{}) error {
	return nil
}

// Execute applies the configured transform to every input item
// independently, so the node's cardinality never changes item count.
func (n *SetNode) Execute(ctx context.Context, input *runtime.ExecutionInput) (*runtime.ExecutionOutput, error) {
	mode := getStringConfig(input.Parameters, "mode", "manual")
	keepOnlySet := getBoolConfig(input.Parameters, "keepOnlySet", false)
	useDotNotation := getBoolConfig(input.Parameters, "dotNotation", true)

	items := input.Main()
	if len(items) == 0 {
		items = []runtime.Item{{JSON: map[string]interface{}{}}}
	}

	exprCtx := expression.NewContext()
	exprCtx.SetInputAll(items)
	if input.Context != nil {
		exprCtx.Execution.ID = input.Context.ExecutionID
		exprCtx.Execution.Mode = input.Context.Mode
		exprCtx.Env = input.Context.Env
		exprCtx.Variables = input.Context.Variables
	}

	out := make([]runtime.Item, 0, len(items))
	for _, item := range items {
		exprCtx.SetInput(item.JSON)

		var result map[string]interface{}
		if keepOnlySet {
			result = make(map[string]interface{})
		} else {
			result = copyMap(item.JSON)
		}

		var err error
		switch mode {
		case "manual":
			n.applyManualValues(input.Parameters, result, exprCtx, useDotNotation)
		case "json":
			result, err = n.applyJSON(input.Parameters, result, exprCtx)
		case "expression":
			result = n.applyExpression(input.Parameters, result, exprCtx)
		}
		if err != nil {
			return nil, err
		}

		out = append(out, runtime.Item{JSON: result, Binary: item.Binary})
	}

	return runtime.NewOutput(out), nil
}

func (n *SetNode) applyManualValues(params map[string]interface{}, result map[string]interface{}, exprCtx *expression.Context, useDotNotation bool) {
	values, _ := params["values"].([]interface{})
	for _, v := range values {
		valueMap, ok := v.(map[string]interface{})
		if !ok {
			continue
		}

		name := fmt.Sprintf("%v", valueMap["name"])
		value := valueMap["value"]
		valueType := getStringConfig(valueMap, "type", "string")

		if strVal, ok := value.(string); ok && strings.Contains(strVal, "{{") {
			if evaluated, err := n.parser.Evaluate(strVal, exprCtx); err == nil {
				value = evaluated
			}
		}

		value = convertType(value, valueType)

		if useDotNotation && strings.Contains(name, ".") {
			setNestedValue(result, name, value)
		} else {
			result[name] = value
		}
	}
}

func (n *SetNode) applyJSON(params map[string]interface{}, result map[string]interface{}, exprCtx *expression.Context) (map[string]interface{}, error) {
	jsonData := getStringConfig(params, "jsonData", "{}")

	if strings.Contains(jsonData, "{{") {
		if evaluated, err := n.parser.Evaluate(jsonData, exprCtx); err == nil {
			if s, ok := evaluated.(string); ok {
				jsonData = s
			}
		}
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(jsonData), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	for k, v := range parsed {
		result[k] = v
	}
	return result, nil
}

func (n *SetNode) applyExpression(params map[string]interface{}, result map[string]interface{}, exprCtx *expression.Context) map[string]interface{} {
	expr := getStringConfig(params, "expression", "")
	if expr == "" {
		return result
	}
	evaluated, err := n.parser.Evaluate(expr, exprCtx)
	if err != nil {
		return result
	}
	if m, ok := evaluated.(map[string]interface{}); ok {
		return m
	}
	return result
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}

func setNestedValue(m map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := m

	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if _, exists := current[part]; !exists {
			current[part] = make(map[string]interface{})
		}
		if nested, ok := current[part].(map[string]interface{}); ok {
			current = nested
		} else {
			return
		}
	}

	current[parts[len(parts)-1]] = value
}

func convertType(value interface{}, targetType string) interface{} {
	switch targetType {
	case "string":
		return fmt.Sprintf("%v", value)
	case "number":
		return toNumber(value)
	case "boolean", "bool":
		return toBool(value)
	case "json":
		if s, ok := value.(string); ok {
			var parsed interface{}
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				return parsed
			}
		}
		return value
	default:
		return value
	}
}

func init() {
	runtime.Register(NewSetNode())
}
