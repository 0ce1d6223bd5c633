package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// $node["name"] is the bracket form for referencing an upstream node's
// output by name, as opposed to a dotted-path form.
func TestParser_NodeBracketReference(t *testing.T) {
	p := NewParser()
	ctx := NewContext()
	ctx.SetNodeOutput("HTTP Request", map[string]interface{}{"statusCode": float64(200)})

	val, err := p.Evaluate(`{{$node["HTTP Request"].statusCode}}`, ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(200), val)
}

// A whole-string expression (the entire value is one {{ }} block)
// propagates its evaluation error instead of silently returning a
// placeholder, since there is no surrounding literal text to fall back to.
func TestParser_NodeBracketReferenceUnknownNode(t *testing.T) {
	p := NewParser()
	ctx := NewContext()

	_, err := p.Evaluate(`{{$node["missing"].field}}`, ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

// Mid-string, a failing reference is left as literal template text rather
// than aborting the whole string's evaluation.
func TestParser_NodeBracketReferenceUnknownNodeMidString(t *testing.T) {
	p := NewParser()
	ctx := NewContext()

	val, err := p.Evaluate(`status: {{$node["missing"].field}}`, ctx)
	require.NoError(t, err)
	assert.Contains(t, val, `$node["missing"].field`)
}

// $json reads the current item; $input.all() reads every item on the
// current port.
func TestParser_JSONAndInputAll(t *testing.T) {
	p := NewParser()
	ctx := NewContext()
	ctx.SetInput(map[string]interface{}{"name": "alice"})
	ctx.SetInputAll([]interface{}{
		map[string]interface{}{"name": "alice"},
		map[string]interface{}{"name": "bob"},
	})

	name, err := p.Evaluate("{{$json.name}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	all, err := p.Evaluate("{{$input.all()}}", ctx)
	require.NoError(t, err)
	items, ok := all.([]interface{})
	require.True(t, ok)
	assert.Len(t, items, 2)
}

// Non-string parameter values are left completely untouched by template
// resolution.
func TestParser_NonStringValuesUntouched(t *testing.T) {
	p := NewParser()
	ctx := NewContext()

	data := map[string]interface{}{
		"count":   42,
		"enabled": true,
		"nested":  map[string]interface{}{"x": 1.5},
	}
	result, err := p.EvaluateTemplate(data, ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, result["count"])
	assert.Equal(t, true, result["enabled"])
	assert.Equal(t, map[string]interface{}{"x": 1.5}, result["nested"])
}

// A plain string with no {{ }} template markers passes through unchanged.
func TestParser_LiteralStringUnchanged(t *testing.T) {
	p := NewParser()
	ctx := NewContext()

	val, err := p.Evaluate("just a literal value", ctx)
	require.NoError(t, err)
	assert.Equal(t, "just a literal value", val)
}

// Arithmetic/comparison expressions delegate to expr-lang once any
// $-references inside them are substituted with their resolved values.
func TestParser_ArithmeticViaExprLang(t *testing.T) {
	p := NewParser()
	ctx := NewContext()
	ctx.SetInput(map[string]interface{}{"amount": float64(150)})

	val, err := p.Evaluate("{{$json.amount > 100}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, true, val)
}

// $execution.id and $workflow.name expose the execution-scoped metadata
// helpers alongside $json/$node/$input.
func TestParser_ExecutionAndWorkflowContext(t *testing.T) {
	p := NewParser()
	ctx := NewContext()
	ctx.Execution.ID = "exec-123"
	ctx.Workflow.Name = "My Workflow"

	execID, err := p.Evaluate("{{$execution.id}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "exec-123", execID)

	wfName, err := p.Evaluate("{{$workflow.name}}", ctx)
	require.NoError(t, err)
	assert.Equal(t, "My Workflow", wfName)
}
