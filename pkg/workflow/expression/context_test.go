package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildContext(t *testing.T) {
	inputs := map[string]interface{}{"name": "test"}
	outputs := map[string]interface{}{
		"fetch": map[string]interface{}{"content": "data"},
	}

	ctx := BuildContext(inputs, outputs)

	gotInputs, ok := ctx["inputs"].(map[string]interface{})
	assert.True(t, ok, "inputs should be a map")
	assert.Equal(t, "test", gotInputs["name"])

	gotContext, ok := ctx["context"].(map[string]interface{})
	assert.True(t, ok, "context should be a map")

	gotOutputs, ok := gotContext["outputs"].(map[string]interface{})
	assert.True(t, ok, "context.outputs should be a map")

	fetch, ok := gotOutputs["fetch"].(map[string]interface{})
	assert.True(t, ok, "fetch should be a map")
	assert.Equal(t, "data", fetch["content"])
}

func TestBuildContext_NilValues(t *testing.T) {
	ctx := BuildContext(nil, nil)

	inputs, ok := ctx["inputs"].(map[string]interface{})
	assert.True(t, ok)
	assert.Empty(t, inputs)

	contextVal, ok := ctx["context"].(map[string]interface{})
	assert.True(t, ok)
	outputs, ok := contextVal["outputs"].(map[string]interface{})
	assert.True(t, ok)
	assert.Empty(t, outputs)
}
