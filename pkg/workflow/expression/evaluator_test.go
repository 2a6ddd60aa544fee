package expression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/tombee/flowengine/pkg/errors"
)

func TestEvaluator_ArrayMembership(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{
		"inputs": map[string]interface{}{
			"personas": []interface{}{"security", "performance"},
			"tags":     []interface{}{"go", "cli", "workflow"},
		},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"in operator finds element", `"security" in inputs.personas`, true},
		{"in operator missing element", `"style" in inputs.personas`, false},
		{"has function finds element", `has(inputs.personas, "performance")`, true},
		{"has function missing", `has(inputs.personas, "style")`, false},
		{"includes alias", `includes(inputs.tags, "cli")`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_ContextOutputs(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{
		"inputs": map[string]interface{}{"threshold": 80},
		"context": map[string]interface{}{
			"outputs": map[string]interface{}{
				"fetch":   map[string]interface{}{"content": "some data", "status": "success"},
				"analyze": map[string]interface{}{"score": 95},
			},
		},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"output status check", `context.outputs.fetch.status == "success"`, true},
		{"output score comparison", `context.outputs.analyze.score > inputs.threshold`, true},
		{"output content not empty", `context.outputs.fetch.content != ""`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_EmptyExpression(t *testing.T) {
	e := New()
	result, err := e.Evaluate("", map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, result, "empty expression should return true")
}

func TestEvaluator_Caching(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{"inputs": map[string]interface{}{"x": true}}
	expr := `inputs.x == true`

	result1, err := e.Evaluate(expr, ctx)
	require.NoError(t, err)
	assert.True(t, result1)
	assert.Equal(t, 1, e.CacheSize())

	result2, err := e.Evaluate(expr, ctx)
	require.NoError(t, err)
	assert.True(t, result2)
	assert.Equal(t, 1, e.CacheSize())

	_, err = e.Evaluate(`inputs.x == false`, ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, e.CacheSize())

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}

func TestEvaluator_CompileError(t *testing.T) {
	e := New()
	_, err := e.Evaluate(`inputs.x ==`, map[string]interface{}{})
	require.Error(t, err)

	kind, ok := flowerrors.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, flowerrors.KindSandboxError, kind)
}

func TestEvaluator_NonBooleanCondition(t *testing.T) {
	e := New()
	_, err := e.EvaluateCondition(`"a string"`, map[string]interface{}{})
	require.Error(t, err)
}

func TestEvaluator_EvaluateValue(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{
		"inputs": map[string]interface{}{"name": "alice", "count": 3},
	}

	got, err := e.EvaluateValue(`inputs.name + "!"`, ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice!", got)

	got, err = e.EvaluateValue(`inputs.count * 2`, ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, got)
}

func TestEvaluator_EvaluateFilter(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{"inputs": map[string]interface{}{"min": 10}}

	ok, err := e.EvaluateFilter(`item > inputs.min`, 15, 0, []interface{}{15, 5}, ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvaluateFilter(`item > inputs.min`, 5, 1, []interface{}{15, 5}, ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.EvaluateFilter(`index == 0`, 15, 0, []interface{}{15, 5}, ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluator_DefaultTimeout(t *testing.T) {
	e := New()
	assert.Equal(t, defaultTimeout, e.timeout)
}

func TestTimeoutFromEnv(t *testing.T) {
	t.Setenv("SANDBOX_TIMEOUT_MS", "500")
	assert.Equal(t, 500*time.Millisecond, timeoutFromEnv())

	t.Setenv("SANDBOX_TIMEOUT_MS", "")
	assert.Equal(t, defaultTimeout, timeoutFromEnv())
}

func TestEvaluator_NilAndMissingValues(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{
		"inputs": map[string]interface{}{"present": "value", "nilval": nil},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"nil comparison", `inputs.nilval == nil`, true},
		{"present value not nil", `inputs.present != nil`, true},
		{"missing value is nil", `inputs.missing == nil`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expr, ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_LengthFunction(t *testing.T) {
	e := New()
	ctx := map[string]interface{}{
		"inputs": map[string]interface{}{
			"items": []interface{}{"a", "b", "c"},
			"empty": []interface{}{},
		},
	}

	got, err := e.Evaluate(`length(inputs.items) == 3`, ctx)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = e.Evaluate(`length(inputs.empty) == 0`, ctx)
	require.NoError(t, err)
	assert.True(t, got)
}
