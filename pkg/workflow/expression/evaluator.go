package expression

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	flowerrors "github.com/tombee/flowengine/pkg/errors"
)

const defaultTimeout = 2 * time.Second

// Evaluator compiles and runs expr-lang expressions against a run's
// bindings, under a wall-clock timeout. Compiled programs are cached by
// (mode, source text); expr-lang has no native evaluation timeout, so
// each run happens on its own goroutine racing a timer.
type Evaluator struct {
	cache   map[string]*vm.Program
	mu      sync.RWMutex
	timeout time.Duration
}

// New creates an Evaluator. The per-evaluation timeout defaults to 2s and
// is overridable via the SANDBOX_TIMEOUT_MS environment variable.
func New() *Evaluator {
	return &Evaluator{
		cache:   make(map[string]*vm.Program),
		timeout: timeoutFromEnv(),
	}
}

func timeoutFromEnv() time.Duration {
	if raw := os.Getenv("SANDBOX_TIMEOUT_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultTimeout
}

// Evaluate evaluates a boolean condition expression. An empty expression
// is vacuously true. Kept as the condition-mode entry point used by the
// condition step kind and branch predicates generally.
func (e *Evaluator) Evaluate(expression string, ctx map[string]interface{}) (bool, error) {
	return e.EvaluateCondition(expression, ctx)
}

// EvaluateCondition evaluates expression, which must return a boolean.
func (e *Evaluator) EvaluateCondition(expression string, ctx map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil
	}
	result, err := e.run("bool:"+expression, expression, ctx, true)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, flowerrors.NewWorkflowError(flowerrors.KindSandboxError,
			fmt.Sprintf("expression must return boolean, got %T (%v)", result, result))
	}
	return b, nil
}

// EvaluateValue evaluates expression and returns its result verbatim, for
// value expressions (merge input lists, ai_transform config) and the code
// step kind's single-expression body.
func (e *Evaluator) EvaluateValue(expression string, ctx map[string]interface{}) (interface{}, error) {
	return e.run("value:"+expression, expression, ctx, false)
}

// EvaluateFilter evaluates a 3-argument filter predicate over one array
// element: expression sees item, index, and array bound alongside inputs
// and context, and must return a boolean.
func (e *Evaluator) EvaluateFilter(expression string, item interface{}, index int, array interface{}, ctx map[string]interface{}) (bool, error) {
	filterCtx := make(map[string]interface{}, len(ctx)+3)
	for k, v := range ctx {
		filterCtx[k] = v
	}
	filterCtx["item"] = item
	filterCtx["index"] = index
	filterCtx["array"] = array

	result, err := e.run("bool:"+expression, expression, filterCtx, true)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, flowerrors.NewWorkflowError(flowerrors.KindSandboxError,
			fmt.Sprintf("filter predicate must return boolean, got %T (%v)", result, result))
	}
	return b, nil
}

// run compiles (or fetches from cache) expression under cacheKey and runs
// it against ctx, enforcing the evaluator's wall-clock timeout.
func (e *Evaluator) run(cacheKey, expression string, ctx map[string]interface{}, asBool bool) (interface{}, error) {
	program, err := e.compile(cacheKey, expression, asBool)
	if err != nil {
		return nil, flowerrors.WrapWorkflowError(flowerrors.KindSandboxError,
			fmt.Sprintf("failed to compile expression %q", expression), err)
	}

	evalCtx := make(map[string]interface{}, len(ctx)+3)
	for k, v := range ctx {
		evalCtx[k] = v
	}
	evalCtx["has"] = containsFunc
	evalCtx["includes"] = containsFunc
	evalCtx["length"] = lenFunc

	type runResult struct {
		val interface{}
		err error
	}
	done := make(chan runResult, 1)
	go func() {
		v, runErr := expr.Run(program, evalCtx)
		done <- runResult{v, runErr}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, flowerrors.WrapWorkflowError(flowerrors.KindSandboxError,
				fmt.Sprintf("expression %q failed", expression), r.err)
		}
		return r.val, nil
	case <-timer.C:
		return nil, flowerrors.NewWorkflowError(flowerrors.KindSandboxTimeout,
			fmt.Sprintf("expression %q exceeded %s", expression, e.timeout))
	}
}

func (e *Evaluator) compile(cacheKey, expression string, asBool bool) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[cacheKey]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	env := map[string]interface{}{
		"has":      containsFunc,
		"includes": containsFunc,
		"length":   lenFunc,
		"item":     nil,
		"index":    0,
		"array":    nil,
	}

	opts := []expr.Option{expr.Env(env), expr.AllowUndefinedVariables()}
	if asBool {
		opts = append(opts, expr.AsBool())
	}

	prog, err := expr.Compile(expression, opts...)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[cacheKey] = prog
	e.mu.Unlock()

	return prog, nil
}

// ClearCache clears the compiled-expression cache. Mainly useful for
// tests that reuse source text across differing timeouts.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]*vm.Program)
	e.mu.Unlock()
}

// CacheSize returns the number of cached compiled programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
