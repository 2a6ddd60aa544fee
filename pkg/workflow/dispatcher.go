// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"context"
	"fmt"

	flowerrors "github.com/tombee/flowengine/pkg/errors"
	"github.com/tombee/flowengine/pkg/llm"
	"github.com/tombee/flowengine/pkg/workflow/expression"
)

// StepContext is the view a handler gets into the run it is executing
// in. Handlers must not touch Store directly; everything they need is
// exposed here.
type StepContext struct {
	// Inputs is the small mapping described in the handler catalog:
	// "_all" (the outputs snapshot), one entry per direct predecessor,
	// and "currentItem" inside loop bodies.
	Inputs map[string]interface{}

	// Outputs is a read-only view of the run's accumulated outputs.
	Outputs map[string]interface{}

	Resolver *TemplateResolver
	Sandbox  *expression.Evaluator
	LLM      llm.Provider

	// OutgoingEdges are this step's own outgoing edges, so branching and
	// looping handlers can select targets without touching Store.
	OutgoingEdges []*Edge

	// SubExecute recursively runs a successor step id in the current
	// scope, returning once that subtree has finished. Used by
	// condition/switch handlers to drive their own traversal.
	SubExecute func(ctx context.Context, stepID string) error

	// SubExecuteScoped runs a successor step id with outputs overlaid by
	// scope for the duration of that subtree, used by loop bodies so
	// currentItem shadows the parent scope without leaking new keys
	// back into it.
	SubExecuteScoped func(ctx context.Context, stepID string, scope map[string]interface{}) (interface{}, error)
}

// ExpressionContext builds the {inputs, context: {outputs}} binding map
// SandboxedExpr and TemplateResolver evaluate against.
func (sc *StepContext) ExpressionContext() map[string]interface{} {
	return expression.BuildContext(sc.Inputs, sc.Outputs)
}

// Handler executes a single step kind, returning the value to store as
// the step's output.
type Handler func(ctx context.Context, step *Step, sc *StepContext) (interface{}, error)

var registry = map[StepKind]Handler{}

func register(kind StepKind, h Handler) {
	registry[kind] = h
}

// Dispatch looks up and invokes the handler for step.Kind.
func Dispatch(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	h, ok := registry[step.Kind]
	if !ok {
		return nil, flowerrors.NewWorkflowError(flowerrors.KindTypeError,
			fmt.Sprintf("no handler registered for step kind %q", step.Kind)).WithStep(step.ID)
	}
	value, err := h(ctx, step, sc)
	if err != nil {
		var we *flowerrors.WorkflowError
		if flowerrors.As(err, &we) {
			return nil, we.WithStep(step.ID)
		}
		return nil, flowerrors.WrapWorkflowError(flowerrors.KindTypeError, "step failed", err).WithStep(step.ID)
	}
	return value, nil
}

// configString reads a string field from a step's config, defaulting to
// def when absent or not a string.
func configString(cfg map[string]interface{}, key, def string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func configInt(cfg map[string]interface{}, key string, def int) int {
	if v, ok := cfg[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

func configFloat(cfg map[string]interface{}, key string, def float64) float64 {
	if v, ok := cfg[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return def
}
