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
	"strings"

	flowerrors "github.com/tombee/flowengine/pkg/errors"
)

func init() {
	register(KindCondition, handleCondition)
	register(KindSwitch, handleSwitch)
	register(KindLoop, handleLoop)
	register(KindFilter, handleFilter)
	register(KindMerge, handleMerge)
}

func handleCondition(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	expr := configString(step.Config, "condition", "")
	result, err := sc.Sandbox.EvaluateCondition(expr, sc.ExpressionContext())
	if err != nil {
		return nil, err
	}

	label := "false"
	if result {
		label = "true"
	}
	for _, e := range sc.OutgoingEdges {
		if e.Label == label {
			if err := sc.SubExecute(ctx, e.TargetID); err != nil {
				return nil, err
			}
		}
	}

	return map[string]interface{}{"condition": result, "result": result}, nil
}

func handleSwitch(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	expr := configString(step.Config, "expression", "")
	value, err := sc.Sandbox.EvaluateValue(expr, sc.ExpressionContext())
	if err != nil {
		return nil, err
	}

	target := stringifyValue(value)
	var matched *Edge
	var fallback *Edge
	for _, e := range sc.OutgoingEdges {
		if e.Label == target {
			matched = e
		}
		if e.Label == "default" {
			fallback = e
		}
	}
	if matched == nil {
		matched = fallback
	}
	if matched != nil {
		if err := sc.SubExecute(ctx, matched.TargetID); err != nil {
			return nil, err
		}
	}

	return map[string]interface{}{"switchValue": value}, nil
}

func handleLoop(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	inputPath := configString(step.Config, "input", "_all")
	raw, _ := resolvePath(inputPath, sc.Inputs)

	items, ok := raw.([]interface{})
	if !ok {
		return nil, flowerrors.NewWorkflowError(flowerrors.KindTypeError, "loop input must be an array")
	}

	outer := make([]interface{}, 0, len(items))
	for _, item := range items {
		scope := map[string]interface{}{"currentItem": item}
		inner := make([]interface{}, 0, len(sc.OutgoingEdges))
		for _, e := range sc.OutgoingEdges {
			value, err := sc.SubExecuteScoped(ctx, e.TargetID, scope)
			if err != nil {
				return nil, err
			}
			inner = append(inner, value)
		}
		outer = append(outer, inner)
	}

	return outer, nil
}

func handleFilter(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	inputPath := configString(step.Config, "input", "_all")
	raw, _ := resolvePath(inputPath, sc.Inputs)

	items, ok := raw.([]interface{})
	if !ok {
		return nil, flowerrors.NewWorkflowError(flowerrors.KindTypeError, "filter input must be an array")
	}

	predicate := configString(step.Config, "predicate", "")
	exprCtx := sc.ExpressionContext()

	filtered := make([]interface{}, 0, len(items))
	for i, item := range items {
		keep, err := sc.Sandbox.EvaluateFilter(predicate, item, i, items, exprCtx)
		if err != nil {
			return nil, err
		}
		if keep {
			filtered = append(filtered, item)
		}
	}

	return filtered, nil
}

func handleMerge(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	var paths []string
	if raw, ok := step.Config["inputs"].([]interface{}); ok {
		for _, p := range raw {
			if s, ok := p.(string); ok {
				paths = append(paths, s)
			}
		}
	}

	result := map[string]interface{}{}
	for _, pathExpr := range paths {
		value, ok := resolvePath(pathExpr, sc.Inputs)
		if !ok {
			continue
		}

		if strings.Contains(pathExpr, ".") {
			parts := splitPath(pathExpr)
			key := parts[len(parts)-1]
			result[key] = value
		} else if m, ok := value.(map[string]interface{}); ok {
			for k, v := range m {
				result[k] = v
			}
		} else {
			result[pathExpr] = value
		}
	}

	return result, nil
}
