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

import "context"

func init() {
	register(KindCode, handleCode)
}

// handleCode evaluates config.code as a single sandboxed expression
// bound to inputs/context.outputs. It is never spliced into a
// general-purpose interpreter.
func handleCode(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	code := configString(step.Config, "code", "")
	return sc.Sandbox.EvaluateValue(code, sc.ExpressionContext())
}
