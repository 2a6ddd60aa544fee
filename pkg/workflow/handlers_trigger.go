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
	register(KindManualTrigger, handleTrigger)
	register(KindScheduleTrigger, handleTrigger)
	register(KindWebhookTrigger, handleTrigger)
	register(KindAppEventTrigger, handleTrigger)
	register(KindWorkflowTrigger, handleTrigger)
}

// handleTrigger is a pass-through: the Engine seeds outputs[step.id] at
// run start with {triggered: true, ...envelopeFields}. When the trigger
// step is dispatched (as a start step, or re-entered via a later edge)
// this handler returns that seeded value unchanged; a trigger step with
// no seeded output yields {triggered: true}.
func handleTrigger(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	if v, ok := sc.Outputs[step.ID]; ok {
		return v, nil
	}
	return map[string]interface{}{"triggered": true}, nil
}
