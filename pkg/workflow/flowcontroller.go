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
	"sort"
	"time"

	flowerrors "github.com/tombee/flowengine/pkg/errors"
	"github.com/tombee/flowengine/pkg/llm"
	"github.com/tombee/flowengine/pkg/workflow/expression"
)

// selfRoutingKinds are the step kinds whose handler drives its own
// successor traversal via StepContext.SubExecute/SubExecuteScoped.
// FlowController does not auto-walk their outgoing edges.
var selfRoutingKinds = map[StepKind]bool{
	KindCondition: true,
	KindSwitch:    true,
	KindLoop:      true,
}

// FlowController traverses one workflow execution's graph from a start
// set, dispatching each step at most once and enforcing cycle and
// branch-exclusivity rules.
type FlowController struct {
	store               Store
	workflowExecutionID string

	stepsByID     map[string]*Step
	outgoingByID  map[string][]*Edge
	incomingByID  map[string][]*Edge

	resolver *TemplateResolver
	sandbox  *expression.Evaluator
	provider llm.Provider

	outputs  map[string]interface{}
	visited  map[string]bool
	callPath []string
}

// NewFlowController builds a controller over a workflow's full step and
// edge set, seeded with the run's initial outputs map.
func NewFlowController(store Store, workflowExecutionID string, steps []*Step, edges []*Edge, resolver *TemplateResolver, sandbox *expression.Evaluator, provider llm.Provider, outputs map[string]interface{}) *FlowController {
	fc := &FlowController{
		store:                store,
		workflowExecutionID:  workflowExecutionID,
		stepsByID:            make(map[string]*Step, len(steps)),
		outgoingByID:         make(map[string][]*Edge),
		incomingByID:         make(map[string][]*Edge),
		resolver:             resolver,
		sandbox:              sandbox,
		provider:             provider,
		outputs:              outputs,
		visited:              make(map[string]bool),
	}
	for _, s := range steps {
		fc.stepsByID[s.ID] = s
	}
	for _, e := range edges {
		fc.outgoingByID[e.SourceID] = append(fc.outgoingByID[e.SourceID], e)
		fc.incomingByID[e.TargetID] = append(fc.incomingByID[e.TargetID], e)
	}
	return fc
}

// Run dispatches every step in startIDs, in Step.order then Step.id
// order, and whatever each reaches transitively through its outgoing
// edges.
func (fc *FlowController) Run(ctx context.Context, startIDs []string) error {
	sort.Slice(startIDs, func(i, j int) bool {
		si, sj := fc.stepsByID[startIDs[i]], fc.stepsByID[startIDs[j]]
		if si == nil || sj == nil {
			return startIDs[i] < startIDs[j]
		}
		if si.Order != sj.Order {
			return si.Order < sj.Order
		}
		return si.ID < sj.ID
	})

	for _, id := range startIDs {
		if err := fc.execute(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (fc *FlowController) execute(ctx context.Context, stepID string) error {
	for _, onPath := range fc.callPath {
		if onPath == stepID {
			path := append(append([]string{}, fc.callPath...), stepID)
			return flowerrors.NewWorkflowError(flowerrors.KindCycleDetected, pathString(path))
		}
	}
	if fc.visited[stepID] {
		return nil
	}

	step, ok := fc.stepsByID[stepID]
	if !ok {
		return flowerrors.NewWorkflowError(flowerrors.KindStepNotFound, stepID)
	}

	fc.callPath = append(fc.callPath, stepID)
	defer func() { fc.callPath = fc.callPath[:len(fc.callPath)-1] }()

	if err := ctxErr(ctx); err != nil {
		return err
	}

	value, err := fc.dispatch(ctx, step)
	fc.visited[stepID] = true
	if err != nil {
		return err
	}
	fc.outputs[stepID] = value

	if selfRoutingKinds[step.Kind] {
		return nil
	}

	targets := fc.outgoingByID[stepID]
	sort.Slice(targets, func(i, j int) bool {
		si, sj := fc.stepsByID[targets[i].TargetID], fc.stepsByID[targets[j].TargetID]
		if si == nil || sj == nil {
			return targets[i].TargetID < targets[j].TargetID
		}
		if si.Order != sj.Order {
			return si.Order < sj.Order
		}
		return si.ID < sj.ID
	})
	for _, e := range targets {
		if err := fc.execute(ctx, e.TargetID); err != nil {
			return err
		}
	}
	return nil
}

func (fc *FlowController) dispatch(ctx context.Context, step *Step) (value interface{}, err error) {
	se := &StepExecution{
		ID:                  stepExecutionID(fc.workflowExecutionID, step.ID),
		WorkflowExecutionID: fc.workflowExecutionID,
		StepID:              step.ID,
		Status:              StepStatusRunning,
		StartTime:           time.Now(),
	}
	if fc.store != nil {
		_ = fc.store.CreateStepExecution(ctx, se)
	}

	sc := &StepContext{
		Inputs:        fc.buildInputs(step),
		Outputs:       fc.outputs,
		Resolver:      fc.resolver,
		Sandbox:       fc.sandbox,
		LLM:           fc.provider,
		OutgoingEdges: fc.outgoingByID[step.ID],
		SubExecute:    fc.execute,
		SubExecuteScoped: fc.executeScoped,
	}
	se.Input = sc.Inputs

	value, err = Dispatch(ctx, step, sc)

	end := time.Now()
	se.EndTime = &end
	if err != nil {
		se.Status = StepStatusFailed
		se.Error = err.Error()
	} else {
		se.Status = StepStatusCompleted
		se.Output = value
	}
	stepDuration.WithLabelValues(string(step.Kind)).Observe(end.Sub(se.StartTime).Seconds())
	if fc.store != nil {
		_ = fc.store.UpdateStepExecution(ctx, se)
	}
	return value, err
}

// buildInputs assembles the "_all" + direct-predecessor mapping a
// handler sees as ctx.inputs, plus "currentItem" inside loop bodies.
func (fc *FlowController) buildInputs(step *Step) map[string]interface{} {
	inputs := map[string]interface{}{"_all": fc.outputs}
	for _, e := range fc.incomingByID[step.ID] {
		if v, ok := fc.outputs[e.SourceID]; ok {
			inputs[e.SourceID] = v
		}
	}
	if v, ok := fc.outputs["currentItem"]; ok {
		inputs["currentItem"] = v
	}
	return inputs
}

// executeScoped runs stepID's subtree in an isolated child controller
// whose outputs map is a shallow copy of the parent's, overlaid with
// scope. Mutations made while resolving that subtree never propagate
// back to the parent's outputs map; only stepID's own resulting value
// is returned.
func (fc *FlowController) executeScoped(ctx context.Context, stepID string, scope map[string]interface{}) (interface{}, error) {
	childOutputs := make(map[string]interface{}, len(fc.outputs)+len(scope))
	for k, v := range fc.outputs {
		childOutputs[k] = v
	}
	for k, v := range scope {
		childOutputs[k] = v
	}

	child := &FlowController{
		store:               fc.store,
		workflowExecutionID: fc.workflowExecutionID,
		stepsByID:           fc.stepsByID,
		outgoingByID:        fc.outgoingByID,
		incomingByID:        fc.incomingByID,
		resolver:            fc.resolver,
		sandbox:             fc.sandbox,
		provider:            fc.provider,
		outputs:             childOutputs,
		visited:             make(map[string]bool),
		// callPath carries forward so a cycle that closes through a loop
		// or branch body's scoped sub-execution is still caught as
		// CYCLE_DETECTED instead of recursing with a fresh, empty path.
		callPath: append([]string{}, fc.callPath...),
	}

	if err := child.execute(ctx, stepID); err != nil {
		return nil, err
	}
	return child.outputs[stepID], nil
}

// ctxErr maps ctx's cancellation cause to the Kind a failed step should
// carry, or nil if ctx is still live. Checked before each step dispatch
// and, via complete's call into it, before each LLM call.
func ctxErr(ctx context.Context) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return flowerrors.NewWorkflowError(flowerrors.KindDeadlineExceeded, "run deadline exceeded")
	default:
		return flowerrors.NewWorkflowError(flowerrors.KindCancelled, "run cancelled")
	}
}

func pathString(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}

func stepExecutionID(runID, stepID string) string {
	return fmt.Sprintf("%s/%s", runID, stepID)
}
