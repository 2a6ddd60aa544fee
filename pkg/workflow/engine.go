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
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	flowerrors "github.com/tombee/flowengine/pkg/errors"
	"github.com/tombee/flowengine/pkg/llm"
	"github.com/tombee/flowengine/pkg/workflow/expression"
)

// DefaultRunTimeout bounds a run's total wall-clock time when Engine's
// caller does not override RunTimeout.
const DefaultRunTimeout = 5 * time.Minute

// Engine drives workflow runs from a TriggerEnvelope to a terminal
// WorkflowExecution. Each run executes on its own goroutine over its
// own outputs map and call path; no process-global mutable state is
// shared between runs. Store is the only synchronization point.
type Engine struct {
	Store    Store
	Resolver *TemplateResolver
	Sandbox  *expression.Evaluator
	LLM      llm.Provider

	// RunTimeout bounds a run's total wall-clock time via
	// context.WithTimeout. Zero disables the bound.
	RunTimeout time.Duration

	asyncSem *semaphore.Weighted
}

// NewEngine wires the four components every run needs.
func NewEngine(store Store, provider llm.Provider) *Engine {
	return &Engine{
		Store:      store,
		Resolver:   NewTemplateResolver(),
		Sandbox:    expression.New(),
		LLM:        provider,
		RunTimeout: DefaultRunTimeout,
	}
}

// SetMaxConcurrentAsyncRuns bounds how many runs admitted through
// StartRunAsync may execute at once. n <= 0 leaves async runs
// unbounded.
func (e *Engine) SetMaxConcurrentAsyncRuns(n int) {
	if n <= 0 {
		e.asyncSem = nil
		return
	}
	e.asyncSem = semaphore.NewWeighted(int64(n))
}

// StartRun loads the workflow's graph, creates a WorkflowExecution, and
// drives it to completion via a FlowController before returning. Used
// by the manual trigger path, which the HTTP API answers synchronously.
func (e *Engine) StartRun(ctx context.Context, workflowID string, envelope TriggerEnvelope) (*WorkflowExecution, error) {
	exec, steps, edges, startIDs, err := e.admitRun(ctx, workflowID, envelope)
	if err != nil {
		return nil, err
	}
	return e.drive(ctx, exec, steps, edges, startIDs)
}

// StartRunAsync admits a run synchronously, so the caller can hand the
// execution id back immediately, then drives it to completion on its
// own goroutine detached from the admitting request's context. Used by
// the webhook, app-event, and workflow-chain trigger paths, which the
// HTTP API answers with 202 before the run reaches a terminal status.
func (e *Engine) StartRunAsync(ctx context.Context, workflowID string, envelope TriggerEnvelope) (*WorkflowExecution, error) {
	exec, steps, edges, startIDs, err := e.admitRun(ctx, workflowID, envelope)
	if err != nil {
		return nil, err
	}
	go func() {
		bg := context.Background()
		if e.asyncSem != nil {
			if err := e.asyncSem.Acquire(bg, 1); err != nil {
				return
			}
			defer e.asyncSem.Release(1)
		}
		_, _ = e.drive(bg, exec, steps, edges, startIDs)
	}()
	return exec, nil
}

// admitRun loads the workflow's graph, creates the WorkflowExecution row
// in RunStatusRunning, and seeds its outputs map from envelope. It does
// not drive the graph.
func (e *Engine) admitRun(ctx context.Context, workflowID string, envelope TriggerEnvelope) (*WorkflowExecution, []*Step, []*Edge, []string, error) {
	wf, err := e.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, nil, nil, nil, flowerrors.WrapWorkflowError(flowerrors.KindWorkflowNotFound, workflowID, err)
	}

	steps, err := e.Store.GetSteps(ctx, workflowID)
	if err != nil {
		return nil, nil, nil, nil, flowerrors.WrapWorkflowError(flowerrors.KindWorkflowNotFound, "failed to load steps", err)
	}
	edges, err := e.Store.GetEdges(ctx, workflowID)
	if err != nil {
		return nil, nil, nil, nil, flowerrors.WrapWorkflowError(flowerrors.KindWorkflowNotFound, "failed to load edges", err)
	}

	exec := &WorkflowExecution{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		Status:     RunStatusRunning,
		StartTime:  time.Now(),
		Outputs:    map[string]interface{}{},
	}
	if err := e.Store.CreateExecution(ctx, exec); err != nil {
		return nil, nil, nil, nil, err
	}

	incoming := map[string]bool{}
	for _, edge := range edges {
		incoming[edge.TargetID] = true
	}
	var startIDs []string
	for _, s := range steps {
		if !incoming[s.ID] {
			startIDs = append(startIDs, s.ID)
		}
	}

	if envelope.Outputs != nil {
		for k, v := range envelope.Outputs {
			exec.Outputs[k] = v
		}
	}
	for _, s := range steps {
		if s.Kind.IsTrigger() && envelope.matchesTriggerStep(s) {
			seeded := map[string]interface{}{"triggered": true, "triggerType": string(envelope.Type)}
			for k, v := range envelope.Fields() {
				seeded[k] = v
			}
			exec.Outputs[s.ID] = seeded
		}
	}

	return exec, steps, edges, startIDs, nil
}

// drive runs the FlowController to a terminal status and persists the
// result. ctx is wrapped with RunTimeout, if set, so a run that outlives
// its deadline fails with KindDeadlineExceeded rather than running
// forever.
func (e *Engine) drive(ctx context.Context, exec *WorkflowExecution, steps []*Step, edges []*Edge, startIDs []string) (*WorkflowExecution, error) {
	if e.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.RunTimeout)
		defer cancel()
	}

	fc := NewFlowController(e.Store, exec.ID, steps, edges, e.Resolver, e.Sandbox, e.LLM, exec.Outputs)
	runErr := fc.Run(ctx, startIDs)

	end := time.Now()
	exec.EndTime = &end
	if runErr != nil {
		exec.Status = RunStatusFailed
		exec.Error = runErr.Error()
	} else {
		exec.Status = RunStatusCompleted
	}
	runDuration.Observe(end.Sub(exec.StartTime).Seconds())
	runsTotal.WithLabelValues(string(exec.Status)).Inc()

	if err := e.Store.UpdateExecution(context.Background(), exec); err != nil {
		return exec, err
	}

	return exec, runErr
}
