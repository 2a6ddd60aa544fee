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

package workflow_test

import (
	"context"
	"testing"

	"github.com/tombee/flowengine/pkg/llm"
	"github.com/tombee/flowengine/pkg/workflow"
	"github.com/tombee/flowengine/pkg/workflow/memstore"
)

func TestEngine_SwitchDefaultBranch(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine := workflow.NewEngine(store, llm.NewMockProvider())

	wf := &workflow.Workflow{ID: "wf1", Name: "switching"}
	if err := store.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	steps := []*workflow.Step{
		{ID: "trigger", WorkflowID: "wf1", Kind: workflow.KindManualTrigger, Order: 0},
		{ID: "sw", WorkflowID: "wf1", Kind: workflow.KindSwitch, Order: 1,
			Config: map[string]interface{}{"expression": `"unmatched"`}},
		{ID: "caseA", WorkflowID: "wf1", Kind: workflow.KindCode, Order: 2, Config: map[string]interface{}{"code": "1"}},
		{ID: "fallback", WorkflowID: "wf1", Kind: workflow.KindCode, Order: 3, Config: map[string]interface{}{"code": "2"}},
	}
	edges := []*workflow.Edge{
		{ID: "e1", WorkflowID: "wf1", SourceID: "trigger", TargetID: "sw"},
		{ID: "e2", WorkflowID: "wf1", SourceID: "sw", TargetID: "caseA", Label: "a"},
		{ID: "e3", WorkflowID: "wf1", SourceID: "sw", TargetID: "fallback", Label: "default"},
	}
	if err := store.UpdateWorkflow(ctx, wf, steps, edges); err != nil {
		t.Fatalf("UpdateWorkflow: %v", err)
	}

	exec, err := engine.StartRun(ctx, "wf1", workflow.TriggerEnvelope{Type: workflow.TriggerManual})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if _, ok := exec.Outputs["caseA"]; ok {
		t.Error("caseA should not have run")
	}
	if _, ok := exec.Outputs["fallback"]; !ok {
		t.Error("fallback (default) branch should have run")
	}
}

func TestEngine_FilterAndMerge(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	engine := workflow.NewEngine(store, llm.NewMockProvider())

	wf := &workflow.Workflow{ID: "wf1", Name: "filtering"}
	if err := store.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	steps := []*workflow.Step{
		{ID: "trigger", WorkflowID: "wf1", Kind: workflow.KindManualTrigger, Order: 0},
		{ID: "flt", WorkflowID: "wf1", Kind: workflow.KindFilter, Order: 1,
			Config: map[string]interface{}{"input": "_all.numbers", "predicate": "item > 1"}},
		{ID: "mrg", WorkflowID: "wf1", Kind: workflow.KindMerge, Order: 2,
			Config: map[string]interface{}{"inputs": []interface{}{"flt"}}},
	}
	edges := []*workflow.Edge{
		{ID: "e1", WorkflowID: "wf1", SourceID: "trigger", TargetID: "flt"},
		{ID: "e2", WorkflowID: "wf1", SourceID: "flt", TargetID: "mrg"},
	}
	if err := store.UpdateWorkflow(ctx, wf, steps, edges); err != nil {
		t.Fatalf("UpdateWorkflow: %v", err)
	}

	envelope := workflow.TriggerEnvelope{
		Type:    workflow.TriggerManual,
		Outputs: map[string]interface{}{"numbers": []interface{}{1, 2, 3}},
	}
	exec, err := engine.StartRun(ctx, "wf1", envelope)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	filtered, ok := exec.Outputs["flt"].([]interface{})
	if !ok || len(filtered) != 2 {
		t.Fatalf("filter output = %+v, want [2, 3]", exec.Outputs["flt"])
	}

	merged, ok := exec.Outputs["mrg"].(map[string]interface{})
	if !ok {
		t.Fatalf("merge output is not a map: %T", exec.Outputs["mrg"])
	}
	if _, ok := merged["flt"]; !ok {
		t.Errorf("merge should shallow-merge flt's value under key flt: %+v", merged)
	}
}
