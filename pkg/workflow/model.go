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

// Package workflow implements the workflow execution engine: the data
// model, the step dispatcher and handler catalog, the flow controller
// that traverses a graph of steps and edges, and the trigger gateway
// that admits runs into it.
package workflow

import "time"

// StepKind is the closed set of step kinds the dispatcher knows how to
// handle. Values outside this set are rejected at workflow save time by
// the editor and at dispatch time by the engine.
type StepKind string

const (
	KindManualTrigger    StepKind = "manual_trigger"
	KindScheduleTrigger  StepKind = "schedule_trigger"
	KindWebhookTrigger   StepKind = "webhook_trigger"
	KindAppEventTrigger  StepKind = "app_event_trigger"
	KindWorkflowTrigger  StepKind = "workflow_trigger"

	KindBasicLLMChain        StepKind = "basic_llm_chain"
	KindAITransform          StepKind = "ai_transform"
	KindInformationExtractor StepKind = "information_extractor"
	KindQAChain              StepKind = "qa_chain"
	KindSentimentAnalysis    StepKind = "sentiment_analysis"
	KindSummarizationChain   StepKind = "summarization_chain"
	KindTextClassifier       StepKind = "text_classifier"

	KindCondition StepKind = "condition"
	KindSwitch    StepKind = "switch"
	KindLoop      StepKind = "loop"
	KindFilter    StepKind = "filter"
	KindMerge     StepKind = "merge"

	KindCode StepKind = "code"
)

// IsTrigger reports whether the kind is one of the five trigger kinds.
func (k StepKind) IsTrigger() bool {
	switch k {
	case KindManualTrigger, KindScheduleTrigger, KindWebhookTrigger, KindAppEventTrigger, KindWorkflowTrigger:
		return true
	default:
		return false
	}
}

// RunStatus is the lifecycle status of a WorkflowExecution.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// StepStatus is the lifecycle status of a StepExecution.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)

// Workflow is a persistent directed graph of steps and edges. It is
// purely declarative: the engine never mutates a Workflow, Step, or
// Edge record.
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Step is a node in a Workflow's graph.
type Step struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflowId"`
	Kind       StepKind               `json:"kind"`
	Label      string                 `json:"label"`
	Position   map[string]interface{} `json:"position"`
	Config     map[string]interface{} `json:"config"`
	Order      int                    `json:"order"`
}

// Edge is a directed connector between two steps, optionally carrying a
// branch label for condition/switch sources.
type Edge struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflowId"`
	SourceID   string `json:"sourceId"`
	TargetID   string `json:"targetId"`
	Label      string `json:"label,omitempty"`
}

// WorkflowExecution ("Run") is one execution of a Workflow from a
// trigger to a terminal status.
type WorkflowExecution struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflowId"`
	Status     RunStatus              `json:"status"`
	StartTime  time.Time              `json:"startTime"`
	EndTime    *time.Time             `json:"endTime,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Outputs    map[string]interface{} `json:"outputs"`
}

// StepExecution is one dispatch of one step within a run.
type StepExecution struct {
	ID                  string      `json:"id"`
	WorkflowExecutionID string      `json:"workflowExecutionId"`
	StepID              string      `json:"stepId"`
	Status              StepStatus  `json:"status"`
	StartTime           time.Time   `json:"startTime"`
	EndTime             *time.Time  `json:"endTime,omitempty"`
	Error               string      `json:"error,omitempty"`
	Input               interface{} `json:"input,omitempty"`
	Output              interface{} `json:"output,omitempty"`
}

// Credential is an opaque secret record scoped by provider type, the
// concrete shape behind the Store's ListCredentials/CreateCredential/
// DeleteCredential operations.
type Credential struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	Secret    string    `json:"secret,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Graph bundles a Workflow with its Steps and Edges, the shape
// returned by GET /api/workflows/{id}.
type Graph struct {
	Workflow *Workflow `json:"workflow"`
	Steps    []*Step   `json:"steps"`
	Edges    []*Edge   `json:"edges"`
}
