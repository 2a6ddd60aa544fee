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

// WorkflowStore persists Workflow, Step, and Edge records. DeleteWorkflow
// cascades to steps, edges, and runs (with their step executions);
// UpdateWorkflow's graph-replace path replaces steps and edges.
type WorkflowStore interface {
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]*Workflow, error)
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	// UpdateWorkflow updates workflow fields. If steps and/or edges are
	// non-nil, the existing graph is fully replaced: edges are deleted
	// before steps, then the new steps and edges are inserted, all
	// atomically with the field update.
	UpdateWorkflow(ctx context.Context, wf *Workflow, steps []*Step, edges []*Edge) error
	DeleteWorkflow(ctx context.Context, id string) error

	GetSteps(ctx context.Context, workflowID string) ([]*Step, error)
	GetEdges(ctx context.Context, workflowID string) ([]*Edge, error)
}

// ExecutionStore persists WorkflowExecution and StepExecution records.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec *WorkflowExecution) error
	UpdateExecution(ctx context.Context, exec *WorkflowExecution) error
	GetExecution(ctx context.Context, id string) (*WorkflowExecution, error)
	// ListExecutions returns executions for workflowID, newest first.
	ListExecutions(ctx context.Context, workflowID string) ([]*WorkflowExecution, error)

	CreateStepExecution(ctx context.Context, se *StepExecution) error
	UpdateStepExecution(ctx context.Context, se *StepExecution) error
}

// CredentialStore persists provider credentials.
type CredentialStore interface {
	ListCredentials(ctx context.Context) ([]*Credential, error)
	GetCredentialByType(ctx context.Context, credType string) (*Credential, error)
	CreateCredential(ctx context.Context, cred *Credential) error
	DeleteCredential(ctx context.Context, id string) error
}

// Store composes the capability interfaces the engine depends on, plus
// lifecycle teardown. Implementations must be safe for concurrent
// callers from different runs.
type Store interface {
	WorkflowStore
	ExecutionStore
	CredentialStore

	Close() error
}
