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

// Package memstore provides an in-memory workflow.Store implementation.
// It is the default store: data does not survive a process restart.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	flowerrors "github.com/tombee/flowengine/pkg/errors"
	"github.com/tombee/flowengine/pkg/workflow"
)

var _ workflow.Store = (*Store)(nil)

// Store is an in-memory, mutex-guarded workflow.Store.
type Store struct {
	mu sync.RWMutex

	workflows   map[string]*workflow.Workflow
	steps       map[string][]*workflow.Step // workflowID -> steps
	edges       map[string][]*workflow.Edge // workflowID -> edges
	executions  map[string]*workflow.WorkflowExecution
	stepExecs   map[string]*workflow.StepExecution
	credentials map[string]*workflow.Credential
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		workflows:   make(map[string]*workflow.Workflow),
		steps:       make(map[string][]*workflow.Step),
		edges:       make(map[string][]*workflow.Edge),
		executions:  make(map[string]*workflow.WorkflowExecution),
		stepExecs:   make(map[string]*workflow.StepExecution),
		credentials: make(map[string]*workflow.Credential),
	}
}

// Close is a no-op: there is no underlying connection to release.
func (s *Store) Close() error { return nil }

func (s *Store) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return nil, flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("workflow not found: %s", id))
	}
	cp := *wf
	return &cp, nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*workflow.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		cp := *wf
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) CreateWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[wf.ID]; exists {
		return flowerrors.NewWorkflowError(flowerrors.KindValidation, fmt.Sprintf("workflow already exists: %s", wf.ID))
	}

	now := time.Now()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	cp := *wf
	s.workflows[wf.ID] = &cp
	return nil
}

func (s *Store) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow, steps []*workflow.Step, edges []*workflow.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[wf.ID]; !exists {
		return flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("workflow not found: %s", wf.ID))
	}

	wf.UpdatedAt = time.Now()
	cp := *wf
	s.workflows[wf.ID] = &cp

	if steps != nil {
		stepsCopy := make([]*workflow.Step, len(steps))
		for i, st := range steps {
			scp := *st
			stepsCopy[i] = &scp
		}
		s.steps[wf.ID] = stepsCopy
	}
	if edges != nil {
		edgesCopy := make([]*workflow.Edge, len(edges))
		for i, e := range edges {
			ecp := *e
			edgesCopy[i] = &ecp
		}
		s.edges[wf.ID] = edgesCopy
	}
	return nil
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[id]; !exists {
		return flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("workflow not found: %s", id))
	}
	delete(s.workflows, id)
	delete(s.steps, id)
	delete(s.edges, id)
	for execID, exec := range s.executions {
		if exec.WorkflowID != id {
			continue
		}
		delete(s.executions, execID)
		for seID, se := range s.stepExecs {
			if se.WorkflowExecutionID == execID {
				delete(s.stepExecs, seID)
			}
		}
	}
	return nil
}

func (s *Store) GetSteps(ctx context.Context, workflowID string) ([]*workflow.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps := s.steps[workflowID]
	result := make([]*workflow.Step, len(steps))
	for i, st := range steps {
		cp := *st
		result[i] = &cp
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *Store) GetEdges(ctx context.Context, workflowID string) ([]*workflow.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edges := s.edges[workflowID]
	result := make([]*workflow.Edge, len(edges))
	for i, e := range edges {
		cp := *e
		result[i] = &cp
	}
	return result, nil
}

func (s *Store) CreateExecution(ctx context.Context, exec *workflow.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[exec.ID]; exists {
		return flowerrors.NewWorkflowError(flowerrors.KindValidation, fmt.Sprintf("execution already exists: %s", exec.ID))
	}
	cp := *exec
	s.executions[exec.ID] = &cp
	return nil
}

func (s *Store) UpdateExecution(ctx context.Context, exec *workflow.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.executions[exec.ID]; !exists {
		return flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("execution not found: %s", exec.ID))
	}
	cp := *exec
	s.executions[exec.ID] = &cp
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*workflow.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, exists := s.executions[id]
	if !exists {
		return nil, flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("execution not found: %s", id))
	}
	cp := *exec
	return &cp, nil
}

func (s *Store) ListExecutions(ctx context.Context, workflowID string) ([]*workflow.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*workflow.WorkflowExecution, 0)
	for _, exec := range s.executions {
		if exec.WorkflowID == workflowID {
			cp := *exec
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.After(result[j].StartTime) })
	return result, nil
}

func (s *Store) CreateStepExecution(ctx context.Context, se *workflow.StepExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stepExecs[se.ID]; exists {
		return flowerrors.NewWorkflowError(flowerrors.KindValidation, fmt.Sprintf("step execution already exists: %s", se.ID))
	}
	cp := *se
	s.stepExecs[se.ID] = &cp
	return nil
}

func (s *Store) UpdateStepExecution(ctx context.Context, se *workflow.StepExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stepExecs[se.ID]; !exists {
		return flowerrors.NewWorkflowError(flowerrors.KindStepNotFound, fmt.Sprintf("step execution not found: %s", se.ID))
	}
	cp := *se
	s.stepExecs[se.ID] = &cp
	return nil
}

func (s *Store) ListCredentials(ctx context.Context) ([]*workflow.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*workflow.Credential, 0, len(s.credentials))
	for _, c := range s.credentials {
		cp := *c
		cp.Secret = "" // never surface secrets through a listing
		result = append(result, &cp)
	}
	return result, nil
}

func (s *Store) GetCredentialByType(ctx context.Context, credType string) (*workflow.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.credentials {
		if c.Type == credType {
			cp := *c
			return &cp, nil
		}
	}
	return nil, flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("credential not found for type: %s", credType))
}

func (s *Store) CreateCredential(ctx context.Context, cred *workflow.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credentials[cred.ID]; exists {
		return flowerrors.NewWorkflowError(flowerrors.KindValidation, fmt.Sprintf("credential already exists: %s", cred.ID))
	}
	cred.CreatedAt = time.Now()
	cp := *cred
	s.credentials[cred.ID] = &cp
	return nil
}

func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credentials[id]; !exists {
		return flowerrors.NewWorkflowError(flowerrors.KindWorkflowNotFound, fmt.Sprintf("credential not found: %s", id))
	}
	delete(s.credentials, id)
	return nil
}
