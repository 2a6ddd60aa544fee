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

package apiserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	flowerrors "github.com/tombee/flowengine/pkg/errors"
	"github.com/tombee/flowengine/pkg/workflow"
)

func (r *Router) handleListWorkflows(w http.ResponseWriter, req *http.Request) {
	workflows, err := r.store.ListWorkflows(req.Context())
	if err != nil {
		writeErrorFromKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

type saveGraphRequest struct {
	Workflow *workflow.Workflow `json:"workflow"`
	Steps    []*workflow.Step   `json:"steps"`
	Edges    []*workflow.Edge   `json:"edges"`
}

func (r *Router) handleCreateWorkflow(w http.ResponseWriter, req *http.Request) {
	var body saveGraphRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Workflow == nil {
		writeError(w, http.StatusBadRequest, "workflow is required")
		return
	}

	body.Workflow.ID = uuid.New().String()
	body.Workflow.CreatedAt = time.Now()
	body.Workflow.UpdatedAt = body.Workflow.CreatedAt
	for _, s := range body.Steps {
		s.WorkflowID = body.Workflow.ID
	}
	for _, e := range body.Edges {
		e.WorkflowID = body.Workflow.ID
	}

	if err := r.store.CreateWorkflow(req.Context(), body.Workflow); err != nil {
		writeErrorFromKind(w, err)
		return
	}
	if len(body.Steps) > 0 || len(body.Edges) > 0 {
		if err := r.store.UpdateWorkflow(req.Context(), body.Workflow, body.Steps, body.Edges); err != nil {
			writeErrorFromKind(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, body.Workflow)
}

func (r *Router) handleGetWorkflow(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	wf, err := r.store.GetWorkflow(req.Context(), id)
	if err != nil {
		writeErrorFromKind(w, err)
		return
	}
	steps, err := r.store.GetSteps(req.Context(), id)
	if err != nil {
		writeErrorFromKind(w, err)
		return
	}
	edges, err := r.store.GetEdges(req.Context(), id)
	if err != nil {
		writeErrorFromKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflow.Graph{Workflow: wf, Steps: steps, Edges: edges})
}

func (r *Router) handleUpdateWorkflow(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	var body saveGraphRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Workflow == nil {
		writeError(w, http.StatusBadRequest, "workflow is required")
		return
	}
	body.Workflow.ID = id
	body.Workflow.UpdatedAt = time.Now()
	for _, s := range body.Steps {
		s.WorkflowID = id
	}
	for _, e := range body.Edges {
		e.WorkflowID = id
	}

	if err := r.store.UpdateWorkflow(req.Context(), body.Workflow, body.Steps, body.Edges); err != nil {
		writeErrorFromKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body.Workflow)
}

func (r *Router) handleDeleteWorkflow(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.store.DeleteWorkflow(req.Context(), id); err != nil {
		writeErrorFromKind(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeErrorFromKind maps a WorkflowError's Kind to an HTTP status; any
// other error becomes a 500. Errors classified as retryable (transient
// LLM/sandbox-timeout failures) get a Retry-After hint so callers know
// resubmitting the same request is worth trying.
func writeErrorFromKind(w http.ResponseWriter, err error) {
	var classifier flowerrors.ErrorClassifier
	if flowerrors.As(err, &classifier) && classifier.IsRetryable() {
		w.Header().Set("Retry-After", "5")
	}

	kind, ok := flowerrors.KindOf(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	switch kind {
	case flowerrors.KindWorkflowNotFound, flowerrors.KindStepNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case flowerrors.KindValidation, flowerrors.KindTypeError, flowerrors.KindBranchUnresolved:
		writeError(w, http.StatusBadRequest, err.Error())
	case flowerrors.KindWebhookSignatureMissing, flowerrors.KindWebhookSignatureInvalid:
		writeError(w, http.StatusUnauthorized, err.Error())
	case flowerrors.KindCancelled, flowerrors.KindDeadlineExceeded:
		writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
