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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tombee/flowengine/internal/webhookauth"
	"github.com/tombee/flowengine/pkg/workflow"
)

const maxWebhookBodySize = 10 * 1024 * 1024

type runRequest struct {
	Payload map[string]interface{} `json:"payload"`
}

// handleManualRun handles POST /api/workflows/{id}/execute, the manual
// trigger path. It blocks for the full run: the caller gets the
// terminal WorkflowExecution back in the response body.
func (r *Router) handleManualRun(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	var body runRequest
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	envelope := workflow.TriggerEnvelope{Type: workflow.TriggerManual, Payload: body.Payload}
	exec, err := r.engine.StartRun(req.Context(), id, envelope)
	if err != nil && exec == nil {
		writeErrorFromKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (r *Router) handleListRuns(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	execs, err := r.store.ListExecutions(req.Context(), id)
	if err != nil {
		writeErrorFromKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (r *Router) handleGetRun(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	exec, err := r.store.GetExecution(req.Context(), id)
	if err != nil {
		writeErrorFromKind(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// handleWebhook handles POST /api/webhooks/{webhookId}. It finds the
// workflow whose webhook_trigger step carries this id by scanning
// active workflows, verifies the signature if the step configures a
// secret, then admits the run and returns 202 without waiting for it
// to reach a terminal status.
func (r *Router) handleWebhook(w http.ResponseWriter, req *http.Request) {
	webhookID := req.PathValue("webhookId")

	body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	wf, step, err := r.findWebhookTrigger(req.Context(), webhookID)
	if err != nil {
		writeError(w, http.StatusNotFound, "webhook not found")
		return
	}

	secret, _ := step.Config["secret"].(string)
	if err := webhookauth.Verify(req, body, secret); err != nil {
		writeErrorFromKind(w, err)
		return
	}

	var payload map[string]interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "body must be a JSON object")
			return
		}
	}

	headers := map[string]string{}
	for k := range req.Header {
		headers[k] = req.Header.Get(k)
	}
	query := map[string]string{}
	for k := range req.URL.Query() {
		query[k] = req.URL.Query().Get(k)
	}

	envelope := workflow.TriggerEnvelope{
		Type:      workflow.TriggerWebhook,
		WebhookID: webhookID,
		Payload:   payload,
		Headers:   headers,
		Query:     query,
	}

	exec, err := r.engine.StartRunAsync(req.Context(), wf.ID, envelope)
	if err != nil {
		writeErrorFromKind(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":      "triggered",
		"runId":       exec.ID,
		"executionId": exec.ID,
	})
}

type appEventRequest struct {
	EventType string                 `json:"eventType"`
	Payload   map[string]interface{} `json:"payload"`
}

// handleAppEvent handles POST /api/events. It fans an application event
// out to every active workflow carrying an app_event_trigger step whose
// config.eventType matches, admitting one run per match and returning
// 202 without waiting for any of them to complete.
func (r *Router) handleAppEvent(w http.ResponseWriter, req *http.Request) {
	var body appEventRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.EventType == "" {
		writeError(w, http.StatusBadRequest, "eventType is required")
		return
	}

	envelope := workflow.TriggerEnvelope{
		Type:      workflow.TriggerAppEvent,
		EventType: body.EventType,
		Payload:   body.Payload,
	}

	workflows, err := r.store.ListWorkflows(req.Context())
	if err != nil {
		writeErrorFromKind(w, err)
		return
	}

	var executionIDs []string
	for _, wf := range workflows {
		if !wf.IsActive {
			continue
		}
		steps, err := r.store.GetSteps(req.Context(), wf.ID)
		if err != nil {
			writeErrorFromKind(w, err)
			return
		}
		matches := false
		for _, step := range steps {
			if step.Kind != workflow.KindAppEventTrigger {
				continue
			}
			if eventType, _ := step.Config["eventType"].(string); eventType == body.EventType {
				matches = true
				break
			}
		}
		if !matches {
			continue
		}
		exec, err := r.engine.StartRunAsync(req.Context(), wf.ID, envelope)
		if err != nil {
			writeErrorFromKind(w, err)
			return
		}
		executionIDs = append(executionIDs, exec.ID)
	}

	if len(executionIDs) == 0 {
		writeError(w, http.StatusNotFound, "no active workflow listens for this event type")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"executionIds": executionIDs,
	})
}

type workflowChainRequest struct {
	TargetWorkflowID string `json:"targetWorkflowId"`
}

// handleWorkflowChain handles POST /api/workflows/{id}/chain. {id} is
// the source workflow; its most recent run must be completed. That
// run's outputs are merged into the target run's initial outputs.
func (r *Router) handleWorkflowChain(w http.ResponseWriter, req *http.Request) {
	sourceID := req.PathValue("id")

	var body workflowChainRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.TargetWorkflowID == "" {
		writeError(w, http.StatusBadRequest, "targetWorkflowId is required")
		return
	}

	execs, err := r.store.ListExecutions(req.Context(), sourceID)
	if err != nil {
		writeErrorFromKind(w, err)
		return
	}
	if len(execs) == 0 {
		writeError(w, http.StatusConflict, "source workflow has no runs")
		return
	}
	source := execs[0]
	if source.Status != workflow.RunStatusCompleted {
		writeError(w, http.StatusConflict, "source workflow's most recent run has not completed")
		return
	}

	envelope := workflow.TriggerEnvelope{
		Type:              workflow.TriggerWorkflow,
		SourceWorkflowID:  sourceID,
		SourceExecutionID: source.ID,
		Outputs:           source.Outputs,
	}

	exec, err := r.engine.StartRunAsync(req.Context(), body.TargetWorkflowID, envelope)
	if err != nil {
		writeErrorFromKind(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"executionId": exec.ID,
	})
}

// findWebhookTrigger scans active workflows for a webhook_trigger step
// whose config.webhookId matches. Webhook ids are assumed unique across
// workflows; the first match wins.
func (r *Router) findWebhookTrigger(ctx context.Context, webhookID string) (*workflow.Workflow, *workflow.Step, error) {
	workflows, err := r.store.ListWorkflows(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, wf := range workflows {
		if !wf.IsActive {
			continue
		}
		steps, err := r.store.GetSteps(ctx, wf.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, step := range steps {
			if step.Kind != workflow.KindWebhookTrigger {
				continue
			}
			if id, _ := step.Config["webhookId"].(string); id == webhookID {
				return wf, step, nil
			}
		}
	}
	return nil, nil, fmt.Errorf("apiserver: no webhook trigger registered for id %q", webhookID)
}
