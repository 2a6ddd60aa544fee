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
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tombee/flowengine/internal/secrets"
	"github.com/tombee/flowengine/pkg/llm"
	"github.com/tombee/flowengine/pkg/workflow"
	"github.com/tombee/flowengine/pkg/workflow/memstore"
)

func newTestRouter() *Router {
	store := memstore.New()
	engine := workflow.NewEngine(store, llm.NewMockProvider())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cipher, _, _ := secrets.ResolveCipher("", "")
	return NewRouter(engine, store, logger, cipher)
}

func TestHandleHealth(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
}

func TestCreateAndGetWorkflow(t *testing.T) {
	router := newTestRouter()

	createBody, _ := json.Marshal(saveGraphRequest{
		Workflow: &workflow.Workflow{Name: "demo", IsActive: true},
		Steps: []*workflow.Step{
			{ID: "trigger", Kind: workflow.KindManualTrigger, Order: 0},
		},
	})
	createReq := httptest.NewRequest(http.MethodPost, "/api/workflows", bytes.NewReader(createBody))
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)
	if createRec.Code != http.StatusOK {
		t.Fatalf("create status = %d, want 200, body %s", createRec.Code, createRec.Body.String())
	}

	var created workflow.Workflow
	if err := json.NewDecoder(createRec.Body).Decode(&created); err != nil {
		t.Fatalf("decode created workflow: %v", err)
	}
	if created.ID == "" {
		t.Fatal("created workflow has no ID")
	}

	getReq := httptest.NewRequest(http.MethodGet, "/api/workflows/"+created.ID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200, body %s", getRec.Code, getRec.Body.String())
	}

	var graph workflow.Graph
	if err := json.NewDecoder(getRec.Body).Decode(&graph); err != nil {
		t.Fatalf("decode graph: %v", err)
	}
	if len(graph.Steps) != 1 {
		t.Errorf("len(graph.Steps) = %d, want 1", len(graph.Steps))
	}
}

func TestManualRunEndToEnd(t *testing.T) {
	router := newTestRouter()

	createBody, _ := json.Marshal(saveGraphRequest{
		Workflow: &workflow.Workflow{Name: "demo", IsActive: true},
		Steps: []*workflow.Step{
			{ID: "trigger", Kind: workflow.KindManualTrigger, Order: 0},
		},
	})
	createReq := httptest.NewRequest(http.MethodPost, "/api/workflows", bytes.NewReader(createBody))
	createRec := httptest.NewRecorder()
	router.ServeHTTP(createRec, createReq)

	var created workflow.Workflow
	json.NewDecoder(createRec.Body).Decode(&created)

	runReq := httptest.NewRequest(http.MethodPost, "/api/workflows/"+created.ID+"/execute", bytes.NewReader([]byte(`{}`)))
	runRec := httptest.NewRecorder()
	router.ServeHTTP(runRec, runReq)
	if runRec.Code != http.StatusOK {
		t.Fatalf("run status = %d, want 200, body %s", runRec.Code, runRec.Body.String())
	}

	var exec workflow.WorkflowExecution
	if err := json.NewDecoder(runRec.Body).Decode(&exec); err != nil {
		t.Fatalf("decode execution: %v", err)
	}
	if exec.Status != workflow.RunStatusCompleted {
		t.Errorf("status = %q, want completed", exec.Status)
	}
}

func TestGetWorkflowNotFound(t *testing.T) {
	router := newTestRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/workflows/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// waitForTerminalRun polls GET /api/executions/{id} until the run
// leaves RunStatusRunning, or fails the test after a timeout. Async
// trigger paths return 202 before the run has necessarily finished.
func waitForTerminalRun(t *testing.T, router *Router, executionID string) workflow.WorkflowExecution {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/api/executions/"+executionID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("get execution status = %d, want 200, body %s", rec.Code, rec.Body.String())
		}
		var exec workflow.WorkflowExecution
		if err := json.NewDecoder(rec.Body).Decode(&exec); err != nil {
			t.Fatalf("decode execution: %v", err)
		}
		if exec.Status != workflow.RunStatusRunning {
			return exec
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("execution %s did not reach a terminal status in time", executionID)
	return workflow.WorkflowExecution{}
}

func createWorkflowGraph(t *testing.T, router *Router, body saveGraphRequest) workflow.Workflow {
	t.Helper()
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/workflows", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	var created workflow.Workflow
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode created workflow: %v", err)
	}
	return created
}

func TestHandleWebhookSignedEndToEnd(t *testing.T) {
	router := newTestRouter()

	const secret = "k"
	created := createWorkflowGraph(t, router, saveGraphRequest{
		Workflow: &workflow.Workflow{Name: "webhook-demo", IsActive: true},
		Steps: []*workflow.Step{
			{ID: "trigger", Kind: workflow.KindWebhookTrigger, Order: 0, Config: map[string]interface{}{
				"webhookId": "w1",
				"secret":    secret,
			}},
			{ID: "transform", Kind: workflow.KindAITransform, Order: 1},
		},
		Edges: []*workflow.Edge{
			{SourceID: "trigger", TargetID: "transform"},
		},
	})

	body := []byte(`{"m":"hi"}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/w1", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", signature)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("webhook status = %d, want 202, body %s", rec.Code, rec.Body.String())
	}

	var accepted map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode accepted response: %v", err)
	}
	executionID, _ := accepted["executionId"].(string)
	if executionID == "" {
		t.Fatal("accepted response has no executionId")
	}

	exec := waitForTerminalRun(t, router, executionID)
	if exec.Status != workflow.RunStatusCompleted {
		t.Fatalf("status = %q, want completed, outputs %+v", exec.Status, exec.Outputs)
	}
	out, ok := exec.Outputs["transform"].(string)
	if !ok {
		t.Fatalf("transform output is not a string: %T", exec.Outputs["transform"])
	}
	if !strings.HasPrefix(out, "[MOCK] Transformed: ") {
		t.Errorf("transform output = %q, want prefix %q", out, "[MOCK] Transformed: ")
	}
}

func TestHandleWebhookBadSignature(t *testing.T) {
	router := newTestRouter()

	createWorkflowGraph(t, router, saveGraphRequest{
		Workflow: &workflow.Workflow{Name: "webhook-demo", IsActive: true},
		Steps: []*workflow.Step{
			{ID: "trigger", Kind: workflow.KindWebhookTrigger, Order: 0, Config: map[string]interface{}{
				"webhookId": "w2",
				"secret":    "k",
			}},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/w2", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("X-Webhook-Signature", "not-the-right-signature")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandleAppEventFanOut(t *testing.T) {
	router := newTestRouter()

	created := createWorkflowGraph(t, router, saveGraphRequest{
		Workflow: &workflow.Workflow{Name: "app-event-demo", IsActive: true},
		Steps: []*workflow.Step{
			{ID: "trigger", Kind: workflow.KindAppEventTrigger, Order: 0, Config: map[string]interface{}{
				"eventType": "user.signed_up",
			}},
		},
	})
	// A workflow listening for a different event type must not be
	// admitted.
	createWorkflowGraph(t, router, saveGraphRequest{
		Workflow: &workflow.Workflow{Name: "other-event-demo", IsActive: true},
		Steps: []*workflow.Step{
			{ID: "trigger", Kind: workflow.KindAppEventTrigger, Order: 0, Config: map[string]interface{}{
				"eventType": "user.deleted",
			}},
		},
	})

	eventBody, _ := json.Marshal(appEventRequest{
		EventType: "user.signed_up",
		Payload:   map[string]interface{}{"userId": "u1"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(eventBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body %s", rec.Code, rec.Body.String())
	}

	var accepted struct {
		ExecutionIDs []string `json:"executionIds"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode accepted response: %v", err)
	}
	if len(accepted.ExecutionIDs) != 1 {
		t.Fatalf("executionIds = %v, want exactly 1", accepted.ExecutionIDs)
	}

	exec := waitForTerminalRun(t, router, accepted.ExecutionIDs[0])
	if exec.WorkflowID != created.ID {
		t.Errorf("run admitted for workflow %q, want %q", exec.WorkflowID, created.ID)
	}
	if exec.Status != workflow.RunStatusCompleted {
		t.Errorf("status = %q, want completed", exec.Status)
	}
}

func TestHandleAppEventNoListeners(t *testing.T) {
	router := newTestRouter()

	eventBody, _ := json.Marshal(appEventRequest{EventType: "nothing.listens"})
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(eventBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandleWorkflowChain(t *testing.T) {
	router := newTestRouter()

	source := createWorkflowGraph(t, router, saveGraphRequest{
		Workflow: &workflow.Workflow{Name: "source", IsActive: true},
		Steps: []*workflow.Step{
			{ID: "trigger", Kind: workflow.KindManualTrigger, Order: 0},
		},
	})
	target := createWorkflowGraph(t, router, saveGraphRequest{
		Workflow: &workflow.Workflow{Name: "target", IsActive: true},
		Steps: []*workflow.Step{
			{ID: "trigger", Kind: workflow.KindWorkflowTrigger, Order: 0},
		},
	})

	// Chaining before the source has ever run must conflict.
	chainBody, _ := json.Marshal(workflowChainRequest{TargetWorkflowID: target.ID})
	conflictReq := httptest.NewRequest(http.MethodPost, "/api/workflows/"+source.ID+"/chain", bytes.NewReader(chainBody))
	conflictRec := httptest.NewRecorder()
	router.ServeHTTP(conflictRec, conflictReq)
	if conflictRec.Code != http.StatusConflict {
		t.Fatalf("chain-before-run status = %d, want 409, body %s", conflictRec.Code, conflictRec.Body.String())
	}

	runReq := httptest.NewRequest(http.MethodPost, "/api/workflows/"+source.ID+"/execute", bytes.NewReader([]byte(`{}`)))
	runRec := httptest.NewRecorder()
	router.ServeHTTP(runRec, runReq)
	if runRec.Code != http.StatusOK {
		t.Fatalf("source run status = %d, want 200, body %s", runRec.Code, runRec.Body.String())
	}

	chainReq := httptest.NewRequest(http.MethodPost, "/api/workflows/"+source.ID+"/chain", bytes.NewReader(chainBody))
	chainRec := httptest.NewRecorder()
	router.ServeHTTP(chainRec, chainReq)
	if chainRec.Code != http.StatusAccepted {
		t.Fatalf("chain status = %d, want 202, body %s", chainRec.Code, chainRec.Body.String())
	}

	var accepted struct {
		ExecutionID string `json:"executionId"`
	}
	if err := json.NewDecoder(chainRec.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode accepted response: %v", err)
	}
	exec := waitForTerminalRun(t, router, accepted.ExecutionID)
	if exec.WorkflowID != target.ID {
		t.Errorf("chained run admitted for workflow %q, want %q", exec.WorkflowID, target.ID)
	}
	if exec.Status != workflow.RunStatusCompleted {
		t.Errorf("status = %q, want completed", exec.Status)
	}
}
