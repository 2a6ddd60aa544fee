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
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/flowengine/internal/secrets"
	"github.com/tombee/flowengine/pkg/workflow"
)

var startTime = time.Now()

// Router wires the engine and store into the HTTP handler tree.
type Router struct {
	engine *workflow.Engine
	store  workflow.Store
	logger *slog.Logger
	cipher secrets.Cipher
	mux    *http.ServeMux
}

// NewRouter builds the full route table. cipher seals and opens
// credential secrets; pass secrets.ResolveCipher's result.
func NewRouter(engine *workflow.Engine, store workflow.Store, logger *slog.Logger, cipher secrets.Cipher) *Router {
	r := &Router{engine: engine, store: store, logger: logger, cipher: cipher, mux: http.NewServeMux()}
	r.routes()
	return r
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) routes() {
	r.mux.HandleFunc("GET /healthz", r.handleHealth)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	r.mux.HandleFunc("GET /api/workflows", r.handleListWorkflows)
	r.mux.HandleFunc("POST /api/workflows", r.handleCreateWorkflow)
	r.mux.HandleFunc("GET /api/workflows/{id}", r.handleGetWorkflow)
	r.mux.HandleFunc("PATCH /api/workflows/{id}", r.handleUpdateWorkflow)
	r.mux.HandleFunc("DELETE /api/workflows/{id}", r.handleDeleteWorkflow)

	r.mux.HandleFunc("POST /api/workflows/{id}/execute", r.handleManualRun)
	r.mux.HandleFunc("GET /api/workflows/{id}/runs", r.handleListRuns)
	r.mux.HandleFunc("GET /api/executions/{id}", r.handleGetRun)

	r.mux.HandleFunc("POST /api/webhooks/{webhookId}", r.handleWebhook)
	r.mux.HandleFunc("POST /api/events", r.handleAppEvent)
	r.mux.HandleFunc("POST /api/workflows/{id}/chain", r.handleWorkflowChain)

	r.mux.HandleFunc("GET /api/credentials", r.handleListCredentials)
	r.mux.HandleFunc("POST /api/credentials", r.handleCreateCredential)
	r.mux.HandleFunc("DELETE /api/credentials/{id}", r.handleDeleteCredential)
}

type healthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Runtime string `json:"runtime"`
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "healthy",
		Uptime:  time.Since(startTime).Round(time.Second).String(),
		Runtime: runtime.Version(),
	})
}
