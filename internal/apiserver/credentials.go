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

	"github.com/tombee/flowengine/pkg/workflow"
)

// handleListCredentials never returns the Secret field: the store holds
// it encrypted, and there is no legitimate reason to round-trip it back
// to a client.
func (r *Router) handleListCredentials(w http.ResponseWriter, req *http.Request) {
	creds, err := r.store.ListCredentials(req.Context())
	if err != nil {
		writeErrorFromKind(w, err)
		return
	}
	for _, c := range creds {
		c.Secret = ""
	}
	writeJSON(w, http.StatusOK, creds)
}

type createCredentialRequest struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Secret string `json:"secret"`
}

func (r *Router) handleCreateCredential(w http.ResponseWriter, req *http.Request) {
	var body createCredentialRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Type == "" || body.Secret == "" {
		writeError(w, http.StatusBadRequest, "type and secret are required")
		return
	}

	sealed, err := r.encryptSecret(body.Secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encrypt credential")
		return
	}

	cred := &workflow.Credential{
		ID:        uuid.New().String(),
		Type:      body.Type,
		Name:      body.Name,
		Secret:    sealed,
		CreatedAt: time.Now(),
	}
	if err := r.store.CreateCredential(req.Context(), cred); err != nil {
		writeErrorFromKind(w, err)
		return
	}
	cred.Secret = ""
	writeJSON(w, http.StatusOK, cred)
}

func (r *Router) handleDeleteCredential(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.store.DeleteCredential(req.Context(), id); err != nil {
		writeErrorFromKind(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// encryptSecret seals plaintext with the router's configured Cipher
// (see internal/secrets.ResolveCipher for the backend policy).
func (r *Router) encryptSecret(plaintext string) (string, error) {
	return r.cipher.Encrypt(plaintext)
}
