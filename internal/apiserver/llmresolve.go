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

	"github.com/tombee/flowengine/internal/secrets"
	"github.com/tombee/flowengine/pkg/llm"
	"github.com/tombee/flowengine/pkg/workflow"
)

// storeCredentialLookup adapts a workflow.CredentialStore to
// llm.CredentialLookup, decrypting the stored secret on the way out.
// This is the seam that lets pkg/llm and pkg/workflow stay free of a
// dependency on each other: only this wiring package imports both.
type storeCredentialLookup struct {
	store  workflow.CredentialStore
	cipher secrets.Cipher
}

func (s storeCredentialLookup) GetCredentialByType(ctx context.Context, credType string) (llm.Credential, error) {
	cred, err := s.store.GetCredentialByType(ctx, credType)
	if err != nil {
		return llm.Credential{}, err
	}
	plaintext, err := s.cipher.Decrypt(cred.Secret)
	if err != nil {
		return llm.Credential{}, err
	}
	return llm.Credential{Secret: plaintext}, nil
}

// ResolveProvider resolves the LLM provider a new Engine should use,
// wired through store's (encrypted) credential records.
func ResolveProvider(ctx context.Context, store workflow.CredentialStore, cipher secrets.Cipher) (llm.Provider, error) {
	return llm.Resolve(ctx, storeCredentialLookup{store: store, cipher: cipher})
}
