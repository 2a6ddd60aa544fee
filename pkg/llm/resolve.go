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

package llm

import (
	"context"
	"os"
)

// anthropicCredentialType is the Credential.Type value credentials of
// this provider are stored under.
const anthropicCredentialType = "anthropic"

// anthropicAPIKeyEnvVar is checked before the credential store, so a
// deployment can pin a key without persisting it anywhere.
const anthropicAPIKeyEnvVar = "ANTHROPIC_API_KEY"

// CredentialLookup is the one method Resolve needs from a credential
// store. It mirrors workflow.CredentialStore's GetCredentialByType, but
// returns this package's Credential, so a workflow.Store is passed to
// Resolve through a small adapter (internal/apiserver's
// storeCredentialLookup) and this package never imports pkg/workflow.
type CredentialLookup interface {
	GetCredentialByType(ctx context.Context, credType string) (Credential, error)
}

// Credential is the subset of workflow.Credential Resolve reads.
type Credential struct {
	Secret string
}

// Resolve picks the Provider a run should use: an environment variable
// takes precedence, then a stored credential, then the mock provider.
func Resolve(ctx context.Context, store CredentialLookup) (Provider, error) {
	if key := os.Getenv(anthropicAPIKeyEnvVar); key != "" {
		return NewAnthropicProvider(key)
	}

	if store != nil {
		if cred, err := store.GetCredentialByType(ctx, anthropicCredentialType); err == nil && cred.Secret != "" {
			return NewAnthropicProvider(cred.Secret)
		}
	}

	return NewMockProvider(), nil
}
