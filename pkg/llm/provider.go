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

// Package llm provides the single completion capability step handlers call
// into: a model id, a prompt, and sampling parameters in, text out. Mock
// mode stands in whenever no credential is configured, so a workflow built
// and tested without an API key behaves deterministically.
package llm

import "context"

// CompletionRequest is the single shape every AI step kind builds before
// calling a Provider.
type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider is the capability the engine depends on for every AI step kind.
// Implementations must be safe for concurrent callers from different runs.
type Provider interface {
	// Complete returns the model's text response to req.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
