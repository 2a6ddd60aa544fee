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
	"fmt"
	"regexp"
	"strings"
	"time"
)

// mockDelay simulates the latency a real provider call would have, so
// workflows built against the mock behave observably like live ones.
const mockDelay = 500 * time.Millisecond

var categoryPattern = regexp.MustCompile(`(?i)categories:\s*\["?([a-zA-Z0-9_\- ]+)"?`)

// MockProvider is the deterministic Provider used whenever no credential
// is configured. It never calls out to a network.
type MockProvider struct{}

// NewMockProvider creates a MockProvider.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Complete returns a deterministic response. Prompts that ask for a JSON
// object (information_extractor, sentiment_analysis, text_classifier all
// build such prompts) get a fixed sentinel JSON structure instead of a
// "[MOCK] " prefixed string, so the caller's JSON parsing path still
// succeeds against the mock. ai_transform's default prompt template asks
// the model to "Transform this", which gets its own sentinel response.
func (p *MockProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	select {
	case <-time.After(mockDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	prompt := req.Prompt
	lower := strings.ToLower(prompt)

	switch {
	case strings.Contains(lower, "sentiment"):
		return `{"sentiment": "positive", "score": 0.8, "explanation": "[MOCK] mock sentiment analysis"}`, nil
	case strings.Contains(lower, "categories"):
		category := "positive"
		if m := categoryPattern.FindStringSubmatch(prompt); len(m) == 2 {
			first := strings.TrimSpace(strings.Split(m[1], ",")[0])
			if first != "" {
				category = first
			}
		}
		return fmt.Sprintf(`{"category": %q, "confidence": 0.8, "explanation": "[MOCK] mock classification"}`, category), nil
	case strings.Contains(lower, "transform"):
		return fmt.Sprintf("[MOCK] Transformed: %s", truncate(prompt, 80)), nil
	case strings.Contains(lower, "json"):
		return `{"mock": true}`, nil
	default:
		return fmt.Sprintf("[MOCK] Response to: %s", truncate(prompt, 80)), nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
