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

package workflow

import (
	"context"
	"fmt"
	"strings"

	flowerrors "github.com/tombee/flowengine/pkg/errors"
	"github.com/tombee/flowengine/pkg/llm"
	"github.com/tombee/flowengine/pkg/workflow/schema"
)

func init() {
	register(KindBasicLLMChain, handleBasicLLMChain)
	register(KindAITransform, handleAITransform)
	register(KindInformationExtractor, handleInformationExtractor)
	register(KindQAChain, handleQAChain)
	register(KindSentimentAnalysis, handleSentimentAnalysis)
	register(KindSummarizationChain, handleSummarizationChain)
	register(KindTextClassifier, handleTextClassifier)
}

func complete(ctx context.Context, sc *StepContext, model, prompt string, maxTokens int, temperature float64) (string, error) {
	if err := ctxErr(ctx); err != nil {
		return "", err
	}
	text, err := sc.LLM.Complete(ctx, llm.CompletionRequest{
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", flowerrors.WrapWorkflowError(flowerrors.KindLLMError, "completion request failed", err)
	}
	return text, nil
}

func handleBasicLLMChain(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	cfg := step.Config
	prompt := sc.Resolver.ResolveString(configString(cfg, "prompt", ""), sc.Inputs)
	return complete(ctx, sc,
		configString(cfg, "model", ""),
		prompt,
		configInt(cfg, "maxTokens", 1000),
		configFloat(cfg, "temperature", 0.7))
}

func handleAITransform(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	cfg := step.Config
	inputPath := configString(cfg, "input", "_all")
	value, _ := resolvePath(inputPath, sc.Inputs)

	promptTemplate := configString(cfg, "prompt", "Transform this: {{_all}}")
	data := map[string]interface{}{"_all": value}
	for k, v := range sc.Inputs {
		data[k] = v
	}
	prompt := sc.Resolver.ResolveString(promptTemplate, data)

	return complete(ctx, sc,
		configString(cfg, "model", ""),
		prompt,
		configInt(cfg, "maxTokens", 1000),
		configFloat(cfg, "temperature", 0.7))
}

func handleInformationExtractor(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	cfg := step.Config
	prompt := sc.Resolver.ResolveString(configString(cfg, "prompt", "{{_all}}"), sc.Inputs)

	var schemaMap map[string]interface{}
	if s, ok := cfg["schema"].(map[string]interface{}); ok {
		schemaMap = s
	}
	fullPrompt := schema.BuildPromptWithSchema(prompt, schemaMap, 0)

	text, err := complete(ctx, sc, configString(cfg, "model", ""), fullPrompt, configInt(cfg, "maxTokens", 1000), 0.1)
	if err != nil {
		return nil, err
	}

	extracted, err := schema.ExtractJSON(text)
	if err != nil {
		return text, nil
	}
	return extracted, nil
}

func handleQAChain(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	cfg := step.Config
	qaContext, _ := resolvePath(configString(cfg, "context", "_all"), sc.Inputs)
	question := sc.Resolver.ResolveString(configString(cfg, "question", ""), sc.Inputs)

	prompt := fmt.Sprintf("Context:\n%v\n\nQuestion: %s", qaContext, question)
	return complete(ctx, sc, configString(cfg, "model", ""), prompt, configInt(cfg, "maxTokens", 1000), 0.7)
}

func handleSentimentAnalysis(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	cfg := step.Config
	text := sc.Resolver.ResolveString(configString(cfg, "text", "{{_all}}"), sc.Inputs)

	prompt := fmt.Sprintf("Analyze the sentiment of the following text and respond with a JSON object "+
		"{\"sentiment\": \"positive\"|\"negative\"|\"neutral\", \"score\": number between -1 and 1, \"explanation\": string}.\n\nText:\n%v", text)

	resp, err := complete(ctx, sc, configString(cfg, "model", ""), prompt, configInt(cfg, "maxTokens", 500), 0.2)
	if err != nil {
		return nil, err
	}

	parsed, err := schema.ExtractJSON(resp)
	if err != nil {
		return map[string]interface{}{"sentiment": "neutral", "score": 0, "explanation": resp}, nil
	}
	return parsed, nil
}

func handleSummarizationChain(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	cfg := step.Config
	text := sc.Resolver.ResolveString(configString(cfg, "text", "{{_all}}"), sc.Inputs)
	length := configString(cfg, "length", "medium")

	prompt := fmt.Sprintf("Write a %s summary of the following text:\n\n%v", length, text)
	return complete(ctx, sc, configString(cfg, "model", ""), prompt, configInt(cfg, "maxTokens", 1000), 0.5)
}

func handleTextClassifier(ctx context.Context, step *Step, sc *StepContext) (interface{}, error) {
	cfg := step.Config
	text := sc.Resolver.ResolveString(configString(cfg, "text", "{{_all}}"), sc.Inputs)

	categories := []interface{}{"positive", "negative", "neutral"}
	if raw, ok := cfg["categories"].([]interface{}); ok && len(raw) > 0 {
		categories = raw
	}

	quoted := make([]string, len(categories))
	for i, c := range categories {
		quoted[i] = fmt.Sprintf("%q", fmt.Sprintf("%v", c))
	}
	prompt := fmt.Sprintf("Classify the following text into one of these categories: [%s]. "+
		"Respond with a JSON object {\"category\": string, \"confidence\": number between 0 and 1, \"explanation\": string}.\n\nText:\n%v",
		strings.Join(quoted, ", "), text)

	resp, err := complete(ctx, sc, configString(cfg, "model", ""), prompt, configInt(cfg, "maxTokens", 500), 0.2)
	if err != nil {
		return nil, err
	}

	parsed, err := schema.ExtractJSON(resp)
	if err != nil {
		first := ""
		if len(categories) > 0 {
			first = fmt.Sprintf("%v", categories[0])
		}
		return map[string]interface{}{"category": first, "confidence": 0, "explanation": resp}, nil
	}
	return parsed, nil
}
