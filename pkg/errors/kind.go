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

package errors

import "fmt"

// Kind is a stable, engine-level error classification. Kinds are never
// renamed across releases: callers match on them instead of parsing
// prose messages.
type Kind string

const (
	KindWorkflowNotFound       Kind = "WORKFLOW_NOT_FOUND"
	KindStepNotFound           Kind = "STEP_NOT_FOUND"
	KindCycleDetected          Kind = "CYCLE_DETECTED"
	KindTypeError              Kind = "TYPE_ERROR"
	KindBranchUnresolved       Kind = "BRANCH_UNRESOLVED"
	KindSandboxError           Kind = "SANDBOX_ERROR"
	KindSandboxTimeout         Kind = "SANDBOX_TIMEOUT"
	KindLLMError               Kind = "LLM_ERROR"
	KindWebhookSignatureMissing Kind = "WEBHOOK_SIGNATURE_MISSING"
	KindWebhookSignatureInvalid Kind = "WEBHOOK_SIGNATURE_INVALID"
	KindCancelled              Kind = "CANCELLED"
	KindDeadlineExceeded       Kind = "DEADLINE_EXCEEDED"
	KindValidation             Kind = "VALIDATION_ERROR"
)

// WorkflowError is an engine-level error tagged with a stable Kind.
// StepID and WorkflowID are best-effort context, populated when the
// failure originates from a specific step or run.
type WorkflowError struct {
	Kind       Kind
	Message    string
	WorkflowID string
	StepID     string
	Cause      error
}

// Error implements the error interface. The kind name is always present
// in the message so callers that only inspect strings (property tests,
// HTTP clients) can still detect it without importing this package.
func (e *WorkflowError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("%s: %s (step %s)", e.Kind, e.Message, e.StepID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *WorkflowError) ErrorType() string {
	return string(e.Kind)
}

// IsRetryable implements ErrorClassifier. Only transient provider and
// sandbox-timeout failures are worth a caller-level retry.
func (e *WorkflowError) IsRetryable() bool {
	switch e.Kind {
	case KindLLMError, KindSandboxTimeout:
		return true
	default:
		return false
	}
}

// IsUserVisible implements UserVisibleError. Every WorkflowError carries
// a message worth showing a CLI operator directly.
func (e *WorkflowError) IsUserVisible() bool {
	return true
}

// UserMessage implements UserVisibleError.
func (e *WorkflowError) UserMessage() string {
	return e.Message
}

// Suggestion implements UserVisibleError, offering actionable guidance
// for the Kinds a CLI operator can act on directly.
func (e *WorkflowError) Suggestion() string {
	switch e.Kind {
	case KindWorkflowNotFound:
		return "check the id against `flowengined workflow export <id>` or the workflow list API"
	case KindStepNotFound:
		return "the referenced step id is not present in this workflow's graph"
	case KindValidation, KindTypeError:
		return "check the request body against the workflow/step schema"
	case KindWebhookSignatureMissing, KindWebhookSignatureInvalid:
		return "set X-Webhook-Signature to HMAC-SHA256(secret, body)"
	case KindDeadlineExceeded:
		return "the run exceeded RUN_TIMEOUT_SECONDS; split the workflow or raise the timeout"
	default:
		return ""
	}
}

// NewWorkflowError constructs a WorkflowError of the given kind.
func NewWorkflowError(kind Kind, message string) *WorkflowError {
	return &WorkflowError{Kind: kind, Message: message}
}

// WrapWorkflowError constructs a WorkflowError wrapping cause.
func WrapWorkflowError(kind Kind, message string, cause error) *WorkflowError {
	return &WorkflowError{Kind: kind, Message: message, Cause: cause}
}

// WithStep returns a copy of e annotated with the step id it failed on.
func (e *WorkflowError) WithStep(stepID string) *WorkflowError {
	cp := *e
	cp.StepID = stepID
	return &cp
}

// KindOf returns the Kind of err if it is (or wraps) a *WorkflowError,
// and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var we *WorkflowError
	if As(err, &we) {
		return we.Kind, true
	}
	return "", false
}
