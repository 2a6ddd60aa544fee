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

// TriggerType identifies which of the four admission shapes produced a
// TriggerEnvelope.
type TriggerType string

const (
	TriggerManual   TriggerType = "manual"
	TriggerWebhook  TriggerType = "webhook"
	TriggerAppEvent TriggerType = "app_event"
	TriggerWorkflow TriggerType = "workflow"
)

// TriggerEnvelope is the admission-time payload handed to Engine.StartRun.
// Only the fields relevant to Type are populated.
type TriggerEnvelope struct {
	Type TriggerType

	// Webhook fields. WebhookID is the URL path id the gateway resolved
	// the request to; Headers/Query are the raw request metadata.
	WebhookID string
	Payload   map[string]interface{}
	Headers   map[string]string
	Query     map[string]string

	// AppEvent fields.
	EventType string

	// Workflow-chain fields.
	SourceWorkflowID  string
	SourceExecutionID string
	Outputs           map[string]interface{}
}

// Fields returns the envelope's payload as the map merged into the
// trigger step's seeded output alongside {triggered: true, triggerType}.
func (e TriggerEnvelope) Fields() map[string]interface{} {
	fields := map[string]interface{}{}
	switch e.Type {
	case TriggerWebhook:
		fields["payload"] = e.Payload
		fields["headers"] = e.Headers
		fields["query"] = e.Query
	case TriggerAppEvent:
		fields["eventType"] = e.EventType
		fields["payload"] = e.Payload
	case TriggerWorkflow:
		fields["sourceWorkflowId"] = e.SourceWorkflowID
		fields["sourceExecutionId"] = e.SourceExecutionID
	}
	return fields
}

// matchesTriggerStep reports whether step is the trigger step this
// envelope admits into.
func (e TriggerEnvelope) matchesTriggerStep(step *Step) bool {
	switch e.Type {
	case TriggerManual:
		return step.Kind == KindManualTrigger
	case TriggerWebhook:
		if step.Kind != KindWebhookTrigger {
			return false
		}
		webhookID, _ := step.Config["webhookId"].(string)
		return webhookID != "" && webhookID == e.WebhookID
	case TriggerAppEvent:
		if step.Kind != KindAppEventTrigger {
			return false
		}
		eventType, _ := step.Config["eventType"].(string)
		return eventType == e.EventType
	case TriggerWorkflow:
		return step.Kind == KindWorkflowTrigger
	default:
		return false
	}
}
