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

// Package webhookauth verifies the X-Webhook-Signature header the
// TriggerGateway requires on a webhook_trigger whose config carries a
// secret.
package webhookauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	flowerrors "github.com/tombee/flowengine/pkg/errors"
)

const signatureHeader = "X-Webhook-Signature"

// Verify checks r's X-Webhook-Signature header against the HMAC-SHA256
// of body keyed by secret, in constant time. If secret is empty no
// signature is required and Verify always succeeds.
func Verify(r *http.Request, body []byte, secret string) error {
	if secret == "" {
		return nil
	}

	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		return flowerrors.NewWorkflowError(flowerrors.KindWebhookSignatureMissing,
			"request is missing the "+signatureHeader+" header")
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return flowerrors.NewWorkflowError(flowerrors.KindWebhookSignatureInvalid,
			"webhook signature does not match")
	}
	return nil
}
