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

package secrets

import (
	"encoding/base64"
	"fmt"
)

// Cipher seals and opens a Credential's Secret field on its way to and
// from Store.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

// clearCipher stores secrets unencrypted. Used only when the operator
// has neither set CREDENTIAL_SECRET_KEY nor opted into the OS keychain.
type clearCipher struct{}

func (clearCipher) Encrypt(plaintext string) (string, error) { return plaintext, nil }
func (clearCipher) Decrypt(encoded string) (string, error)   { return encoded, nil }

// ResolveCipher builds the Cipher the CREDENTIAL_SECRET_KEY/
// CREDENTIAL_BACKEND policy selects:
//
//   - secretKeyB64 set: use it directly as the ChaCha20-Poly1305 key.
//   - otherwise, backend == "keyring": derive the key from the OS
//     keychain, generating and persisting one on first use.
//   - otherwise: store credential secrets unencrypted. warning is
//     non-empty in this case; the caller should log it at startup.
func ResolveCipher(secretKeyB64, backend string) (cipher Cipher, warning string, err error) {
	if secretKeyB64 != "" {
		key, err := base64.StdEncoding.DecodeString(secretKeyB64)
		if err != nil {
			return nil, "", fmt.Errorf("secrets: CREDENTIAL_SECRET_KEY is not valid base64: %w", err)
		}
		if len(key) != keyLength {
			return nil, "", fmt.Errorf("secrets: CREDENTIAL_SECRET_KEY has wrong length %d, want %d bytes", len(key), keyLength)
		}
		enc, err := NewEncryptor(key)
		if err != nil {
			return nil, "", err
		}
		return enc, "", nil
	}

	if backend == "keyring" {
		key, err := LoadOrCreateMasterKey()
		if err != nil {
			return nil, "", err
		}
		enc, err := NewEncryptor(key)
		if err != nil {
			return nil, "", err
		}
		return enc, "", nil
	}

	return clearCipher{}, "CREDENTIAL_BACKEND is not \"keyring\" and CREDENTIAL_SECRET_KEY is unset: credential secrets will be stored in the clear", nil
}
