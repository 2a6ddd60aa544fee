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

// Package secrets encrypts credential secrets before they reach Store,
// so a stolen database file or backup does not expose API keys in
// plaintext. ResolveCipher takes the encryption key from
// CREDENTIAL_SECRET_KEY or, with CREDENTIAL_BACKEND=keyring, from the OS
// keychain (macOS Keychain, Secret Service, Credential Manager); with
// neither, secrets are stored in the clear.
package secrets

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "flowengine"
	keyringAccount = "credential-encryption-key"
	keyLength      = 32 // chacha20poly1305.KeySize
)

// LoadOrCreateMasterKey returns the 32-byte key used to encrypt
// credential secrets at rest, generating and persisting one to the OS
// keychain on first use.
func LoadOrCreateMasterKey() ([]byte, error) {
	encoded, err := keyring.Get(keyringService, keyringAccount)
	if err == nil {
		key := []byte(encoded)
		if len(key) != keyLength {
			return nil, fmt.Errorf("secrets: stored master key has wrong length %d, want %d", len(key), keyLength)
		}
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("secrets: reading master key from keychain: %w", err)
	}

	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("secrets: generating master key: %w", err)
	}
	if err := keyring.Set(keyringService, keyringAccount, string(key)); err != nil {
		return nil, fmt.Errorf("secrets: storing master key in keychain: %w", err)
	}
	return key, nil
}
