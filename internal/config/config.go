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

// Package config loads the engine's process configuration from the
// environment, layering defaults under whatever the environment sets.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full set of process-level settings the engine reads at
// startup. CLI flags, where the entrypoint offers them, override the
// corresponding field after Load returns.
type Config struct {
	// ListenAddr is the address the HTTP API server binds to.
	ListenAddr string

	// DatabaseURL selects the Store backend. Empty (or "memory://")
	// selects the in-memory store; a "sqlite://" or filesystem path
	// selects the SQLite-backed store.
	DatabaseURL string

	// AnthropicAPIKey, if set, is used ahead of any stored credential.
	AnthropicAPIKey string

	// SandboxTimeout bounds a single SandboxedExpr evaluation.
	SandboxTimeout time.Duration

	// RunTimeout bounds a single run's total wall-clock time. A run
	// still executing when this fires fails its current step with
	// DEADLINE_EXCEEDED.
	RunTimeout time.Duration

	// MaxConcurrentAsyncRuns bounds runs admitted through the
	// asynchronous trigger paths (webhook, app_event, workflow chain).
	MaxConcurrentAsyncRuns int

	// CredentialSecretKey, if set, is a base64-encoded 32-byte key used
	// directly to encrypt credential secrets at rest, bypassing the OS
	// keychain entirely.
	CredentialSecretKey string

	// CredentialBackend selects how the credential-encryption key is
	// sourced when CredentialSecretKey is unset: "keyring" uses the OS
	// keychain; anything else stores credential secrets unencrypted.
	CredentialBackend string

	// LogFormat is "json" or "text".
	LogFormat string

	// LogLevel is one of "trace", "debug", "info", "warn", "error".
	LogLevel string
}

// Load reads Config from the environment, applying defaults for
// anything unset.
func Load() Config {
	return Config{
		ListenAddr:             getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		AnthropicAPIKey:        getEnv("ANTHROPIC_API_KEY", ""),
		SandboxTimeout:         getEnvDuration("SANDBOX_TIMEOUT_MS", 2*time.Second),
		RunTimeout:             getEnvSeconds("RUN_TIMEOUT_SECONDS", 5*time.Minute),
		MaxConcurrentAsyncRuns: getEnvInt("MAX_CONCURRENT_ASYNC_RUNS", 32),
		CredentialSecretKey:    getEnv("CREDENTIAL_SECRET_KEY", ""),
		CredentialBackend:      getEnv("CREDENTIAL_BACKEND", ""),
		LogFormat:              getEnv("LOG_FORMAT", "json"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func getEnvSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if s, err := strconv.Atoi(v); err == nil && s > 0 {
			return time.Duration(s) * time.Second
		}
	}
	return def
}
