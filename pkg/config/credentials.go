/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

const (
	clientIDPrefix    = "ha_"
	clientIDBytes     = 16
	clientSecretBytes = 32
)

func randomToken(n int) string {
	raw := make([]byte, n)
	_, _ = rand.Read(raw)

	return base64.RawURLEncoding.EncodeToString(raw)
}

// GenerateClientID produces a new prefixed client id.
func GenerateClientID() string {
	return clientIDPrefix + randomToken(clientIDBytes)
}

// GenerateClientSecret produces a new URL-safe secret of at least 32
// random bytes.
func GenerateClientSecret() string {
	return randomToken(clientSecretBytes)
}

// EnsureCredentials fills in missing generated fields. It returns true
// when anything was generated, so the host can persist the record.
// Regenerating the secret elsewhere invalidates the previous one
// immediately: the verifier reads the credential record it was built with.
func EnsureCredentials(creds *models.Credentials) bool {
	changed := false

	if creds.ClientID == "" {
		creds.ClientID = GenerateClientID()
		changed = true
	}

	if creds.ClientSecret == "" {
		creds.ClientSecret = GenerateClientSecret()
		changed = true
	}

	if creds.InstanceID == "" {
		creds.InstanceID = randomToken(8)
		changed = true
	}

	return changed
}
