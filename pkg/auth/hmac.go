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

// Package auth implements request authentication for the Smartly Bridge:
// HMAC-signed requests with timestamp tolerance, single-use nonces, a
// sliding-window rate limit and a trust-proxy policy for source-IP
// resolution.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Header names of the HMAC contract.
const (
	HeaderClientID   = "X-Client-Id"
	HeaderTimestamp  = "X-Timestamp"
	HeaderNonce      = "X-Nonce"
	HeaderSignature  = "X-Signature"
	HeaderInstanceID = "X-HA-Instance-Id"
)

// ComputeSignature returns the lowercase hex HMAC-SHA256 over the canonical
// string
//
//	METHOD "\n" PATH_WITH_QUERY "\n" TIMESTAMP "\n" NONCE "\n" SHA256_HEX(body)
//
// pathWithQuery must be the request-line target exactly as received; no
// re-encoding of query values.
func ComputeSignature(secret, method, pathWithQuery, timestamp, nonce string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	message := fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		method, pathWithQuery, timestamp, nonce, hex.EncodeToString(bodyHash[:]))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))

	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the expected signature and compares it to the
// provided one in constant time.
func VerifySignature(secret, method, pathWithQuery, timestamp, nonce string, body []byte, provided string) bool {
	expected := ComputeSignature(secret, method, pathWithQuery, timestamp, nonce, body)

	return hmac.Equal([]byte(expected), []byte(provided))
}
