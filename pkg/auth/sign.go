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

package auth

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SignOutbound produces the header set for a push delivery to the platform
// webhook. path is the URL path without query string; the platform verifies
// the same canonical string as inbound requests.
func SignOutbound(secret, instanceID, clientID, method, path string, body []byte) http.Header {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	nonce := uuid.NewString()

	signature := ComputeSignature(secret, method, path, timestamp, nonce, body)

	headers := http.Header{}
	headers.Set(HeaderTimestamp, timestamp)
	headers.Set(HeaderNonce, nonce)
	headers.Set(HeaderSignature, signature)
	headers.Set(HeaderInstanceID, instanceID)
	headers.Set("Content-Type", "application/json")

	if clientID != "" {
		headers.Set(HeaderClientID, clientID)
	}

	return headers
}
