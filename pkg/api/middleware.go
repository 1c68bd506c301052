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

package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/smartlyhq/smartly-bridge/pkg/auth"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

// authContext carries the verified identity and the request body into a
// handler. The body is read once for signature verification and handed
// over so handlers never re-read it.
type authContext struct {
	ClientID string
	SourceIP string
	Body     []byte
}

type authedHandler func(w http.ResponseWriter, r *http.Request, actx *authContext)

// authenticated wraps a handler with the AuthGate. Every verification
// failure produces {error: kind} at the stated status, an audit record and
// no side effects.
func (s *Server) authenticated(endpoint string, next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.verifier == nil {
			writeError(w, models.ErrIntegrationNotConfigured, http.StatusInternalServerError)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, models.ErrInternalServerError, http.StatusInternalServerError)
			return
		}

		result := s.verifier.Verify(r, body)

		if !result.OK {
			clientID := result.ClientID
			if clientID == "" {
				clientID = r.Header.Get(auth.HeaderClientID)
			}

			if result.Error == models.ErrRateLimited {
				s.aud.RateLimit(clientID, endpoint, result.SourceIP)

				limiter := s.verifier.Limiter()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(result)))
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(auth.RateLimit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(clientID)))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(limiter.Reset(clientID), 10))
			} else {
				s.aud.Deny(clientID, "", endpoint, result.Error, result.SourceIP, nil)
			}

			writeError(w, result.Error, result.Status)

			return
		}

		next(w, r, &authContext{ClientID: result.ClientID, SourceIP: result.SourceIP, Body: body})
	}
}

func retryAfterSeconds(result auth.Result) int {
	seconds := int(result.RetryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	return seconds
}
