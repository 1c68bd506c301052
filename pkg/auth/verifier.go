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
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

// TimestampTolerance is the maximum clock skew accepted on X-Timestamp.
const TimestampTolerance = 30 * time.Second

// Result is the outcome of request verification.
type Result struct {
	OK        bool
	Error     string // one of the models error kinds; empty on success
	Status    int    // HTTP status to return on failure
	ClientID  string
	SourceIP  string
	Remaining  int           // rate-limit remaining, valid on success and on rate_limited
	RetryAfter time.Duration // non-zero only for rate_limited
}

// Verifier authenticates inbound requests against a credential record. It
// owns no goroutines; the nonce cache sweeper runs separately.
type Verifier struct {
	clientID string
	secret   string
	cidrs    []*net.IPNet
	mode     models.TrustProxyMode
	nonces   *NonceCache
	limiter  *RateLimiter
	now      func() time.Time
}

// NewVerifier wires a verifier to per-instance nonce and rate-limit state.
func NewVerifier(creds *models.Credentials, nonces *NonceCache, limiter *RateLimiter) *Verifier {
	return &Verifier{
		clientID: creds.ClientID,
		secret:   creds.ClientSecret,
		cidrs:    creds.ParsedCIDRs,
		mode:     creds.TrustProxyMode,
		nonces:   nonces,
		limiter:  limiter,
		now:      time.Now,
	}
}

// Verify runs the verification chain in order, failing fast: CIDR filter,
// header presence, client match, timestamp skew, nonce freshness, signature,
// rate limit. body must be the exact request body bytes.
func (v *Verifier) Verify(r *http.Request, body []byte) Result {
	sourceIP := SourceIP(r, v.mode, v.cidrs)

	if !IPAllowed(sourceIP, v.cidrs) {
		return Result{Error: models.ErrIPNotAllowed, Status: http.StatusUnauthorized, SourceIP: sourceIP}
	}

	clientID := r.Header.Get(HeaderClientID)
	timestamp := r.Header.Get(HeaderTimestamp)
	nonce := r.Header.Get(HeaderNonce)
	signature := r.Header.Get(HeaderSignature)

	if clientID == "" || timestamp == "" || nonce == "" || signature == "" {
		return Result{Error: models.ErrMissingHeaders, Status: http.StatusUnauthorized, SourceIP: sourceIP}
	}

	if clientID != v.clientID {
		return Result{Error: models.ErrInvalidClientID, Status: http.StatusUnauthorized, SourceIP: sourceIP}
	}

	if !v.timestampFresh(timestamp) {
		return Result{Error: models.ErrInvalidTimestamp, Status: http.StatusUnauthorized, ClientID: clientID, SourceIP: sourceIP}
	}

	if !v.nonces.CheckAndAdd(nonce) {
		return Result{Error: models.ErrNonceReused, Status: http.StatusUnauthorized, ClientID: clientID, SourceIP: sourceIP}
	}

	if !VerifySignature(v.secret, r.Method, r.URL.RequestURI(), timestamp, nonce, body, signature) {
		return Result{Error: models.ErrInvalidSignature, Status: http.StatusUnauthorized, ClientID: clientID, SourceIP: sourceIP}
	}

	if !v.limiter.Allow(clientID) {
		return Result{
			Error:      models.ErrRateLimited,
			Status:     http.StatusTooManyRequests,
			ClientID:   clientID,
			SourceIP:   sourceIP,
			RetryAfter: v.limiter.RetryAfter(clientID),
		}
	}

	return Result{OK: true, ClientID: clientID, SourceIP: sourceIP, Remaining: v.limiter.Remaining(clientID)}
}

// Limiter exposes the rate limiter for response headers.
func (v *Verifier) Limiter() *RateLimiter { return v.limiter }

func (v *Verifier) timestampFresh(raw string) bool {
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}

	skew := v.now().Unix() - ts
	if skew < 0 {
		skew = -skew
	}

	return time.Duration(skew)*time.Second <= TimestampTolerance
}
