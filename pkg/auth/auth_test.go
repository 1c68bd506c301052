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
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestVerifier(t *testing.T, cidrs string, mode models.TrustProxyMode) *Verifier {
	t.Helper()

	parsed, err := ParseCIDRs(cidrs)
	require.NoError(t, err)

	creds := &models.Credentials{
		ClientID:       "smartly_client",
		ClientSecret:   testSecret,
		TrustProxyMode: mode,
		ParsedCIDRs:    parsed,
	}

	return NewVerifier(creds, NewNonceCache(), NewRateLimiter())
}

func signedRequest(method, target string, body []byte, nonce string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	r.RemoteAddr = "203.0.113.10:43210"

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	r.Header.Set(HeaderClientID, "smartly_client")
	r.Header.Set(HeaderTimestamp, ts)
	r.Header.Set(HeaderNonce, nonce)
	r.Header.Set(HeaderSignature, ComputeSignature(testSecret, method, r.URL.RequestURI(), ts, nonce, body))

	return r
}

func TestComputeSignatureReference(t *testing.T) {
	// Signature over an empty body uses SHA256("").
	sig := ComputeSignature("secret", "GET", "/api/smartly/sync/states", "1700000000", "n1", nil)

	assert.Len(t, sig, 64)
	assert.Equal(t, sig, ComputeSignature("secret", "GET", "/api/smartly/sync/states", "1700000000", "n1", []byte{}))
}

func TestVerifyAcceptsValidRequest(t *testing.T) {
	v := newTestVerifier(t, "", models.TrustProxyNever)

	body := []byte(`{"entity_id":"light.bedroom"}`)
	r := signedRequest(http.MethodPost, "/api/smartly/control", body, "nonce-1")

	res := v.Verify(r, body)
	require.True(t, res.OK, "error: %s", res.Error)
	assert.Equal(t, "smartly_client", res.ClientID)
	assert.Equal(t, "203.0.113.10", res.SourceIP)
}

func TestVerifySingleByteMutationFails(t *testing.T) {
	body := []byte(`{"entity_id":"light.bedroom"}`)

	mutations := []func(r *http.Request) ([]byte, *http.Request){
		func(r *http.Request) ([]byte, *http.Request) { // body flip
			mutated := append([]byte{}, body...)
			mutated[0] ^= 0x01
			return mutated, r
		},
		func(r *http.Request) ([]byte, *http.Request) { // nonce flip (fresh value, still signed for old)
			r.Header.Set(HeaderNonce, "nonce-x")
			return body, r
		},
		func(r *http.Request) ([]byte, *http.Request) { // timestamp shift within tolerance
			ts, _ := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
			r.Header.Set(HeaderTimestamp, strconv.FormatInt(ts+1, 10))
			return body, r
		},
	}

	for i, mutate := range mutations {
		v := newTestVerifier(t, "", models.TrustProxyNever)
		r := signedRequest(http.MethodPost, "/api/smartly/control", body, fmt.Sprintf("nonce-%d", i))

		mutatedBody, mutatedReq := mutate(r)
		res := v.Verify(mutatedReq, mutatedBody)

		require.False(t, res.OK, "mutation %d accepted", i)
		assert.Equal(t, models.ErrInvalidSignature, res.Error)
		assert.Equal(t, http.StatusUnauthorized, res.Status)
	}
}

func TestVerifyQueryStringIsSigned(t *testing.T) {
	v := newTestVerifier(t, "", models.TrustProxyNever)

	r := signedRequest(http.MethodGet, "/api/smartly/history/sensor.temp?start_time=2026-01-01T00:00:00Z", nil, "n-q")
	res := v.Verify(r, nil)
	require.True(t, res.OK)

	// Same signature presented against a different query must fail.
	r2 := httptest.NewRequest(http.MethodGet, "/api/smartly/history/sensor.temp?start_time=2026-02-01T00:00:00Z", nil)
	r2.RemoteAddr = r.RemoteAddr
	r2.Header = r.Header.Clone()
	r2.Header.Set(HeaderNonce, "n-q2")
	ts := r2.Header.Get(HeaderTimestamp)
	r2.Header.Set(HeaderSignature, ComputeSignature(testSecret, http.MethodGet,
		"/api/smartly/history/sensor.temp?start_time=2026-01-01T00:00:00Z", ts, "n-q2", nil))

	res2 := v.Verify(r2, nil)
	assert.Equal(t, models.ErrInvalidSignature, res2.Error)
}

func TestVerifyMissingHeaders(t *testing.T) {
	v := newTestVerifier(t, "", models.TrustProxyNever)

	r := httptest.NewRequest(http.MethodGet, "/api/smartly/sync/states", nil)
	r.RemoteAddr = "203.0.113.10:1"

	res := v.Verify(r, nil)
	assert.Equal(t, models.ErrMissingHeaders, res.Error)
}

func TestVerifyWrongClientID(t *testing.T) {
	v := newTestVerifier(t, "", models.TrustProxyNever)

	r := signedRequest(http.MethodGet, "/api/smartly/sync/states", nil, "n-c")
	r.Header.Set(HeaderClientID, "someone_else")

	res := v.Verify(r, nil)
	assert.Equal(t, models.ErrInvalidClientID, res.Error)
}

func TestVerifyStaleTimestamp(t *testing.T) {
	v := newTestVerifier(t, "", models.TrustProxyNever)

	r := httptest.NewRequest(http.MethodGet, "/api/smartly/sync/states", nil)
	r.RemoteAddr = "203.0.113.10:1"

	ts := strconv.FormatInt(time.Now().Add(-time.Minute).Unix(), 10)
	r.Header.Set(HeaderClientID, "smartly_client")
	r.Header.Set(HeaderTimestamp, ts)
	r.Header.Set(HeaderNonce, "n-t")
	r.Header.Set(HeaderSignature, ComputeSignature(testSecret, http.MethodGet, r.URL.RequestURI(), ts, "n-t", nil))

	res := v.Verify(r, nil)
	assert.Equal(t, models.ErrInvalidTimestamp, res.Error)
}

func TestVerifyNonceSingleUse(t *testing.T) {
	v := newTestVerifier(t, "", models.TrustProxyNever)

	first := signedRequest(http.MethodGet, "/api/smartly/sync/states", nil, "replay-me")
	res := v.Verify(first, nil)
	require.True(t, res.OK)

	second := signedRequest(http.MethodGet, "/api/smartly/sync/states", nil, "replay-me")
	res2 := v.Verify(second, nil)
	assert.Equal(t, models.ErrNonceReused, res2.Error)
	assert.Equal(t, http.StatusUnauthorized, res2.Status)
}

func TestVerifyCIDRFilter(t *testing.T) {
	v := newTestVerifier(t, "10.0.0.0/8", models.TrustProxyNever)

	r := signedRequest(http.MethodGet, "/api/smartly/sync/states", nil, "n-ip")
	res := v.Verify(r, nil)
	assert.Equal(t, models.ErrIPNotAllowed, res.Error)

	allowed := signedRequest(http.MethodGet, "/api/smartly/sync/states", nil, "n-ip2")
	allowed.RemoteAddr = "10.1.2.3:999"
	res2 := v.Verify(allowed, nil)
	assert.True(t, res2.OK)
}

func TestVerifyRateLimit(t *testing.T) {
	v := newTestVerifier(t, "", models.TrustProxyNever)

	for i := 0; i < RateLimit; i++ {
		r := signedRequest(http.MethodGet, "/api/smartly/sync/states", nil, fmt.Sprintf("rl-%d", i))
		res := v.Verify(r, nil)
		require.True(t, res.OK, "request %d rejected: %s", i, res.Error)
	}

	r := signedRequest(http.MethodGet, "/api/smartly/sync/states", nil, "rl-final")
	res := v.Verify(r, nil)
	assert.Equal(t, models.ErrRateLimited, res.Error)
	assert.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestNonceCacheTTLExpiry(t *testing.T) {
	cache := NewNonceCache()

	base := time.Now()
	cache.now = func() time.Time { return base }

	require.True(t, cache.CheckAndAdd("n"))
	require.False(t, cache.CheckAndAdd("n"))

	// After TTL the nonce is reusable again.
	cache.now = func() time.Time { return base.Add(NonceTTL + time.Second) }
	assert.True(t, cache.CheckAndAdd("n"))
}

func TestNonceCacheSweep(t *testing.T) {
	cache := NewNonceCache()

	base := time.Now()
	cache.now = func() time.Time { return base }
	cache.CheckAndAdd("old")

	cache.now = func() time.Time { return base.Add(NonceTTL + time.Minute) }
	cache.CheckAndAdd("fresh")

	assert.Equal(t, 1, cache.Sweep())
	assert.Equal(t, 1, cache.Len())
}

func TestRateLimiterWindowSlides(t *testing.T) {
	limiter := NewRateLimiter()

	base := time.Now()
	limiter.now = func() time.Time { return base }

	for i := 0; i < RateLimit; i++ {
		require.True(t, limiter.Allow("c"))
	}

	require.False(t, limiter.Allow("c"))
	assert.Equal(t, RateWindow, limiter.RetryAfter("c").Round(time.Second))

	// Once the oldest entry ages out, one slot reopens.
	limiter.now = func() time.Time { return base.Add(RateWindow + time.Second) }
	assert.True(t, limiter.Allow("c"))
}

func TestRateLimiterRemaining(t *testing.T) {
	limiter := NewRateLimiter()

	assert.Equal(t, RateLimit, limiter.Remaining("c"))
	limiter.Allow("c")
	assert.Equal(t, RateLimit-1, limiter.Remaining("c"))
}

func TestSourceIPTrustProxyModes(t *testing.T) {
	publicCIDRs, err := ParseCIDRs("203.0.113.0/24")
	require.NoError(t, err)

	privateCIDRs, err := ParseCIDRs("192.168.0.0/16")
	require.NoError(t, err)

	newReq := func(peer, xff string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/smartly/sync/states", nil)
		r.RemoteAddr = peer
		if xff != "" {
			r.Header.Set("X-Forwarded-For", xff)
		}
		return r
	}

	// never: always the direct peer.
	r := newReq("192.168.1.5:10", "203.0.113.9")
	assert.Equal(t, "192.168.1.5", SourceIP(r, models.TrustProxyNever, publicCIDRs))

	// always: first X-Forwarded-For element when present.
	r = newReq("192.168.1.5:10", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", SourceIP(r, models.TrustProxyAlways, nil))

	// always without header falls back to the peer.
	r = newReq("192.168.1.5:10", "")
	assert.Equal(t, "192.168.1.5", SourceIP(r, models.TrustProxyAlways, nil))

	// auto + private peer + public whitelist: trust the header.
	r = newReq("127.0.0.1:10", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", SourceIP(r, models.TrustProxyAuto, publicCIDRs))

	// auto + public peer: never trust the header.
	r = newReq("198.51.100.7:10", "203.0.113.9")
	assert.Equal(t, "198.51.100.7", SourceIP(r, models.TrustProxyAuto, publicCIDRs))

	// auto + private peer + private-only whitelist: header is forgeable.
	r = newReq("192.168.1.5:10", "203.0.113.9")
	assert.Equal(t, "192.168.1.5", SourceIP(r, models.TrustProxyAuto, privateCIDRs))
}

func TestParseCIDRs(t *testing.T) {
	nets, err := ParseCIDRs(" 10.0.0.0/8 , 203.0.113.7 ")
	require.NoError(t, err)
	require.Len(t, nets, 2)
	assert.True(t, IPAllowed("203.0.113.7", nets))
	assert.False(t, IPAllowed("203.0.113.8", nets))

	_, err = ParseCIDRs("not-a-cidr/99")
	assert.Error(t, err)
}

func TestSignOutboundHeaders(t *testing.T) {
	body := []byte(`{"events":[]}`)
	headers := SignOutbound(testSecret, "instance-1", "smartly_client", http.MethodPost, "/events", body)

	require.NotEmpty(t, headers.Get(HeaderTimestamp))
	require.NotEmpty(t, headers.Get(HeaderNonce))
	assert.Equal(t, "instance-1", headers.Get(HeaderInstanceID))
	assert.Equal(t, "smartly_client", headers.Get(HeaderClientID))

	expected := ComputeSignature(testSecret, http.MethodPost, "/events",
		headers.Get(HeaderTimestamp), headers.Get(HeaderNonce), body)
	assert.Equal(t, expected, headers.Get(HeaderSignature))
}
