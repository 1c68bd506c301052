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

package webrtc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartlyhq/smartly-bridge/pkg/logger"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

func TestTokenSingleUse(t *testing.T) {
	m := NewManager(logger.NewTestLogger())

	token := m.GenerateToken("camera.front_door", "smartly_client")
	require.NotEmpty(t, token.Token)
	// 32 random bytes encode to 43 URL-safe characters.
	assert.GreaterOrEqual(t, len(token.Token), 43)

	session, ok := m.ConsumeToken(token.Token, "camera.front_door", "smartly_client")
	require.True(t, ok)
	assert.NotEmpty(t, session.SessionID)

	_, ok = m.ConsumeToken(token.Token, "camera.front_door", "smartly_client")
	assert.False(t, ok, "token must be single-use")
}

func TestTokenCameraBound(t *testing.T) {
	m := NewManager(logger.NewTestLogger())

	token := m.GenerateToken("camera.front_door", "smartly_client")

	_, ok := m.ConsumeToken(token.Token, "camera.backyard", "smartly_client")
	assert.False(t, ok)

	// The failed attempt must not consume the token.
	_, ok = m.ConsumeToken(token.Token, "camera.front_door", "smartly_client")
	assert.True(t, ok)
}

func TestTokenClientBound(t *testing.T) {
	m := NewManager(logger.NewTestLogger())

	token := m.GenerateToken("camera.front_door", "smartly_client")

	_, ok := m.ConsumeToken(token.Token, "camera.front_door", "other_client")
	assert.False(t, ok)
}

func TestTokenExpiry(t *testing.T) {
	m := NewManager(logger.NewTestLogger())

	base := time.Now()
	m.now = func() time.Time { return base }

	token := m.GenerateToken("camera.front_door", "smartly_client")

	m.now = func() time.Time { return base.Add(TokenTTL + time.Second) }

	_, ok := m.ConsumeToken(token.Token, "camera.front_door", "smartly_client")
	assert.False(t, ok)
}

func TestSessionScopedToCamera(t *testing.T) {
	m := NewManager(logger.NewTestLogger())

	token := m.GenerateToken("camera.front_door", "smartly_client")
	session, ok := m.ConsumeToken(token.Token, "camera.front_door", "smartly_client")
	require.True(t, ok)

	_, ok = m.Session(session.SessionID, "camera.front_door")
	assert.True(t, ok)

	_, ok = m.Session(session.SessionID, "camera.backyard")
	assert.False(t, ok, "session id must not leak across cameras")
}

func TestCloseSession(t *testing.T) {
	m := NewManager(logger.NewTestLogger())

	token := m.GenerateToken("camera.front_door", "smartly_client")
	session, _ := m.ConsumeToken(token.Token, "camera.front_door", "smartly_client")

	assert.True(t, m.CloseSession(session.SessionID, "camera.front_door"))
	assert.False(t, m.CloseSession(session.SessionID, "camera.front_door"))

	_, ok := m.Session(session.SessionID, "camera.front_door")
	assert.False(t, ok)
}

func TestSweepDropsExpiredAndIdle(t *testing.T) {
	m := NewManager(logger.NewTestLogger())

	base := time.Now()
	m.now = func() time.Time { return base }

	m.GenerateToken("camera.a", "c")
	token := m.GenerateToken("camera.b", "c")
	session, _ := m.ConsumeToken(token.Token, "camera.b", "c")

	m.now = func() time.Time { return base.Add(SessionIdleTimeout + time.Minute) }
	m.sweep()

	stats := m.Stats()
	assert.Equal(t, 0, stats["active_tokens"])
	assert.Equal(t, 0, stats["active_sessions"])

	_, ok := m.Session(session.SessionID, "camera.b")
	assert.False(t, ok)
}

func TestICEServers(t *testing.T) {
	servers := ICEServers(nil)
	require.Len(t, servers, 3)
	assert.Equal(t, "stun:stun.l.google.com:19302", servers[0]["urls"])

	withTURN := ICEServers(&models.TURNConfig{URL: "turn:relay:3478", Username: "u", Credential: "c"})
	require.Len(t, withTURN, 4)
	assert.Equal(t, "turn:relay:3478", withTURN[3]["urls"])

	// Incomplete TURN config is ignored.
	partial := ICEServers(&models.TURNConfig{URL: "turn:relay:3478"})
	assert.Len(t, partial, 3)
}

func TestGo2RTCOfferAndAutoRegister(t *testing.T) {
	known := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/webrtc":
			if !known {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			assert.Equal(t, "camera.front_door", r.URL.Query().Get("src"))

			var offer sdpPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&offer))
			assert.Equal(t, "offer", offer.Type)

			_ = json.NewEncoder(w).Encode(sdpPayload{Type: "answer", SDP: "v=0\r\nanswer"})
		case r.Method == http.MethodPut && r.URL.Path == "/api/streams":
			assert.Equal(t, "camera.front_door", r.URL.Query().Get("name"))
			assert.Equal(t, "rtsp://cam/stream", r.URL.Query().Get("src"))
			known = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	client := NewGo2RTCClient(server.URL)

	// First offer: stream unknown.
	_, err := client.Offer(context.Background(), "camera.front_door", "v=0\r\noffer")
	require.ErrorIs(t, err, ErrStreamUnknown)

	// Register, then retry succeeds.
	require.NoError(t, client.RegisterStream(context.Background(), "camera.front_door", "rtsp://cam/stream"))

	answer, err := client.Offer(context.Background(), "camera.front_door", "v=0\r\noffer")
	require.NoError(t, err)
	assert.Equal(t, "v=0\r\nanswer", answer)
}

func TestGo2RTCUnavailable(t *testing.T) {
	client := NewGo2RTCClient("http://127.0.0.1:1") // nothing listens here

	_, err := client.Offer(context.Background(), "camera.x", "sdp")
	assert.ErrorIs(t, err, ErrGo2RTCUnavailable)
}

func TestGo2RTCCandidate(t *testing.T) {
	var received map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewGo2RTCClient(server.URL)

	err := client.Candidate(context.Background(), "camera.x", map[string]interface{}{
		"candidate":     "candidate:1 1 UDP ...",
		"sdpMid":        "0",
		"sdpMLineIndex": float64(0),
	})
	require.NoError(t, err)
	assert.Equal(t, "candidate", received["type"])
	assert.Equal(t, "candidate:1 1 UDP ...", received["candidate"])
}
