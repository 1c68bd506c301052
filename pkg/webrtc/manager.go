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

// Package webrtc brokers WebRTC signalling between the platform and the
// local media server. The platform authenticates once over HMAC to obtain
// a single-use token; the SDP exchange consumes the token and yields a
// session id, which is the capability for ICE and hangup.
package webrtc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/smartlyhq/smartly-bridge/pkg/logger"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

const (
	// TokenTTL is how long an unconsumed token stays valid.
	TokenTTL = 5 * time.Minute
	// SessionIdleTimeout drops sessions with no ICE or hangup activity.
	SessionIdleTimeout = 10 * time.Minute
	// tokenBytes yields a 256-bit token.
	tokenBytes = 32

	sweepInterval = time.Minute
)

// Token is a single-use capability bound to one camera and the client that
// requested it.
type Token struct {
	Token     string
	EntityID  string
	ClientID  string
	CreatedAt time.Time
	ExpiresAt time.Time
	Consumed  bool
}

// Session is the post-SDP capability for ICE exchange and hangup.
type Session struct {
	SessionID    string
	EntityID     string
	ClientID     string
	CreatedAt    time.Time
	LastActivity time.Time
}

// Manager owns the token and session tables for one bridge instance.
type Manager struct {
	mu       sync.Mutex
	tokens   map[string]*Token
	sessions map[string]*Session
	log      zerolog.Logger
	now      func() time.Time
}

// NewManager creates an empty token/session manager.
func NewManager(log logger.Logger) *Manager {
	return &Manager{
		tokens:   make(map[string]*Token),
		sessions: make(map[string]*Session),
		log:      log.WithComponent("webrtc"),
		now:      time.Now,
	}
}

// Run sweeps expired tokens and idle sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	for key, token := range m.tokens {
		if now.After(token.ExpiresAt) {
			delete(m.tokens, key)
		}
	}

	for key, session := range m.sessions {
		if now.Sub(session.LastActivity) > SessionIdleTimeout {
			delete(m.sessions, key)
			m.log.Debug().Str("entity_id", session.EntityID).Msg("dropped idle webrtc session")
		}
	}
}

// GenerateToken issues a fresh token for (entityID, clientID).
func (m *Manager) GenerateToken(entityID, clientID string) *Token {
	raw := make([]byte, tokenBytes)
	_, _ = rand.Read(raw)

	now := m.now()
	token := &Token{
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		EntityID:  entityID,
		ClientID:  clientID,
		CreatedAt: now,
		ExpiresAt: now.Add(TokenTTL),
	}

	m.mu.Lock()
	m.tokens[token.Token] = token
	m.mu.Unlock()

	m.log.Debug().Str("entity_id", entityID).Str("client_id", clientID).Msg("issued webrtc token")

	return token
}

// ConsumeToken atomically validates and consumes a token for an SDP
// exchange. The token must exist, be unconsumed and unexpired, and match
// the camera; when clientID is non-empty it must also match the client that
// requested it, and an empty clientID skips that comparison. On success a
// session is created and returned; every failure mode returns false.
func (m *Manager) ConsumeToken(tokenStr, entityID, clientID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[tokenStr]
	if !ok || token.Consumed {
		return nil, false
	}

	now := m.now()
	if now.After(token.ExpiresAt) {
		delete(m.tokens, tokenStr)
		return nil, false
	}

	if token.EntityID != entityID || (clientID != "" && token.ClientID != clientID) {
		return nil, false
	}

	token.Consumed = true
	delete(m.tokens, tokenStr)

	session := &Session{
		SessionID:    uuid.NewString(),
		EntityID:     entityID,
		ClientID:     token.ClientID,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.sessions[session.SessionID] = session

	m.log.Info().Str("entity_id", entityID).Str("session_id", session.SessionID).Msg("webrtc session established")

	return session, true
}

// Session looks up a session by id for the given camera, refreshing its
// activity. A session id never resolves for another camera.
func (m *Manager) Session(sessionID, entityID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok || session.EntityID != entityID {
		return nil, false
	}

	session.LastActivity = m.now()

	return session, true
}

// CloseSession removes a session. It reports whether one existed for this
// camera.
func (m *Manager) CloseSession(sessionID, entityID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok || session.EntityID != entityID {
		return false
	}

	delete(m.sessions, sessionID)
	m.log.Info().Str("entity_id", entityID).Str("session_id", sessionID).Msg("webrtc session closed")

	return true
}

// Stats reports table sizes.
func (m *Manager) Stats() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]int{
		"active_tokens":   len(m.tokens),
		"active_sessions": len(m.sessions),
	}
}

// ICEServers returns the fixed STUN set, with the configured TURN relay
// appended when present.
func ICEServers(turn *models.TURNConfig) []map[string]interface{} {
	servers := []map[string]interface{}{
		{"urls": "stun:stun.l.google.com:19302"},
		{"urls": "stun:stun1.l.google.com:19302"},
		{"urls": "stun:stun2.l.google.com:19302"},
	}

	if turn != nil && turn.URL != "" && turn.Username != "" && turn.Credential != "" {
		servers = append(servers, map[string]interface{}{
			"urls":       turn.URL,
			"username":   turn.Username,
			"credential": turn.Credential,
		})
	}

	return servers
}
