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

package camera

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// hlsIdleTimeout drops sessions nobody has touched.
const hlsIdleTimeout = 10 * time.Minute

// ErrNoStreamSource is returned when a camera has no stream source to
// start an HLS session from.
var ErrNoStreamSource = errors.New("no stream source")

// HLSSession is the bookkeeping record for one active HLS stream.
type HLSSession struct {
	EntityID         string    `json:"entity_id"`
	StreamID         string    `json:"stream_id"`
	StartedAt        time.Time `json:"started_at"`
	LastAccess       time.Time `json:"-"`
	ClientsConnected int       `json:"clients_connected"`
}

func (s *HLSSession) idle(now time.Time) bool {
	return now.Sub(s.LastAccess) > hlsIdleTimeout
}

// StartHLS begins (or joins) an HLS session for a camera and returns the
// playlist locations the upstream media server exposes for it.
func (m *Manager) StartHLS(ctx context.Context, entityID string) (map[string]interface{}, error) {
	source, err := m.hubCamera.StreamSource(ctx, entityID)
	if err != nil {
		return nil, err
	}

	if source == "" {
		return nil, ErrNoStreamSource
	}

	m.hlsMu.Lock()
	defer m.hlsMu.Unlock()

	session, ok := m.sessions[entityID]
	if ok {
		session.LastAccess = m.now()
		session.ClientsConnected++
	} else {
		session = &HLSSession{
			EntityID:         entityID,
			StreamID:         uuid.NewString(),
			StartedAt:        m.now(),
			LastAccess:       m.now(),
			ClientsConnected: 1,
		}
		m.sessions[entityID] = session

		m.log.Info().Str("entity_id", entityID).Str("stream_id", session.StreamID).Msg("started hls session")
	}

	return m.hlsResponse(session), nil
}

func (m *Manager) hlsResponse(session *HLSSession) map[string]interface{} {
	base := "/api/hls/" + session.StreamID

	return map[string]interface{}{
		"entity_id":       session.EntityID,
		"stream_type":     "hls",
		"stream_id":       session.StreamID,
		"hls_url":         base + "/master_playlist.m3u8",
		"master_playlist": base + "/master_playlist.m3u8",
		"playlist":        base + "/playlist.m3u8",
		"init":            base + "/init.mp4",
		"created_at":      session.StartedAt.Unix(),
		"is_active":       true,
	}
}

// StopHLS removes a camera's HLS session. It reports whether one existed.
func (m *Manager) StopHLS(entityID string) bool {
	m.hlsMu.Lock()
	defer m.hlsMu.Unlock()

	if _, ok := m.sessions[entityID]; !ok {
		return false
	}

	delete(m.sessions, entityID)
	m.log.Info().Str("entity_id", entityID).Msg("stopped hls session")

	return true
}

// HLSSessionFor returns the active session for a camera, refreshing its
// last-access time.
func (m *Manager) HLSSessionFor(entityID string) (*HLSSession, bool) {
	m.hlsMu.Lock()
	defer m.hlsMu.Unlock()

	session, ok := m.sessions[entityID]
	if ok {
		session.LastAccess = m.now()
	}

	return session, ok
}

// HLSStats aggregates per-session counters.
func (m *Manager) HLSStats() map[string]interface{} {
	m.hlsMu.Lock()
	defer m.hlsMu.Unlock()

	now := m.now()
	streams := make([]map[string]interface{}, 0, len(m.sessions))

	for _, s := range m.sessions {
		streams = append(streams, map[string]interface{}{
			"entity_id":         s.EntityID,
			"stream_id":         s.StreamID,
			"age_seconds":       now.Sub(s.StartedAt).Round(time.Second).Seconds(),
			"idle_seconds":      now.Sub(s.LastAccess).Round(time.Second).Seconds(),
			"clients_connected": s.ClientsConnected,
		})
	}

	return map[string]interface{}{
		"active_streams": len(m.sessions),
		"streams":        streams,
	}
}

func (m *Manager) sweepIdleSessions() {
	m.hlsMu.Lock()
	defer m.hlsMu.Unlock()

	now := m.now()

	for id, s := range m.sessions {
		if s.idle(now) {
			delete(m.sessions, id)
			m.log.Info().Str("entity_id", id).Msg("dropped idle hls session")
		}
	}
}
