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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/smartlyhq/smartly-bridge/pkg/models"
	"github.com/smartlyhq/smartly-bridge/pkg/webrtc"
)

// handleWebRTCToken implements POST /api/smartly/camera/{entity_id}/webrtc.
// This is the only HMAC-protected step of the signalling flow; the token
// it issues is the capability for the SDP exchange.
func (s *Server) handleWebRTCToken(w http.ResponseWriter, r *http.Request, actx *authContext) {
	if s.rtc == nil {
		writeError(w, models.ErrWebRTCNotAvailable, http.StatusInternalServerError)
		return
	}

	entityID := s.cameraEntity(w, r, actx, "webrtc_token")
	if entityID == "" {
		return
	}

	token := s.rtc.GenerateToken(entityID, actx.ClientID)

	s.aud.Control(actx.ClientID, entityID, "webrtc_token", "success", actx.SourceIP, nil)

	base := APIPrefix + "/camera/" + entityID + "/webrtc"

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":           token.Token,
		"entity_id":       entityID,
		"expires_at":      token.ExpiresAt.Unix(),
		"expires_in":      int(webrtc.TokenTTL.Seconds()),
		"offer_endpoint":  base + "/offer",
		"ice_endpoint":    base + "/ice",
		"hangup_endpoint": base + "/hangup",
		"ice_servers":     webrtc.ICEServers(s.creds.TURN),
	})
}

type offerRequest struct {
	Token string `json:"token"`
	SDP   string `json:"sdp"`
	Type  string `json:"type"`
}

// handleWebRTCOffer implements POST .../webrtc/offer. The token is the
// capability; no HMAC re-authentication happens here.
func (s *Server) handleWebRTCOffer(w http.ResponseWriter, r *http.Request) {
	if s.rtc == nil {
		writeError(w, models.ErrWebRTCNotAvailable, http.StatusInternalServerError)
		return
	}

	entityID := mux.Vars(r)["entity_id"]
	if !strings.HasPrefix(entityID, "camera.") {
		writeError(w, models.ErrInvalidEntityID, http.StatusBadRequest)
		return
	}

	var req offerRequest

	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, models.ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	if req.Token == "" || req.SDP == "" {
		writeError(w, models.ErrMissingRequiredFields, http.StatusBadRequest)
		return
	}

	if req.Type != "offer" {
		writeError(w, models.ErrInvalidServiceData, http.StatusBadRequest)
		return
	}

	// Client binding was checked at issue time; the token itself carries it.
	session, ok := s.rtc.ConsumeToken(req.Token, entityID, "")
	if !ok {
		s.aud.Deny("", entityID, "webrtc_offer", models.ErrInvalidOrExpiredToken, peer(r), nil)
		writeError(w, models.ErrInvalidOrExpiredToken, http.StatusUnauthorized)

		return
	}

	source, err := s.hub.StreamSource(r.Context(), entityID)
	if err != nil || source == "" {
		s.logger.Error().Err(err).Str("entity_id", entityID).Msg("no stream source for webrtc")
		writeError(w, models.ErrStreamSourceNotFound, http.StatusInternalServerError)

		return
	}

	answer, err := s.go2rtc.Offer(r.Context(), entityID, req.SDP)

	if errors.Is(err, webrtc.ErrStreamUnknown) {
		// Auto-register the stream with the media server, then retry once.
		if regErr := s.go2rtc.RegisterStream(r.Context(), entityID, source); regErr == nil {
			answer, err = s.go2rtc.Offer(r.Context(), entityID, req.SDP)
		}
	}

	if err != nil {
		s.logger.Error().Err(err).Str("entity_id", entityID).Msg("go2rtc offer failed")

		if errors.Is(err, webrtc.ErrGo2RTCUnavailable) {
			writeError(w, models.ErrGo2RTCNotAvailable, http.StatusInternalServerError)
			return
		}

		writeError(w, models.ErrWebRTCFailed, http.StatusInternalServerError)

		return
	}

	s.aud.Control(session.ClientID, entityID, "webrtc_offer", "success", peer(r), nil)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"type":       "answer",
		"sdp":        answer,
		"session_id": session.SessionID,
	})
}

type iceRequest struct {
	SessionID string                 `json:"session_id"`
	Candidate map[string]interface{} `json:"candidate"`
}

// handleWebRTCICE implements POST .../webrtc/ice. The session id is the
// capability.
func (s *Server) handleWebRTCICE(w http.ResponseWriter, r *http.Request) {
	if s.rtc == nil {
		writeError(w, models.ErrWebRTCNotAvailable, http.StatusInternalServerError)
		return
	}

	entityID := mux.Vars(r)["entity_id"]

	var req iceRequest

	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, models.ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	if req.SessionID == "" {
		writeError(w, models.ErrMissingRequiredFields, http.StatusBadRequest)
		return
	}

	if _, ok := s.rtc.Session(req.SessionID, entityID); !ok {
		writeError(w, models.ErrSessionNotFound, http.StatusNotFound)
		return
	}

	if len(req.Candidate) > 0 {
		if err := s.go2rtc.Candidate(r.Context(), entityID, req.Candidate); err != nil {
			s.logger.Debug().Err(err).Str("entity_id", entityID).Msg("candidate forward failed")
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "accepted",
		"candidates": []interface{}{},
	})
}

type hangupRequest struct {
	SessionID string `json:"session_id"`
}

// handleWebRTCHangup implements POST .../webrtc/hangup.
func (s *Server) handleWebRTCHangup(w http.ResponseWriter, r *http.Request) {
	if s.rtc == nil {
		writeError(w, models.ErrWebRTCNotAvailable, http.StatusInternalServerError)
		return
	}

	entityID := mux.Vars(r)["entity_id"]

	var req hangupRequest

	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, models.ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	if req.SessionID == "" {
		writeError(w, models.ErrMissingRequiredFields, http.StatusBadRequest)
		return
	}

	if !s.rtc.CloseSession(req.SessionID, entityID) {
		writeError(w, models.ErrSessionNotFound, http.StatusNotFound)
		return
	}

	// Best effort: the media server may already have dropped the stream.
	if err := s.go2rtc.Hangup(r.Context(), entityID); err != nil {
		s.logger.Debug().Err(err).Str("entity_id", entityID).Msg("go2rtc hangup failed")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "closed"})
}

func peer(r *http.Request) string {
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i > 0 {
		return r.RemoteAddr[:i]
	}

	return r.RemoteAddr
}
