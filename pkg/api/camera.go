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
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/smartlyhq/smartly-bridge/pkg/acl"
	"github.com/smartlyhq/smartly-bridge/pkg/camera"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

// cameraEntity validates the path variable and the ACL for camera
// endpoints. It writes the error response itself and returns "" on
// failure.
func (s *Server) cameraEntity(w http.ResponseWriter, r *http.Request, actx *authContext, service string) string {
	entityID := mux.Vars(r)["entity_id"]

	if !strings.HasPrefix(entityID, "camera.") || !acl.ValidEntityID(entityID) {
		writeError(w, models.ErrInvalidEntityID, http.StatusBadRequest)
		return ""
	}

	if _, ok := s.hub.Entity(entityID); !ok {
		writeError(w, models.ErrCameraNotFound, http.StatusNotFound)
		return ""
	}

	if !acl.EntityAllowed(s.hub, entityID) {
		s.aud.Deny(actx.ClientID, entityID, service, models.ErrEntityNotAllowed, actx.SourceIP, nil)
		writeError(w, models.ErrEntityNotAllowed, http.StatusForbidden)

		return ""
	}

	return entityID
}

func (s *Server) requireCameraManager(w http.ResponseWriter) bool {
	if s.cameras == nil {
		writeError(w, models.ErrCameraManagerNotInitialized, http.StatusInternalServerError)
		return false
	}

	return true
}

// handleCameraList implements GET /api/smartly/camera/list.
func (s *Server) handleCameraList(w http.ResponseWriter, r *http.Request, actx *authContext) {
	if !s.requireCameraManager(w) {
		return
	}

	withCapabilities := r.URL.Query().Get("capabilities") == "true"

	if !withCapabilities {
		cameras := s.cameras.List()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"cameras": cameras,
			"count":   len(cameras),
		})

		return
	}

	cameras := []models.CameraCapabilities{}

	for _, entry := range acl.AllowedEntities(s.hub) {
		if !strings.HasPrefix(entry.EntityID, "camera.") {
			continue
		}

		cameras = append(cameras, s.cameras.Capabilities(r.Context(), entry.EntityID, entry.DisplayName()))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cameras": cameras,
		"count":   len(cameras),
	})
}

// handleSnapshot implements GET /api/smartly/camera/{entity_id}/snapshot.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request, actx *authContext) {
	if !s.requireCameraManager(w) {
		return
	}

	entityID := s.cameraEntity(w, r, actx, "camera_snapshot")
	if entityID == "" {
		return
	}

	refresh := r.URL.Query().Get("refresh") == "true"
	ifNoneMatch := r.Header.Get("If-None-Match")

	snap, notModified, err := s.cameras.Snapshot(r.Context(), entityID, refresh, ifNoneMatch)
	if err != nil {
		s.aud.Control(actx.ClientID, entityID, "camera_snapshot", "error", actx.SourceIP, nil)
		writeError(w, models.ErrSnapshotUnavailable, http.StatusNotFound)

		return
	}

	ttlSeconds := int(camera.SnapshotTTL.Seconds())

	w.Header().Set("ETag", snap.ETag)
	w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(ttlSeconds))
	w.Header().Set("X-Snapshot-Timestamp", strconv.FormatInt(snap.CapturedAt.Unix(), 10))

	if notModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	s.aud.Control(actx.ClientID, entityID, "camera_snapshot", "success", actx.SourceIP, nil)

	w.Header().Set("Content-Type", snap.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(snap.Image)
}

// handleStream implements GET /api/smartly/camera/{entity_id}/stream.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, actx *authContext) {
	if !s.requireCameraManager(w) {
		return
	}

	entityID := s.cameraEntity(w, r, actx, "camera_stream")
	if entityID == "" {
		return
	}

	s.aud.Control(actx.ClientID, entityID, "camera_stream", "start", actx.SourceIP, nil)

	if err := s.cameras.ServeMJPEG(w, r, entityID); err != nil {
		if errors.Is(err, camera.ErrStreamUnavailable) {
			writeError(w, models.ErrSnapshotUnavailable, http.StatusNotFound)
			return
		}

		s.logger.Error().Err(err).Str("entity_id", entityID).Msg("mjpeg proxy failed")
		writeError(w, models.ErrInternalServerError, http.StatusInternalServerError)
	}
}

// handleHLS implements GET /api/smartly/camera/{entity_id}/stream/hls.
func (s *Server) handleHLS(w http.ResponseWriter, r *http.Request, actx *authContext) {
	if !s.requireCameraManager(w) {
		return
	}

	entityID := s.cameraEntity(w, r, actx, "camera_hls")
	if entityID == "" {
		return
	}

	switch r.URL.Query().Get("action") {
	case "start":
		resp, err := s.cameras.StartHLS(r.Context(), entityID)
		if err != nil {
			if errors.Is(err, camera.ErrNoStreamSource) {
				writeError(w, models.ErrStreamSourceNotFound, http.StatusNotFound)
				return
			}

			s.logger.Error().Err(err).Str("entity_id", entityID).Msg("hls start failed")
			writeError(w, models.ErrInternalServerError, http.StatusInternalServerError)

			return
		}

		s.aud.Control(actx.ClientID, entityID, "camera_hls_start", "success", actx.SourceIP, nil)
		writeJSON(w, http.StatusOK, resp)

	case "stop":
		stopped := s.cameras.StopHLS(entityID)
		s.aud.Control(actx.ClientID, entityID, "camera_hls_stop", "success", actx.SourceIP, nil)
		writeJSON(w, http.StatusOK, map[string]interface{}{"stopped": stopped})

	case "info":
		entry, _ := s.hub.Entity(entityID)

		name := entityID
		if entry != nil && entry.DisplayName() != "" {
			name = entry.DisplayName()
		}

		writeJSON(w, http.StatusOK, s.cameras.Capabilities(r.Context(), entityID, name))

	case "stats":
		writeJSON(w, http.StatusOK, s.cameras.HLSStats())

	default:
		writeError(w, models.ErrInvalidAction, http.StatusBadRequest)
	}
}

type cameraConfigRequest struct {
	Action string `json:"action"`
	models.CameraConfig
}

// handleCameraConfig implements POST /api/smartly/camera/config.
func (s *Server) handleCameraConfig(w http.ResponseWriter, r *http.Request, actx *authContext) {
	if !s.requireCameraManager(w) {
		return
	}

	var req cameraConfigRequest

	if err := json.Unmarshal(actx.Body, &req); err != nil {
		writeError(w, models.ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "register":
		if req.EntityID == "" || !strings.HasPrefix(req.EntityID, "camera.") {
			writeError(w, models.ErrInvalidEntityID, http.StatusBadRequest)
			return
		}

		cfg := req.CameraConfig
		s.cameras.Register(&cfg)
		s.aud.Control(actx.ClientID, req.EntityID, "camera_register", "success", actx.SourceIP, nil)
		writeJSON(w, http.StatusOK, map[string]interface{}{"registered": req.EntityID})

	case "unregister":
		if req.EntityID == "" {
			writeError(w, models.ErrMissingRequiredFields, http.StatusBadRequest)
			return
		}

		s.cameras.Unregister(req.EntityID)
		s.aud.Control(actx.ClientID, req.EntityID, "camera_unregister", "success", actx.SourceIP, nil)
		writeJSON(w, http.StatusOK, map[string]interface{}{"unregistered": req.EntityID})

	case "clear_cache":
		cleared := s.cameras.ClearCache(req.EntityID)
		writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": cleared})

	case "list":
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"cameras": s.cameras.List(),
			"stats":   s.cameras.CacheStats(),
		})

	default:
		writeError(w, models.ErrInvalidAction, http.StatusBadRequest)
	}
}
