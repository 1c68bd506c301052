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
	"time"

	"github.com/smartlyhq/smartly-bridge/pkg/acl"
	"github.com/smartlyhq/smartly-bridge/pkg/format"
	"github.com/smartlyhq/smartly-bridge/pkg/hub"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

// settleDelay gives the hub a moment to propagate state after a service
// call before the post-call read.
const settleDelay = 100 * time.Millisecond

// handleControl implements POST /api/smartly/control.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request, actx *authContext) {
	var req models.ControlRequest

	if err := json.Unmarshal(actx.Body, &req); err != nil {
		writeError(w, models.ErrInvalidJSON, http.StatusBadRequest)
		return
	}

	if req.EntityID == "" || req.Action == "" {
		writeError(w, models.ErrMissingRequiredFields, http.StatusBadRequest)
		return
	}

	if !acl.ValidEntityID(req.EntityID) {
		writeError(w, models.ErrInvalidEntityID, http.StatusBadRequest)
		return
	}

	if _, ok := s.hub.State(req.EntityID); !ok {
		if _, registered := s.hub.Entity(req.EntityID); !registered {
			writeError(w, models.ErrEntityNotFound, http.StatusNotFound)
			return
		}
	}

	if !acl.EntityAllowed(s.hub, req.EntityID) {
		s.aud.Deny(actx.ClientID, req.EntityID, req.Action, models.ErrEntityNotAllowed, actx.SourceIP, req.Actor)
		writeError(w, models.ErrEntityNotAllowed, http.StatusForbidden)

		return
	}

	domain := acl.EntityDomain(req.EntityID)
	if !acl.ServiceAllowed(domain, req.Action) {
		s.aud.Deny(actx.ClientID, req.EntityID, req.Action, models.ErrServiceNotAllowed, actx.SourceIP, req.Actor)
		writeError(w, models.ErrServiceNotAllowed, http.StatusForbidden)

		return
	}

	data := map[string]interface{}{"entity_id": req.EntityID}
	for k, v := range req.ServiceData {
		data[k] = v
	}

	if err := s.hub.Call(r.Context(), domain, req.Action, data); err != nil {
		// The hub's "unexpected field" class of error stays internal; the
		// platform sees the generic kind either way.
		s.logger.Error().Err(err).
			Str("entity_id", req.EntityID).
			Str("action", req.Action).
			Bool("service_data_rejected", errors.Is(err, hub.ErrInvalidServiceData)).
			Msg("service call failed")

		s.aud.Control(actx.ClientID, req.EntityID, req.Action, "error", actx.SourceIP, req.Actor)
		writeError(w, models.ErrServiceCallFailed, http.StatusInternalServerError)

		return
	}

	time.Sleep(settleDelay)

	s.aud.Control(actx.ClientID, req.EntityID, req.Action, "success", actx.SourceIP, req.Actor)

	resp := models.ControlResponse{
		Success:   true,
		EntityID:  req.EntityID,
		Action:    req.Action,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}

	if state, ok := s.hub.State(req.EntityID); ok {
		class, _ := state.Attributes["device_class"].(string)
		unit, _ := state.Attributes["unit_of_measurement"].(string)

		resp.NewState = format.StateAuto(req.EntityID, class, unit, state.State)
		resp.NewAttributes = format.Attributes(state.Attributes)
	}

	writeJSON(w, http.StatusOK, resp)
}
