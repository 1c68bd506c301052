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
	"net/http"

	"github.com/smartlyhq/smartly-bridge/pkg/acl"
	"github.com/smartlyhq/smartly-bridge/pkg/format"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

// handleSyncStructure implements GET /api/smartly/sync/structure.
func (s *Server) handleSyncStructure(w http.ResponseWriter, _ *http.Request, _ *authContext) {
	writeJSON(w, http.StatusOK, acl.BuildStructure(s.hub))
}

// handleSyncStates implements GET /api/smartly/sync/states.
func (s *Server) handleSyncStates(w http.ResponseWriter, _ *http.Request, _ *authContext) {
	states := []models.SyncState{}

	for _, entry := range acl.AllowedEntities(s.hub) {
		state, ok := s.hub.State(entry.EntityID)
		if !ok {
			continue
		}

		domain := acl.EntityDomain(entry.EntityID)
		class, _ := state.Attributes["device_class"].(string)
		unit, _ := state.Attributes["unit_of_measurement"].(string)

		states = append(states, models.SyncState{
			EntityID:    entry.EntityID,
			State:       format.StateAuto(entry.EntityID, class, unit, state.State),
			Attributes:  format.Attributes(state.Attributes),
			LastChanged: state.LastChanged,
			LastUpdated: state.LastUpdated,
			Icon:        acl.ResolveIcon(entry, domain),
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"states": states,
		"count":  len(states),
	})
}
