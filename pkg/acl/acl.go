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

// Package acl decides which hub entities and services the platform may
// touch, and assembles the exposed topology for the allowed set.
package acl

import (
	"regexp"
	"strings"

	"github.com/smartlyhq/smartly-bridge/pkg/hub"
)

// ControlLabel marks an entity as platform-controllable. Exact,
// case-sensitive match; no wildcards.
const ControlLabel = "smartly"

// AllowedServices is the static per-domain action whitelist. An action
// outside its domain's list is rejected regardless of entity permissions.
var AllowedServices = map[string][]string{
	"switch":     {"turn_on", "turn_off", "toggle"},
	"light":      {"turn_on", "turn_off", "toggle"},
	"cover":      {"open_cover", "close_cover", "stop_cover", "set_cover_position"},
	"climate":    {"set_temperature", "set_hvac_mode", "set_fan_mode"},
	"fan":        {"turn_on", "turn_off", "set_percentage", "set_preset_mode"},
	"lock":       {"lock", "unlock"},
	"scene":      {"turn_on"},
	"script":     {"turn_on", "turn_off"},
	"automation": {"trigger", "turn_on", "turn_off"},
	"camera":     {"enable_motion_detection", "disable_motion_detection", "record", "snapshot"},
}

var entityIDPattern = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)

// ValidEntityID reports whether id has the domain.object shape.
func ValidEntityID(id string) bool {
	return entityIDPattern.MatchString(id)
}

// EntityDomain extracts the domain segment of an entity id.
func EntityDomain(entityID string) string {
	if i := strings.IndexByte(entityID, '.'); i > 0 {
		return entityID[:i]
	}

	return ""
}

// EntityAllowed reports whether the entity's registry entry carries the
// control label. Unknown entities are not allowed.
func EntityAllowed(reg hub.Registry, entityID string) bool {
	entry, ok := reg.Entity(entityID)
	if !ok {
		return false
	}

	return entry.HasLabel(ControlLabel)
}

// ServiceAllowed reports whether (domain, action) is in the whitelist.
func ServiceAllowed(domain, action string) bool {
	actions, ok := AllowedServices[domain]
	if !ok {
		return false
	}

	for _, a := range actions {
		if a == action {
			return true
		}
	}

	return false
}

// AllowedEntities returns every labeled entity entry, in registry order.
func AllowedEntities(reg hub.Registry) []*hub.EntityEntry {
	var out []*hub.EntityEntry

	for _, entry := range reg.Entities() {
		if entry.HasLabel(ControlLabel) {
			out = append(out, entry)
		}
	}

	return out
}
