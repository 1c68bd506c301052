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

package acl

import "github.com/smartlyhq/smartly-bridge/pkg/hub"

// domainIcons are the fallback icons used when the registry carries none.
var domainIcons = map[string]string{
	"switch":        "mdi:toggle-switch",
	"light":         "mdi:lightbulb",
	"cover":         "mdi:window-shutter",
	"climate":       "mdi:thermostat",
	"fan":           "mdi:fan",
	"lock":          "mdi:lock",
	"scene":         "mdi:palette",
	"script":        "mdi:script-text",
	"automation":    "mdi:robot",
	"camera":        "mdi:video",
	"sensor":        "mdi:gauge",
	"binary_sensor": "mdi:checkbox-marked-circle-outline",
}

// ResolveIcon applies the icon precedence: user-set icon, registry original
// icon, domain default, empty.
func ResolveIcon(entry *hub.EntityEntry, domain string) string {
	if entry != nil {
		if entry.Icon != "" {
			return entry.Icon
		}

		if entry.OriginalIcon != "" {
			return entry.OriginalIcon
		}
	}

	return domainIcons[domain]
}
