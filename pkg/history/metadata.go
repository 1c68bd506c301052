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

package history

import (
	"time"

	"github.com/smartlyhq/smartly-bridge/pkg/format"
	"github.com/smartlyhq/smartly-bridge/pkg/hub"
)

// Entry is one formatted history record. Attributes is omitted on entries
// after the first unless the state value changed type; consumers treat a
// missing key as "unchanged since the last emission that carried it".
type Entry struct {
	State       interface{}            `json:"state"`
	LastChanged string                 `json:"last_changed"`
	LastUpdated string                 `json:"last_updated"`
	Attributes  map[string]interface{} `json:"attributes,omitempty"`
}

// Metadata describes the queried entity for visualization purposes.
type Metadata struct {
	Domain            string        `json:"domain"`
	DeviceClass       *string       `json:"device_class"`
	UnitOfMeasurement string        `json:"unit_of_measurement"`
	FriendlyName      string        `json:"friendly_name"`
	IsNumeric         bool          `json:"is_numeric"`
	DecimalPlaces     *int          `json:"decimal_places"`
	Visualization     Visualization `json:"visualization"`
}

func attrString(attrs map[string]interface{}, key string) string {
	if attrs == nil {
		return ""
	}

	s, _ := attrs[key].(string)

	return s
}

// deviceClassOf resolves device_class with the three-stage fallback: the
// page's first state, any other history entry, then the live hub state.
func deviceClassOf(states []*hub.State, live *hub.State) string {
	if len(states) > 0 {
		if c := attrString(states[0].Attributes, "device_class"); c != "" {
			return c
		}

		for _, s := range states[1:] {
			if c := attrString(s.Attributes, "device_class"); c != "" {
				return c
			}
		}
	}

	if live != nil {
		return attrString(live.Attributes, "device_class")
	}

	return ""
}

// BuildMetadata derives response metadata for one entity from its history
// page and the hub's live state.
func BuildMetadata(entityID, domain string, states []*hub.State, live *hub.State) Metadata {
	var first *hub.State

	if len(states) > 0 {
		first = states[0]
	} else {
		first = live
	}

	var attrs map[string]interface{}

	stateValue := ""

	if first != nil {
		attrs = first.Attributes
		stateValue = first.State
	}

	class := deviceClassOf(states, live)
	unit := attrString(attrs, "unit_of_measurement")

	friendly := attrString(attrs, "friendly_name")
	if friendly == "" {
		friendly = entityID
	}

	isNumeric := format.IsNumeric(stateValue)

	meta := Metadata{
		Domain:            domain,
		UnitOfMeasurement: unit,
		FriendlyName:      friendly,
		IsNumeric:         isNumeric,
		Visualization:     VisualizationFor(class, domain, isNumeric),
	}

	if class != "" {
		meta.DeviceClass = &class
	}

	if isNumeric {
		places, ok := format.DecimalPlaces(class, unit)
		if !ok {
			if inferred := format.InferClass(entityID); inferred != "" {
				places, ok = format.DecimalPlaces(inferred, unit)
			}
		}

		if !ok {
			places = format.DefaultDecimals
		}

		meta.DecimalPlaces = &places
	}

	return meta
}

// Places returns the metadata's decimal precision, defaulting for numeric
// series without a table entry.
func (m Metadata) Places() int {
	if m.DecimalPlaces != nil {
		return *m.DecimalPlaces
	}

	return format.DefaultDecimals
}

// FormatEntry renders one recorded state. includeAttrs controls the
// attribute-economy rule.
func FormatEntry(s *hub.State, places int, includeAttrs bool) Entry {
	e := Entry{
		State:       format.State(s.State, places),
		LastChanged: s.LastChanged.UTC().Format(time.RFC3339Nano),
		LastUpdated: s.LastUpdated.UTC().Format(time.RFC3339Nano),
	}

	if includeAttrs {
		attrs := s.Attributes
		if attrs == nil {
			attrs = map[string]interface{}{}
		}

		e.Attributes = format.Attributes(attrs)
	}

	return e
}

// EnsureTimeBounds pads a non-paginated series so it covers the full query
// window: a synthetic leading point at end carrying the newest value (any
// series that ends early), and, for numeric series that start late, a
// trailing point at start carrying the oldest value (0 when that value is
// not a float64). entries are newest-first.
func EnsureTimeBounds(entries []Entry, start, end time.Time, isNumeric bool) []Entry {
	if len(entries) == 0 {
		return entries
	}

	startISO := start.UTC().Format(time.RFC3339Nano)
	endISO := end.UTC().Format(time.RFC3339Nano)

	newest := entries[0]
	oldest := entries[len(entries)-1]

	out := entries

	if newest.LastChanged < endISO {
		lead := Entry{State: newest.State, LastChanged: endISO, LastUpdated: endISO}
		out = append([]Entry{lead}, out...)
	}

	if isNumeric && oldest.LastChanged > startISO {
		fill := oldest.State
		if _, ok := fill.(float64); !ok {
			fill = float64(0)
		}

		out = append(out, Entry{State: fill, LastChanged: startISO, LastUpdated: startISO})
	}

	return out
}
