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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartlyhq/smartly-bridge/pkg/hub"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{Timestamp: "2026-01-02T03:04:05Z", LastChanged: "2026-01-02T03:04:00Z"}

	decoded, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestCursorTamperRejected(t *testing.T) {
	_, err := DecodeCursor("not base64 at all!!!")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor("e30=") // {} - missing fields
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestVisualizationForClass(t *testing.T) {
	v := VisualizationFor("current", "sensor", true)
	assert.Equal(t, "chart", v["type"])
	assert.Equal(t, "#FFA726", v["color"])
	assert.Equal(t, true, v["show_points"])

	gauge := VisualizationFor("power_factor", "sensor", true)
	assert.Equal(t, "gauge", gauge["type"])
	assert.Equal(t, 0, gauge["min"])
	assert.Equal(t, 1, gauge["max"])
}

func TestVisualizationForDomainFallback(t *testing.T) {
	v := VisualizationFor("", "switch", false)
	assert.Equal(t, "timeline", v["type"])
	assert.Equal(t, "#66BB6A", v["on_color"])
}

func TestVisualizationNeutralDefault(t *testing.T) {
	numeric := VisualizationFor("weird_class", "sensor", true)
	assert.Equal(t, "chart", numeric["type"])
	assert.Equal(t, "#607D8B", numeric["color"])

	other := VisualizationFor("", "vacuum", false)
	assert.Equal(t, "timeline", other["type"])
}

func TestVisualizationReturnsCopy(t *testing.T) {
	v := VisualizationFor("current", "sensor", true)
	v["color"] = "#000000"

	again := VisualizationFor("current", "sensor", true)
	assert.Equal(t, "#FFA726", again["color"])
}

func TestBuildMetadataDeviceClassFallback(t *testing.T) {
	now := time.Now()

	// Stage 1: first state carries the class.
	states := []*hub.State{
		{State: "1.5", Attributes: map[string]interface{}{"device_class": "current", "unit_of_measurement": "mA"}, LastChanged: now, LastUpdated: now},
	}
	meta := BuildMetadata("sensor.feed", "sensor", states, nil)
	require.NotNil(t, meta.DeviceClass)
	assert.Equal(t, "current", *meta.DeviceClass)
	require.NotNil(t, meta.DecimalPlaces)
	assert.Equal(t, 1, *meta.DecimalPlaces)

	// Stage 2: class only on a later entry.
	states = []*hub.State{
		{State: "1.5", LastChanged: now, LastUpdated: now},
		{State: "1.6", Attributes: map[string]interface{}{"device_class": "voltage"}, LastChanged: now, LastUpdated: now},
	}
	meta = BuildMetadata("sensor.feed", "sensor", states, nil)
	require.NotNil(t, meta.DeviceClass)
	assert.Equal(t, "voltage", *meta.DeviceClass)

	// Stage 3: live hub state.
	states = []*hub.State{{State: "1.5", LastChanged: now, LastUpdated: now}}
	live := &hub.State{Attributes: map[string]interface{}{"device_class": "power"}}
	meta = BuildMetadata("sensor.feed", "sensor", states, live)
	require.NotNil(t, meta.DeviceClass)
	assert.Equal(t, "power", *meta.DeviceClass)

	// All three missing: null class, inferred precision from the entity id.
	meta = BuildMetadata("sensor.kitchen_current", "sensor", states, nil)
	assert.Nil(t, meta.DeviceClass)
	require.NotNil(t, meta.DecimalPlaces)
	assert.Equal(t, 2, *meta.DecimalPlaces)
}

func TestBuildMetadataNonNumeric(t *testing.T) {
	now := time.Now()
	states := []*hub.State{{State: "on", LastChanged: now, LastUpdated: now}}

	meta := BuildMetadata("switch.fan", "switch", states, nil)
	assert.False(t, meta.IsNumeric)
	assert.Nil(t, meta.DecimalPlaces)
	assert.Equal(t, "timeline", meta.Visualization["type"])
	assert.Equal(t, "switch.fan", meta.FriendlyName)
}

func TestFormatEntryAttributeEconomy(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := &hub.State{
		State:       "21.57",
		Attributes:  map[string]interface{}{"unit_of_measurement": "°C", "temperature": 21.57},
		LastChanged: now,
		LastUpdated: now,
	}

	withAttrs := FormatEntry(s, 1, true)
	assert.Equal(t, 21.6, withAttrs.State)
	require.NotNil(t, withAttrs.Attributes)
	assert.Equal(t, 21.6, withAttrs.Attributes["temperature"])

	without := FormatEntry(s, 1, false)
	assert.Nil(t, without.Attributes)
	assert.Equal(t, "2026-03-01T10:00:00Z", without.LastUpdated)
}

func TestEnsureTimeBounds(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mid := start.Add(12 * time.Hour).UTC().Format(time.RFC3339Nano)

	entries := []Entry{{State: 5.0, LastChanged: mid, LastUpdated: mid}}

	padded := EnsureTimeBounds(entries, start, end, true)
	require.Len(t, padded, 3)
	// Leading point carries the newest value to the window end.
	assert.Equal(t, 5.0, padded[0].State)
	// Trailing point back-fills the window start.
	assert.Equal(t, 5.0, padded[2].State)

	assert.Empty(t, EnsureTimeBounds(nil, start, end, true))
}
