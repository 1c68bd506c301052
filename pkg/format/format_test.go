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

package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalPlaces(t *testing.T) {
	tests := []struct {
		class  string
		unit   string
		places int
		ok     bool
	}{
		{"current", "mA", 1, true},
		{"current", "A", 2, true},
		{"voltage", "V", 2, true},
		{"power", "W", 2, true},
		{"power", "kW", 3, true},
		{"temperature", "°C", 1, true},
		{"battery", "%", 0, true},
		{"humidity", "%", 0, true},
		{"power_factor", "", 2, true},
		{"velocity", "m/s", 0, false},
	}

	for _, tt := range tests {
		places, ok := DecimalPlaces(tt.class, tt.unit)
		assert.Equal(t, tt.ok, ok, "%s/%s", tt.class, tt.unit)

		if tt.ok {
			assert.Equal(t, tt.places, places, "%s/%s", tt.class, tt.unit)
		}
	}
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric("23.5"))
	assert.True(t, IsNumeric("-4"))
	assert.False(t, IsNumeric("on"))
	assert.False(t, IsNumeric("unknown"))
	assert.False(t, IsNumeric("unavailable"))
	assert.False(t, IsNumeric(""))
}

func TestStateFormatting(t *testing.T) {
	assert.Equal(t, 23.5, State("23.456", 1))
	assert.Equal(t, 23.46, State("23.456", 2))
	assert.Equal(t, float64(23), State("23.456", 0))
	assert.Equal(t, "on", State("on", 2))
	assert.Equal(t, "unavailable", State("unavailable", 2))
}

func TestStateAuto(t *testing.T) {
	assert.Equal(t, 12.3, StateAuto("sensor.load", "current", "mA", "12.34"))
	// No class: inferred from the entity object name.
	assert.Equal(t, 12.3, StateAuto("sensor.kitchen_current", "", "mA", "12.34"))
	// power_factor wins over power for the longer match.
	assert.Equal(t, 0.87, StateAuto("sensor.main_power_factor", "", "", "0.8712"))
	// Nothing known: default 2 decimals.
	assert.Equal(t, 1.23, StateAuto("sensor.mystery", "", "", "1.2345"))
	// Non-numeric passes through raw.
	assert.Equal(t, "open", StateAuto("cover.garage", "", "", "open"))
}

func TestAttributes(t *testing.T) {
	attrs := map[string]interface{}{
		"unit_of_measurement": "V",
		"voltage":             231.456,
		"current":             2.345,
		"friendly_name":       "Main Feed",
		"power":               1000,
	}

	got := Attributes(attrs)
	require.NotNil(t, got)

	assert.Equal(t, 231.46, got["voltage"])
	// Unit "V" has no current-specific entry; class fallback applies.
	assert.Equal(t, 2.35, got["current"])
	assert.Equal(t, float64(1000), got["power"])
	assert.Equal(t, "Main Feed", got["friendly_name"])

	// Input map is not mutated.
	assert.Equal(t, 231.456, attrs["voltage"])
}

func TestAttributesNil(t *testing.T) {
	assert.Nil(t, Attributes(nil))
}
