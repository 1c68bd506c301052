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

// Package format renders numeric sensor values with display-ready
// precision so the platform never has to guess decimal places.
package format

import (
	"math"
	"strconv"
	"strings"
)

// DefaultDecimals applies to numeric values with no table entry.
const DefaultDecimals = 2

type classUnit struct {
	class string
	unit  string
}

// unitPrecision is consulted first, keyed by (device_class, unit).
var unitPrecision = map[classUnit]int{
	{"current", "mA"}:     1,
	{"current", "A"}:      2,
	{"voltage", "V"}:      2,
	{"voltage", "mV"}:     0,
	{"power", "W"}:        2,
	{"power", "kW"}:       3,
	{"energy", "kWh"}:     2,
	{"energy", "Wh"}:      0,
	{"temperature", "°C"}: 1,
	{"temperature", "°F"}: 1,
	{"pressure", "hPa"}:   1,
	{"frequency", "Hz"}:   2,
}

// classPrecision is the fallback when the unit has no specific entry.
var classPrecision = map[string]int{
	"current":      2,
	"voltage":      2,
	"power":        2,
	"energy":       2,
	"temperature":  1,
	"humidity":     0,
	"battery":      0,
	"pressure":     1,
	"power_factor": 2,
	"frequency":    2,
	"illuminance":  0,
}

// inferableClasses are matched against entity object names when the state
// attributes carry no device_class (e.g. sensor.kitchen_current).
var inferableClasses = []string{
	"current", "voltage", "power_factor", "power", "energy",
	"temperature", "humidity", "battery", "pressure", "frequency",
}

// DecimalPlaces returns the decimal precision for a device class and unit.
// ok is false when neither table has an entry.
func DecimalPlaces(deviceClass, unit string) (places int, ok bool) {
	if deviceClass != "" && unit != "" {
		if p, found := unitPrecision[classUnit{deviceClass, unit}]; found {
			return p, true
		}
	}

	if p, found := classPrecision[deviceClass]; found {
		return p, true
	}

	return 0, false
}

// InferClass guesses a device class from an entity id's object name.
// Longer class names are listed before their prefixes (power_factor before
// power) so the most specific one wins.
func InferClass(entityID string) string {
	object := entityID
	if i := strings.IndexByte(entityID, '.'); i >= 0 {
		object = entityID[i+1:]
	}

	object = strings.ToLower(object)

	for _, class := range inferableClasses {
		if strings.Contains(object, class) {
			return class
		}
	}

	return ""
}

// IsNumeric reports whether a state value parses as a number. The hub's
// placeholder states never do.
func IsNumeric(state string) bool {
	switch state {
	case "", "unknown", "unavailable":
		return false
	}

	_, err := strconv.ParseFloat(state, 64)

	return err == nil
}

// Round rounds v half-away-from-zero to the given decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow10(places)

	return math.Round(v*scale) / scale
}

// State formats a raw state string. Numeric values come back as rounded
// float64; everything else is returned unchanged as the original string.
func State(state string, places int) interface{} {
	if !IsNumeric(state) {
		return state
	}

	v, err := strconv.ParseFloat(state, 64)
	if err != nil {
		return state
	}

	return Round(v, places)
}

// StateAuto formats a state using the precision resolved from device class
// and unit, with the entity-name inference fallback and the package default.
func StateAuto(entityID, deviceClass, unit, state string) interface{} {
	if !IsNumeric(state) {
		return state
	}

	places, ok := DecimalPlaces(deviceClass, unit)
	if !ok {
		if inferred := InferClass(entityID); inferred != "" {
			places, ok = DecimalPlaces(inferred, unit)
		}
	}

	if !ok {
		places = DefaultDecimals
	}

	return State(state, places)
}

// Attributes rounds known numeric attributes in place of a copy. The unit
// used for precision lookup is the entity's unit_of_measurement attribute.
func Attributes(attrs map[string]interface{}) map[string]interface{} {
	if attrs == nil {
		return nil
	}

	unit, _ := attrs["unit_of_measurement"].(string)

	out := make(map[string]interface{}, len(attrs))

	for key, value := range attrs {
		out[key] = value

		if _, known := classPrecision[key]; !known {
			continue
		}

		var v float64

		switch n := value.(type) {
		case float64:
			v = n
		case int:
			v = float64(n)
		default:
			continue
		}

		places, ok := DecimalPlaces(key, unit)
		if !ok {
			places = DefaultDecimals
		}

		out[key] = Round(v, places)
	}

	return out
}
