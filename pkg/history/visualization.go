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

// Visualization is the rendering hint attached to history metadata. The
// platform picks a widget from Type and styles it from the rest.
type Visualization map[string]interface{}

// classVisualization is keyed by device_class.
var classVisualization = map[string]Visualization{
	"temperature": {"type": "chart", "chart_type": "line", "color": "#EF5350", "show_points": true, "interpolation": "linear"},
	"humidity":    {"type": "chart", "chart_type": "line", "color": "#42A5F5", "show_points": true, "interpolation": "linear"},
	"battery":     {"type": "chart", "chart_type": "line", "color": "#66BB6A", "show_points": false, "interpolation": "step"},
	"power":       {"type": "chart", "chart_type": "area", "color": "#FF7043", "show_points": false, "interpolation": "linear"},
	"energy":      {"type": "chart", "chart_type": "bar", "color": "#FFA726", "show_points": false, "interpolation": "linear"},
	"current":     {"type": "chart", "chart_type": "line", "color": "#FFA726", "show_points": true, "interpolation": "linear"},
	"voltage":     {"type": "chart", "chart_type": "line", "color": "#AB47BC", "show_points": true, "interpolation": "linear"},
	"power_factor": {"type": "gauge", "min": 0, "max": 1, "color": "#7E57C2"},
	"illuminance": {"type": "chart", "chart_type": "line", "color": "#FFEE58", "show_points": false, "interpolation": "linear"},
	"pressure":    {"type": "chart", "chart_type": "line", "color": "#8D6E63", "show_points": true, "interpolation": "linear"},
}

// domainVisualization applies when the device class has no rule.
var domainVisualization = map[string]Visualization{
	"switch":        {"type": "timeline", "on_color": "#66BB6A", "off_color": "#BDBDBD"},
	"light":         {"type": "timeline", "on_color": "#FFD54F", "off_color": "#BDBDBD"},
	"binary_sensor": {"type": "timeline", "on_color": "#66BB6A", "off_color": "#BDBDBD"},
	"lock":          {"type": "timeline", "on_color": "#EF5350", "off_color": "#66BB6A"},
	"cover":         {"type": "timeline", "on_color": "#42A5F5", "off_color": "#BDBDBD"},
}

// VisualizationFor resolves the rule table: device class first, then
// domain, then a neutral default by data type.
func VisualizationFor(deviceClass, domain string, isNumeric bool) Visualization {
	if deviceClass != "" {
		if v, ok := classVisualization[deviceClass]; ok {
			return clone(v)
		}
	}

	if v, ok := domainVisualization[domain]; ok {
		return clone(v)
	}

	if isNumeric {
		return Visualization{
			"type": "chart", "chart_type": "line", "color": "#607D8B",
			"show_points": true, "interpolation": "linear",
		}
	}

	return Visualization{"type": "timeline", "on_color": "#66BB6A", "off_color": "#BDBDBD"}
}

func clone(v Visualization) Visualization {
	out := make(Visualization, len(v))
	for k, val := range v {
		out[k] = val
	}

	return out
}
