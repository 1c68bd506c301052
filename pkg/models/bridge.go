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

// Package models defines the shared data model for the Smartly Bridge.
package models

import (
	"net"
	"time"
)

// TrustProxyMode controls how the source IP of an inbound request is resolved.
type TrustProxyMode string

const (
	TrustProxyAuto   TrustProxyMode = "auto"
	TrustProxyAlways TrustProxyMode = "always"
	TrustProxyNever  TrustProxyMode = "never"
)

// TURNConfig is an optional TURN relay appended to the default STUN set.
type TURNConfig struct {
	URL        string `json:"url"`
	Username   string `json:"username"`
	Credential string `json:"credential"`
}

// Credentials is the bridge's identity towards the platform. The secret is
// sensitive: it is used for HMAC signing in both directions and must never
// be logged.
type Credentials struct {
	InstanceID        string         `json:"instance_id"`
	ClientID          string         `json:"client_id"`
	ClientSecret      string         `json:"client_secret"`
	AllowedCIDRs      string         `json:"allowed_cidrs"`
	WebhookURL        string         `json:"webhook_url"`
	PushBatchInterval float64        `json:"push_batch_interval_seconds"`
	TrustProxyMode    TrustProxyMode `json:"trust_proxy_mode"`
	TURN              *TURNConfig    `json:"turn,omitempty"`

	// ParsedCIDRs is populated from AllowedCIDRs during config load.
	ParsedCIDRs []*net.IPNet `json:"-"`
}

// Actor identifies the platform-side user on whose behalf a control request
// was issued. The bridge records it; it does not evaluate it.
type Actor struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// ControlRequest is the body of POST /api/smartly/control.
type ControlRequest struct {
	EntityID    string                 `json:"entity_id"`
	Action      string                 `json:"action"`
	ServiceData map[string]interface{} `json:"service_data,omitempty"`
	Actor       *Actor                 `json:"actor,omitempty"`
}

// ControlResponse is the success body returned after a service call.
type ControlResponse struct {
	Success       bool                   `json:"success"`
	EntityID      string                 `json:"entity_id"`
	Action        string                 `json:"action"`
	NewState      interface{}            `json:"new_state"`
	NewAttributes map[string]interface{} `json:"new_attributes"`
	Timestamp     string                 `json:"timestamp"`
}

// EntityDescriptor is the exposed view of a hub entity. It is derived on
// demand from the hub registries and never cached by the bridge.
type EntityDescriptor struct {
	EntityID string `json:"entity_id"`
	Domain   string `json:"domain"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	AreaID   string `json:"area_id,omitempty"`
	FloorID  string `json:"floor_id,omitempty"`
}

// Structure is the topology payload of GET /sync/structure. The nested tree
// is the primary form; the flat arrays are projections with foreign keys.
type Structure struct {
	Floors   []*StructureFloor  `json:"floors"`
	Areas    []*StructureArea   `json:"areas"`
	Devices  []*StructureDevice `json:"devices"`
	Entities []EntityDescriptor `json:"entities"`
}

type StructureFloor struct {
	ID    string           `json:"id"`
	Name  string           `json:"name"`
	Areas []*StructureArea `json:"areas"`
}

type StructureArea struct {
	ID      string             `json:"id"`
	Name    string             `json:"name"`
	FloorID string             `json:"floor_id"`
	Devices []*StructureDevice `json:"devices"`
}

type StructureDevice struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	AreaID   string             `json:"area_id"`
	Entities []EntityDescriptor `json:"entities"`
}

// Synthetic placeholder ids for entities that lack a device, area or floor.
const (
	UnassignedFloorID = "_unassigned"
	UnassignedAreaID  = "_unassigned"
	VirtualDeviceID   = "_virtual"
)

// SyncState is one element of the GET /sync/states payload.
type SyncState struct {
	EntityID    string                 `json:"entity_id"`
	State       interface{}            `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
	LastUpdated time.Time              `json:"last_updated"`
	Icon        string                 `json:"icon,omitempty"`
}
