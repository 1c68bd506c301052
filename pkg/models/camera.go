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

package models

import "time"

// CameraConfig is a registered camera source. Credentials are held in
// process memory only and never persisted or logged.
type CameraConfig struct {
	EntityID     string            `json:"entity_id"`
	Name         string            `json:"name"`
	SnapshotURL  string            `json:"snapshot_url,omitempty"`
	StreamURL    string            `json:"stream_url,omitempty"`
	Username     string            `json:"username,omitempty"`
	Password     string            `json:"password,omitempty"`
	VerifySSL    *bool             `json:"verify_ssl,omitempty"`
	ExtraHeaders map[string]string `json:"extra_headers,omitempty"`
}

// CameraSnapshot is a cached JPEG frame. ETag is the lowercase hex SHA-256
// of the image bytes.
type CameraSnapshot struct {
	EntityID    string
	Image       []byte
	ContentType string
	CapturedAt  time.Time
	ETag        string
}

// Expired reports whether the snapshot is older than ttl.
func (s *CameraSnapshot) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.CapturedAt) > ttl
}

// CameraInfo is one element of GET /camera/list.
type CameraInfo struct {
	EntityID    string `json:"entity_id"`
	Name        string `json:"name"`
	HasSnapshot bool   `json:"has_snapshot"`
	HasStream   bool   `json:"has_stream"`
}

// CameraCapabilities is the expanded list form (?capabilities=true) and the
// HLS info payload.
type CameraCapabilities struct {
	EntityID     string            `json:"entity_id"`
	Name         string            `json:"name"`
	Capabilities map[string]bool   `json:"capabilities"`
	Endpoints    map[string]string `json:"endpoints"`
	IsStreaming  bool              `json:"is_streaming"`
}
