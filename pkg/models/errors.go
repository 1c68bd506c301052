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

// ErrorResponse is the wire shape of every error the bridge returns. The
// Error strings form a closed taxonomy; clients match on them, so they are
// stable and upstream exception text never leaks into them.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Authentication failures (401 unless noted).
const (
	ErrIPNotAllowed     = "ip_not_allowed"
	ErrMissingHeaders   = "missing_headers"
	ErrInvalidClientID  = "invalid_client_id"
	ErrInvalidTimestamp = "invalid_timestamp"
	ErrNonceReused      = "nonce_reused"
	ErrInvalidSignature = "invalid_signature"
	ErrRateLimited      = "rate_limited" // 429
)

// Request-shape failures (400).
const (
	ErrInvalidJSON           = "invalid_json"
	ErrMissingRequiredFields = "missing_required_fields"
	ErrInvalidEntityID       = "invalid_entity_id"
	ErrInvalidAction         = "invalid_action"
	ErrInvalidServiceData    = "invalid_service_data"
	ErrInvalidTimeRange      = "invalid_time_range"
	ErrInvalidPeriod         = "invalid_period"
	ErrInvalidCursor         = "invalid_cursor"
	ErrTooManyEntities       = "too_many_entities"
)

// Authorization failures (403).
const (
	ErrEntityNotAllowed  = "entity_not_allowed"
	ErrServiceNotAllowed = "service_not_allowed"
	ErrACLDenied         = "acl_denied"
)

// Not-found failures (404).
const (
	ErrEntityNotFound      = "entity_not_found"
	ErrCameraNotFound      = "camera_not_found"
	ErrSnapshotUnavailable = "snapshot_unavailable"
	ErrSessionNotFound     = "session_not_found"
)

// Upstream failures (500 unless noted).
const (
	ErrServiceCallFailed     = "service_call_failed"
	ErrHistoryQueryFailed    = "history_query_failed"
	ErrStatisticsQueryFailed = "statistics_query_failed"
	ErrWebRTCFailed          = "webrtc_failed"
	ErrGo2RTCNotAvailable    = "go2rtc_not_available"
	ErrStreamSourceNotFound  = "stream_source_not_found"  // 404 from the camera handlers
	ErrInvalidOrExpiredToken = "invalid_or_expired_token" // 401, WebRTC token plane
)

// Infrastructure failures (500/503).
const (
	ErrIntegrationNotConfigured    = "integration_not_configured"
	ErrCameraManagerNotInitialized = "camera_manager_not_initialized"
	ErrWebRTCNotAvailable          = "webrtc_not_available"
	ErrServiceUnavailable          = "service_unavailable"
	ErrInternalServerError         = "internal_server_error"
)
