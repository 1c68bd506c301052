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

// Push event types delivered to the platform webhook.
const (
	EventTypeStateChanged = "state_changed"
	EventTypeHeartbeat    = "heartbeat"
)

// PushState is a formatted entity state as the platform sees it.
type PushState struct {
	State       interface{}            `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged string                 `json:"last_changed,omitempty"`
	LastUpdated string                 `json:"last_updated,omitempty"`
}

// QueuedEvent accumulates in the push buffer between flushes.
type QueuedEvent struct {
	EventType string     `json:"event_type"`
	EntityID  string     `json:"entity_id,omitempty"`
	OldState  *PushState `json:"old_state,omitempty"`
	NewState  *PushState `json:"new_state,omitempty"`
	Timestamp string     `json:"timestamp"`
}

// PushBatch is the body of POST {webhook_url}/events.
type PushBatch struct {
	Events []QueuedEvent `json:"events"`
}
