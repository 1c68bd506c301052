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

// Package audit emits one structured record per control outcome and per
// deny, uniformly across the control, history, camera, webrtc and push
// paths.
package audit

import (
	"github.com/rs/zerolog"

	"github.com/smartlyhq/smartly-bridge/pkg/logger"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

// Log is the audit facade. It owns no state beyond a component logger.
type Log struct {
	logger zerolog.Logger
}

// New creates the audit log on top of the host logger.
func New(log logger.Logger) *Log {
	return &Log{logger: log.WithComponent("audit")}
}

func (a *Log) withActor(ev *zerolog.Event, actor *models.Actor) *zerolog.Event {
	if actor != nil {
		ev = ev.Str("actor_user_id", actor.UserID).Str("actor_role", actor.Role)
	}

	return ev
}

// Control records a control-plane outcome (service call, token issue, SDP
// exchange).
func (a *Log) Control(clientID, entityID, service, result, sourceIP string, actor *models.Actor) {
	a.withActor(a.logger.Info(), actor).
		Str("event", "control").
		Str("client_id", clientID).
		Str("entity_id", entityID).
		Str("service", service).
		Str("result", result).
		Str("source_ip", sourceIP).
		Send()
}

// Deny records a rejected request with its reason.
func (a *Log) Deny(clientID, entityID, service, reason, sourceIP string, actor *models.Actor) {
	a.withActor(a.logger.Warn(), actor).
		Str("event", "deny").
		Str("client_id", clientID).
		Str("entity_id", entityID).
		Str("service", service).
		Str("reason", reason).
		Str("source_ip", sourceIP).
		Send()
}

// RateLimit records a rate-limit rejection with the endpoint that hit it.
func (a *Log) RateLimit(clientID, endpoint, sourceIP string) {
	a.logger.Warn().
		Str("event", "rate_limit").
		Str("client_id", clientID).
		Str("endpoint", endpoint).
		Str("source_ip", sourceIP).
		Send()
}

// PushSuccess records a delivered batch.
func (a *Log) PushSuccess(instanceID string, eventCount int) {
	a.logger.Debug().
		Str("event", "push_success").
		Str("instance_id", instanceID).
		Int("events", eventCount).
		Send()
}

// PushFail records a dropped batch after retries were exhausted.
func (a *Log) PushFail(instanceID string, eventCount int, reason string) {
	a.logger.Error().
		Str("event", "push_fail").
		Str("instance_id", instanceID).
		Int("events", eventCount).
		Str("reason", reason).
		Send()
}

// Lifecycle records a bridge lifecycle event (setup, teardown, option
// reload).
func (a *Log) Lifecycle(event, details string) {
	ev := a.logger.Info().Str("event", "lifecycle").Str("lifecycle_event", event)
	if details != "" {
		ev = ev.Str("details", details)
	}

	ev.Send()
}
