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

// Package push owns the single outbound pipeline: it subscribes to the
// hub's state-change bus, coalesces events into batches, signs them and
// delivers them to the platform webhook with bounded retries, plus a
// periodic heartbeat.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/smartlyhq/smartly-bridge/pkg/audit"
	"github.com/smartlyhq/smartly-bridge/pkg/auth"
	"github.com/smartlyhq/smartly-bridge/pkg/format"
	"github.com/smartlyhq/smartly-bridge/pkg/hub"
	"github.com/smartlyhq/smartly-bridge/pkg/logger"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

const (
	// DefaultBatchInterval is the debounce window when none is configured.
	DefaultBatchInterval = 500 * time.Millisecond
	// HeartbeatInterval is the cadence of the solo heartbeat batch.
	HeartbeatInterval = time.Minute

	maxAttempts       = 3
	attemptTimeout    = 10 * time.Second
	retryAfterCeiling = 4 * time.Second
)

// Manager is the single owner of the push buffer and the hub subscription.
// One instance runs per bridge.
type Manager struct {
	creds   *models.Credentials
	events  hub.Events
	allowed func(entityID string) bool

	client *http.Client
	aud    *audit.Log
	log    zerolog.Logger

	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	buffer  []models.QueuedEvent
	armed   bool
	flushCh chan struct{}
}

// NewManager wires the pipeline. allowed gates which entities are pushed;
// it is re-consulted on every event, so allow-list changes apply without a
// resubscribe.
func NewManager(creds *models.Credentials, events hub.Events, allowed func(string) bool, aud *audit.Log, log logger.Logger) *Manager {
	interval := DefaultBatchInterval
	if creds.PushBatchInterval > 0 {
		interval = time.Duration(creds.PushBatchInterval * float64(time.Second))
	}

	return &Manager{
		creds:    creds,
		events:   events,
		allowed:  allowed,
		client:   &http.Client{Timeout: attemptTimeout},
		aud:      aud,
		log:      log.WithComponent("push"),
		interval: interval,
		now:      time.Now,
		flushCh:  make(chan struct{}, 1),
	}
}

// Run subscribes to the hub and processes batches until ctx is cancelled.
// On shutdown any pending buffer is flushed best-effort with one attempt.
func (m *Manager) Run(ctx context.Context) error {
	unsubscribe := m.events.Subscribe(m.handleEvent)
	defer unsubscribe()

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	m.log.Info().Dur("batch_interval", m.interval).Msg("push pipeline started")

	for {
		select {
		case <-ctx.Done():
			m.finalFlush()
			m.client.CloseIdleConnections()
			m.log.Info().Msg("push pipeline stopped")

			return ctx.Err()
		case <-m.flushCh:
			m.flush(ctx)
		case <-heartbeat.C:
			// The heartbeat is a solo batch; it does not touch the
			// state-change debounce.
			m.deliver(ctx, []models.QueuedEvent{{
				EventType: models.EventTypeHeartbeat,
				Timestamp: m.now().UTC().Format(time.RFC3339Nano),
			}}, maxAttempts)
		}
	}
}

// handleEvent runs on the hub's event callback. It must not block.
func (m *Manager) handleEvent(ev hub.StateChange) {
	if ev.NewState == nil || !m.allowed(ev.EntityID) {
		return
	}

	queued := models.QueuedEvent{
		EventType: models.EventTypeStateChanged,
		EntityID:  ev.EntityID,
		OldState:  m.formatState(ev.EntityID, ev.OldState),
		NewState:  m.formatState(ev.EntityID, ev.NewState),
		Timestamp: m.now().UTC().Format(time.RFC3339Nano),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.buffer = append(m.buffer, queued)

	if !m.armed {
		m.armed = true

		time.AfterFunc(m.interval, func() {
			select {
			case m.flushCh <- struct{}{}:
			default:
			}
		})
	}
}

// formatState renders a hub state display-ready for the platform.
func (m *Manager) formatState(entityID string, s *hub.State) *models.PushState {
	if s == nil {
		return nil
	}

	class, _ := s.Attributes["device_class"].(string)
	unit, _ := s.Attributes["unit_of_measurement"].(string)

	out := &models.PushState{
		State:      format.StateAuto(entityID, class, unit, s.State),
		Attributes: format.Attributes(s.Attributes),
	}

	if !s.LastChanged.IsZero() {
		out.LastChanged = s.LastChanged.UTC().Format(time.RFC3339Nano)
	}

	if !s.LastUpdated.IsZero() {
		out.LastUpdated = s.LastUpdated.UTC().Format(time.RFC3339Nano)
	}

	return out
}

// flush swaps the buffer for an empty one and delivers the captured batch.
// Events arriving during delivery accumulate into the fresh buffer.
func (m *Manager) flush(ctx context.Context) {
	m.mu.Lock()
	batch := m.buffer
	m.buffer = nil
	m.armed = false
	m.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	m.deliver(ctx, batch, maxAttempts)
}

func (m *Manager) finalFlush() {
	m.mu.Lock()
	batch := m.buffer
	m.buffer = nil
	m.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
	defer cancel()

	m.deliver(ctx, batch, 1)
}

// deliver posts one batch to the webhook with exponential-backoff retries.
// After the attempts are exhausted the batch is dropped: re-queuing would
// amplify back-pressure into the next batch.
func (m *Manager) deliver(ctx context.Context, batch []models.QueuedEvent, attempts int) {
	if m.creds.WebhookURL == "" {
		m.log.Debug().Msg("no webhook url configured, dropping batch")
		return
	}

	body, err := json.Marshal(models.PushBatch{Events: batch})
	if err != nil {
		m.log.Error().Err(err).Msg("marshal push batch")
		return
	}

	target := strings.TrimRight(m.creds.WebhookURL, "/") + "/events"

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Second
	expo.RandomizationFactor = 0
	expo.Multiplier = 2
	expo.MaxInterval = retryAfterCeiling

	operation := func() (struct{}, error) {
		return struct{}{}, m.attempt(ctx, target, body)
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(attempts)))
	if err != nil {
		m.aud.PushFail(m.creds.InstanceID, len(batch), "max_retries_exceeded")
		return
	}

	m.aud.PushSuccess(m.creds.InstanceID, len(batch))
}

func (m *Manager) attempt(ctx context.Context, target string, body []byte) error {
	attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}

	req.Header = auth.SignOutbound(
		m.creds.ClientSecret, m.creds.InstanceID, m.creds.ClientID,
		http.MethodPost, req.URL.Path, body)

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		if after := parseRetryAfter(resp.Header.Get("Retry-After")); after > 0 {
			return backoff.RetryAfter(int(after / time.Second))
		}

		return fmt.Errorf("webhook rate limited")
	default:
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
}

// parseRetryAfter honors Retry-After seconds, capped so a hostile value
// cannot stall the pipeline.
func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return 0
	}

	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0
	}

	after := time.Duration(seconds) * time.Second
	if after > retryAfterCeiling {
		after = retryAfterCeiling
	}

	return after
}

// Pending reports the buffered event count.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.buffer)
}
