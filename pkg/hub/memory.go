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

package hub

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory Hub implementation. It backs the package tests and
// the local development mode of cmd/bridge; it is not a hub emulator beyond
// what the bridge observes.
type Memory struct {
	mu          sync.RWMutex
	entities    map[string]*EntityEntry
	devices     map[string]*DeviceEntry
	areas       map[string]*AreaEntry
	floors      map[string]*FloorEntry
	states      map[string]*State
	history     map[string][]*State
	stats       map[string][]StatPoint
	snapshots   map[string][]byte
	sources     map[string]string
	mjpeg       map[string][]byte
	subscribers map[int]func(StateChange)
	nextSub     int

	// ServiceErr, when set, is returned by every Call.
	ServiceErr error
	// Calls records every service invocation for assertions.
	Calls []ServiceCall
}

// ServiceCall records one Services.Call invocation.
type ServiceCall struct {
	Domain  string
	Service string
	Data    map[string]interface{}
}

// NewMemory creates an empty in-memory hub.
func NewMemory() *Memory {
	return &Memory{
		entities:    make(map[string]*EntityEntry),
		devices:     make(map[string]*DeviceEntry),
		areas:       make(map[string]*AreaEntry),
		floors:      make(map[string]*FloorEntry),
		states:      make(map[string]*State),
		history:     make(map[string][]*State),
		stats:       make(map[string][]StatPoint),
		snapshots:   make(map[string][]byte),
		sources:     make(map[string]string),
		mjpeg:       make(map[string][]byte),
		subscribers: make(map[int]func(StateChange)),
	}
}

// AddEntity registers an entity entry and, when state is non-nil, its state.
func (m *Memory) AddEntity(entry *EntityEntry, state *State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entities[entry.EntityID] = entry
	if state != nil {
		state.EntityID = entry.EntityID
		m.states[entry.EntityID] = state
	}
}

// AddDevice registers a device entry.
func (m *Memory) AddDevice(d *DeviceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d
}

// AddArea registers an area entry.
func (m *Memory) AddArea(a *AreaEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.areas[a.ID] = a
}

// AddFloor registers a floor entry.
func (m *Memory) AddFloor(f *FloorEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.floors[f.ID] = f
}

// AddHistory appends recorded states for an entity, oldest first.
func (m *Memory) AddHistory(entityID string, states ...*State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range states {
		s.EntityID = entityID
	}

	m.history[entityID] = append(m.history[entityID], states...)
}

// SetStatistics seeds statistics buckets for an entity.
func (m *Memory) SetStatistics(entityID string, points []StatPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[entityID] = points
}

// SetSnapshot seeds a camera snapshot image.
func (m *Memory) SetSnapshot(entityID string, image []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[entityID] = image
}

// SetStreamSource seeds a camera stream source URL.
func (m *Memory) SetStreamSource(entityID, source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[entityID] = source
}

// SetMJPEG seeds the raw multipart body served for a camera's MJPEG stream.
func (m *Memory) SetMJPEG(entityID string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mjpeg[entityID] = body
}

// SetState replaces an entity's state and fires a state-change event.
func (m *Memory) SetState(entityID string, next *State) {
	m.mu.Lock()
	old := m.states[entityID]
	next.EntityID = entityID
	m.states[entityID] = next

	subs := make([]func(StateChange), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	ev := StateChange{EntityID: entityID, OldState: old, NewState: next, When: next.LastUpdated}
	for _, fn := range subs {
		fn(ev)
	}
}

func (m *Memory) Entity(entityID string) (*EntityEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entities[entityID]

	return e, ok
}

func (m *Memory) Entities() []*EntityEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*EntityEntry, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })

	return out
}

func (m *Memory) Device(deviceID string) (*DeviceEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.devices[deviceID]

	return d, ok
}

func (m *Memory) Area(areaID string) (*AreaEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.areas[areaID]

	return a, ok
}

func (m *Memory) Floor(floorID string) (*FloorEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.floors[floorID]

	return f, ok
}

func (m *Memory) State(entityID string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.states[entityID]

	return s, ok
}

func (m *Memory) All() []*State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*State, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })

	return out
}

// Call records the invocation and applies the obvious state transitions for
// on/off style services so post-call reads observe an effect.
func (m *Memory) Call(_ context.Context, domain, service string, data map[string]interface{}) error {
	m.mu.Lock()
	m.Calls = append(m.Calls, ServiceCall{Domain: domain, Service: service, Data: data})
	err := m.ServiceErr
	m.mu.Unlock()

	if err != nil {
		return err
	}

	entityID, _ := data["entity_id"].(string)
	if entityID == "" {
		return nil
	}

	var next string

	switch service {
	case "turn_on", "lock":
		next = onValue(service)
	case "turn_off", "unlock":
		next = offValue(service)
	case "toggle":
		if s, ok := m.State(entityID); ok && s.State == "on" {
			next = "off"
		} else {
			next = "on"
		}
	default:
		return nil
	}

	now := time.Now().UTC()
	prev, _ := m.State(entityID)

	attrs := map[string]interface{}{}
	if prev != nil {
		for k, v := range prev.Attributes {
			attrs[k] = v
		}
	}

	for k, v := range data {
		if k != "entity_id" {
			attrs[k] = v
		}
	}

	m.SetState(entityID, &State{State: next, Attributes: attrs, LastChanged: now, LastUpdated: now})

	return nil
}

func onValue(service string) string {
	if service == "lock" {
		return "locked"
	}

	return "on"
}

func offValue(service string) string {
	if service == "unlock" {
		return "unlocked"
	}

	return "off"
}

func (m *Memory) SignificantStates(_ context.Context, entityID string, start, end time.Time, _ bool) ([]*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*State

	for _, s := range m.history[entityID] {
		if !s.LastUpdated.Before(start) && !s.LastUpdated.After(end) {
			out = append(out, s)
		}
	}

	return out, nil
}

func (m *Memory) Statistics(_ context.Context, entityIDs []string, _, _ time.Time, _ string) (map[string][]StatPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]StatPoint, len(entityIDs))
	for _, id := range entityIDs {
		if pts, ok := m.stats[id]; ok {
			out[id] = pts
		}
	}

	return out, nil
}

func (m *Memory) Snapshot(_ context.Context, entityID string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	image, ok := m.snapshots[entityID]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrNoSnapshot, entityID)
	}

	return image, "image/jpeg", nil
}

func (m *Memory) StreamSource(_ context.Context, entityID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sources[entityID], nil
}

func (m *Memory) OpenMJPEG(_ context.Context, entityID string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	body, ok := m.mjpeg[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, entityID)
	}

	return io.NopCloser(strings.NewReader(string(body))), nil
}

func (m *Memory) Subscribe(fn func(StateChange)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subscribers, id)
	}
}
