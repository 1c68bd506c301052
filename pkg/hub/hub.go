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

// Package hub defines the interfaces the bridge uses to talk to the
// home-automation hub it is attached to. The hub runtime itself - entity
// and device registries, service calls, the recorder and the camera
// subsystem - is an external collaborator; the bridge only depends on
// these contracts.
package hub

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrEntityNotFound is returned when an entity id is unknown to the hub.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrUnknownService is returned when (domain, service) does not resolve.
	ErrUnknownService = errors.New("unknown service")
	// ErrInvalidServiceData is returned when a service rejects a payload key,
	// the hub-side "unexpected keyword argument" class of failure.
	ErrInvalidServiceData = errors.New("invalid service data")
	// ErrNoSnapshot is returned when a camera cannot produce an image.
	ErrNoSnapshot = errors.New("no snapshot available")
)

// State is an entity state as reported by the hub.
type State struct {
	EntityID    string
	State       string
	Attributes  map[string]interface{}
	LastChanged time.Time
	LastUpdated time.Time
}

// EntityEntry is an entity registry record.
type EntityEntry struct {
	EntityID     string
	Name         string
	OriginalName string
	Icon         string
	OriginalIcon string
	DeviceID     string
	AreaID       string
	Labels       []string
}

// HasLabel reports whether the entry carries the given label, exact match.
func (e *EntityEntry) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}

	return false
}

// DisplayName returns the user-set name, falling back to the original name.
func (e *EntityEntry) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}

	return e.OriginalName
}

// DeviceEntry is a device registry record.
type DeviceEntry struct {
	ID     string
	Name   string
	AreaID string
}

// AreaEntry is an area registry record.
type AreaEntry struct {
	ID      string
	Name    string
	FloorID string
}

// FloorEntry is a floor registry record.
type FloorEntry struct {
	ID   string
	Name string
}

// Registry provides read access to the hub's entity, device, area and
// floor registries.
type Registry interface {
	Entity(entityID string) (*EntityEntry, bool)
	Entities() []*EntityEntry
	Device(deviceID string) (*DeviceEntry, bool)
	Area(areaID string) (*AreaEntry, bool)
	Floor(floorID string) (*FloorEntry, bool)
}

// States provides read access to current entity states.
type States interface {
	State(entityID string) (*State, bool)
	All() []*State
}

// Services invokes hub services. Call blocks until the hub reports the
// service call completed.
type Services interface {
	Call(ctx context.Context, domain, service string, data map[string]interface{}) error
}

// StatPoint is one aggregated statistics bucket from the recorder.
type StatPoint struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Mean  *float64  `json:"mean,omitempty"`
	Min   *float64  `json:"min,omitempty"`
	Max   *float64  `json:"max,omitempty"`
	Sum   *float64  `json:"sum,omitempty"`
}

// Recorder queries the hub's history store. Implementations are expected to
// run queries off the request path; the bridge additionally gates concurrent
// calls.
type Recorder interface {
	// SignificantStates returns recorded states for one entity in
	// [start, end], oldest first.
	SignificantStates(ctx context.Context, entityID string, start, end time.Time, significantOnly bool) ([]*State, error)
	// Statistics returns period-aggregated buckets per entity id.
	Statistics(ctx context.Context, entityIDs []string, start, end time.Time, period string) (map[string][]StatPoint, error)
}

// Camera exposes the hub's native camera subsystem.
type Camera interface {
	// Snapshot returns a still image and its content type.
	Snapshot(ctx context.Context, entityID string) ([]byte, string, error)
	// StreamSource returns the camera's stream source URL, empty when the
	// camera has none.
	StreamSource(ctx context.Context, entityID string) (string, error)
	// OpenMJPEG opens the camera's MJPEG stream. The returned reader yields
	// the multipart body bytes; the caller must close it.
	OpenMJPEG(ctx context.Context, entityID string) (io.ReadCloser, error)
}

// StateChange is one event from the hub's state-change bus.
type StateChange struct {
	EntityID string
	OldState *State
	NewState *State
	When     time.Time
}

// Events is the hub's state-change event bus. Subscribe registers a
// callback and returns an unsubscribe handle; the callback must not block.
type Events interface {
	Subscribe(fn func(StateChange)) (unsubscribe func())
}

// Hub aggregates every hub-facing dependency the bridge needs.
type Hub interface {
	Registry
	States
	Services
	Recorder
	Camera
	Events
}
