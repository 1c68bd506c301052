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

// Package camera implements the bridge's camera media plane: a snapshot
// cache with ETag/TTL semantics, an MJPEG stream proxy, HLS session
// bookkeeping and the in-memory camera registry.
package camera

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartlyhq/smartly-bridge/pkg/hub"
	"github.com/smartlyhq/smartly-bridge/pkg/logger"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

const (
	// SnapshotTTL is how long a cached snapshot stays fresh.
	SnapshotTTL = 30 * time.Second
	// snapshotTimeout bounds one upstream snapshot fetch.
	snapshotTimeout = 10 * time.Second
	// sweepInterval is the cadence of the expiry sweeper.
	sweepInterval = time.Minute
	// maxCachedSnapshots bounds the cache; oldest entries are pruned first.
	maxCachedSnapshots = 64
)

// ErrSnapshotUnavailable is returned when no source can produce an image.
var ErrSnapshotUnavailable = errors.New("snapshot unavailable")

// Manager owns all camera state for one bridge instance. All mutations are
// serialized per structure; nothing here is process-static.
type Manager struct {
	mu      sync.Mutex
	cache   map[string]*models.CameraSnapshot
	configs map[string]*models.CameraConfig

	hlsMu    sync.Mutex
	sessions map[string]*HLSSession

	hubCamera hub.Camera
	client    *http.Client
	insecure  *http.Client
	log       zerolog.Logger
	ttl       time.Duration
	now       func() time.Time
}

// NewManager creates a camera manager backed by the hub's camera subsystem.
func NewManager(hubCamera hub.Camera, log logger.Logger) *Manager {
	transport := &http.Transport{MaxIdleConns: 10, MaxIdleConnsPerHost: 2}

	insecureTransport := transport.Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // verify_ssl=false is an explicit per-camera opt-out

	return &Manager{
		cache:     make(map[string]*models.CameraSnapshot),
		configs:   make(map[string]*models.CameraConfig),
		sessions:  make(map[string]*HLSSession),
		hubCamera: hubCamera,
		client:    &http.Client{Timeout: snapshotTimeout, Transport: transport},
		insecure:  &http.Client{Timeout: snapshotTimeout, Transport: insecureTransport},
		log:       log.WithComponent("camera"),
		ttl:       SnapshotTTL,
		now:       time.Now,
	}
}

// Run sweeps expired snapshots and idle HLS sessions until ctx is
// cancelled.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.sweepSnapshots()
			m.sweepIdleSessions()
		}
	}
}

func (m *Manager) sweepSnapshots() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	for id, snap := range m.cache {
		if snap.Expired(m.ttl, now) {
			delete(m.cache, id)
		}
	}
}

// Register adds or replaces a camera configuration.
func (m *Manager) Register(cfg *models.CameraConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.configs[cfg.EntityID] = cfg
	m.log.Info().Str("entity_id", cfg.EntityID).Msg("registered camera")
}

// Unregister removes a camera configuration and its cached snapshot.
func (m *Manager) Unregister(entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.configs, entityID)
	delete(m.cache, entityID)
	m.log.Info().Str("entity_id", entityID).Msg("unregistered camera")
}

// Config returns the registered configuration for a camera, if any.
func (m *Manager) Config(entityID string) (*models.CameraConfig, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, ok := m.configs[entityID]

	return cfg, ok
}

// List enumerates registered cameras.
func (m *Manager) List() []models.CameraInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.CameraInfo, 0, len(m.configs))

	for _, cfg := range m.configs {
		out = append(out, models.CameraInfo{
			EntityID:    cfg.EntityID,
			Name:        cfg.Name,
			HasSnapshot: cfg.SnapshotURL != "",
			HasStream:   cfg.StreamURL != "",
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })

	return out
}

// ClearCache drops cached snapshots; entityID empty clears everything.
// Returns the number of entries removed.
func (m *Manager) ClearCache(entityID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entityID != "" {
		if _, ok := m.cache[entityID]; ok {
			delete(m.cache, entityID)
			return 1
		}

		return 0
	}

	n := len(m.cache)
	m.cache = make(map[string]*models.CameraSnapshot)

	return n
}

// Snapshot returns a camera image, serving from cache when fresh. When
// ifNoneMatch equals the cached ETag, notModified is true and the snapshot
// is the cached one. refresh forces an upstream fetch.
func (m *Manager) Snapshot(ctx context.Context, entityID string, refresh bool, ifNoneMatch string) (snap *models.CameraSnapshot, notModified bool, err error) {
	if !refresh {
		m.mu.Lock()
		if cached, ok := m.cache[entityID]; ok && !cached.Expired(m.ttl, m.now()) {
			m.mu.Unlock()

			if ifNoneMatch != "" && ifNoneMatch == cached.ETag {
				return cached, true, nil
			}

			return cached, false, nil
		}
		m.mu.Unlock()
	}

	snap, err = m.fetchSnapshot(ctx, entityID)
	if err != nil {
		return nil, false, err
	}

	m.store(snap)

	if ifNoneMatch != "" && ifNoneMatch == snap.ETag {
		return snap, true, nil
	}

	return snap, false, nil
}

func (m *Manager) store(snap *models.CameraSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache[snap.EntityID] = snap

	if len(m.cache) <= maxCachedSnapshots {
		return
	}

	// Prune the oldest entry to stay within the bound.
	var oldestID string

	var oldest time.Time

	for id, s := range m.cache {
		if oldestID == "" || s.CapturedAt.Before(oldest) {
			oldestID = id
			oldest = s.CapturedAt
		}
	}

	delete(m.cache, oldestID)
}

func (m *Manager) fetchSnapshot(ctx context.Context, entityID string) (*models.CameraSnapshot, error) {
	cfg, hasConfig := m.Config(entityID)

	if hasConfig && cfg.SnapshotURL != "" {
		snap, err := m.fetchFromURL(ctx, entityID, cfg)
		if err == nil {
			return snap, nil
		}

		m.log.Debug().Err(err).Str("entity_id", entityID).Msg("registered snapshot source failed, trying hub")
	}

	image, contentType, err := m.hubCamera.Snapshot(ctx, entityID)
	if err != nil {
		m.log.Error().Err(err).Str("entity_id", entityID).Msg("snapshot fetch failed")
		return nil, fmt.Errorf("%w: %s", ErrSnapshotUnavailable, entityID)
	}

	return m.newSnapshot(entityID, image, contentType), nil
}

func (m *Manager) fetchFromURL(ctx context.Context, entityID string, cfg *models.CameraConfig) (*models.CameraSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.SnapshotURL, nil)
	if err != nil {
		return nil, err
	}

	applyCameraAuth(req, cfg)

	resp, err := m.httpClientFor(cfg).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot source returned %d", resp.StatusCode)
	}

	image, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	return m.newSnapshot(entityID, image, contentType), nil
}

func (m *Manager) newSnapshot(entityID string, image []byte, contentType string) *models.CameraSnapshot {
	sum := sha256.Sum256(image)

	return &models.CameraSnapshot{
		EntityID:    entityID,
		Image:       image,
		ContentType: contentType,
		CapturedAt:  m.now(),
		ETag:        hex.EncodeToString(sum[:]),
	}
}

// httpClientFor picks the TLS-verifying client unless the camera opted out.
func (m *Manager) httpClientFor(cfg *models.CameraConfig) *http.Client {
	if cfg.VerifySSL != nil && !*cfg.VerifySSL {
		return m.insecure
	}

	return m.client
}

func applyCameraAuth(req *http.Request, cfg *models.CameraConfig) {
	if cfg.Username != "" && cfg.Password != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}

	for k, v := range cfg.ExtraHeaders {
		req.Header.Set(k, v)
	}
}

// CacheStats reports the snapshot cache contents.
func (m *Manager) CacheStats() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]map[string]interface{}, 0, len(m.cache))

	for id, snap := range m.cache {
		entries = append(entries, map[string]interface{}{
			"entity_id":    id,
			"age_seconds":  m.now().Sub(snap.CapturedAt).Round(100 * time.Millisecond).Seconds(),
			"size_bytes":   len(snap.Image),
			"content_type": snap.ContentType,
		})
	}

	return map[string]interface{}{
		"cached_snapshots":   len(m.cache),
		"registered_cameras": len(m.configs),
		"cache_entries":      entries,
	}
}

// Capabilities reports what the bridge can serve for one camera.
func (m *Manager) Capabilities(ctx context.Context, entityID, name string) models.CameraCapabilities {
	cfg, _ := m.Config(entityID)

	source, err := m.hubCamera.StreamSource(ctx, entityID)
	supportsHLS := err == nil && source != ""

	m.hlsMu.Lock()
	_, streaming := m.sessions[entityID]
	m.hlsMu.Unlock()

	caps := models.CameraCapabilities{
		EntityID: entityID,
		Name:     name,
		Capabilities: map[string]bool{
			"snapshot": true,
			"mjpeg":    true,
			"hls":      supportsHLS,
			"webrtc":   supportsHLS,
		},
		Endpoints: map[string]string{
			"snapshot": "/api/smartly/camera/" + entityID + "/snapshot",
			"mjpeg":    "/api/smartly/camera/" + entityID + "/stream",
		},
		IsStreaming: streaming,
	}

	if supportsHLS {
		caps.Endpoints["hls"] = "/api/smartly/camera/" + entityID + "/stream/hls"
		caps.Endpoints["webrtc"] = "/api/smartly/camera/" + entityID + "/webrtc"
	}

	if cfg != nil && caps.Name == "" {
		caps.Name = cfg.Name
	}

	return caps
}
