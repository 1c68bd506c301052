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

// Package api provides the HTTP API server for the Smartly Bridge.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/smartlyhq/smartly-bridge/pkg/audit"
	"github.com/smartlyhq/smartly-bridge/pkg/auth"
	"github.com/smartlyhq/smartly-bridge/pkg/camera"
	"github.com/smartlyhq/smartly-bridge/pkg/hub"
	"github.com/smartlyhq/smartly-bridge/pkg/logger"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
	"github.com/smartlyhq/smartly-bridge/pkg/webrtc"
)

// APIPrefix is the fixed path prefix of the bridge's HTTP surface.
const APIPrefix = "/api/smartly"

// maxConcurrentHistoryQueries bounds recorder work off the request path.
const maxConcurrentHistoryQueries = 4

// Server is the bridge's HTTP API server.
type Server struct {
	router   *mux.Router
	creds    *models.Credentials
	verifier *auth.Verifier
	aud      *audit.Log
	hub      hub.Hub
	cameras  *camera.Manager
	rtc      *webrtc.Manager
	go2rtc   *webrtc.Go2RTCClient
	logger   logger.Logger

	historyGate chan struct{}
	httpServer  *http.Server
}

// NewServer creates an API server instance with the given configuration.
func NewServer(creds *models.Credentials, options ...func(*Server)) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		creds:       creds,
		historyGate: make(chan struct{}, maxConcurrentHistoryQueries),
		logger:      logger.NewTestLogger(),
	}

	for _, o := range options {
		o(s)
	}

	if s.aud == nil {
		s.aud = audit.New(s.logger)
	}

	if s.go2rtc == nil {
		s.go2rtc = webrtc.NewGo2RTCClient(webrtc.DefaultGo2RTCBaseURL)
	}

	s.setupRoutes()

	return s
}

// WithLogger sets the server logger.
func WithLogger(log logger.Logger) func(*Server) {
	return func(s *Server) { s.logger = log }
}

// WithHub attaches the hub adapter.
func WithHub(h hub.Hub) func(*Server) {
	return func(s *Server) { s.hub = h }
}

// WithVerifier attaches the request verifier.
func WithVerifier(v *auth.Verifier) func(*Server) {
	return func(s *Server) { s.verifier = v }
}

// WithAudit attaches the audit log.
func WithAudit(a *audit.Log) func(*Server) {
	return func(s *Server) { s.aud = a }
}

// WithCameraManager attaches the camera manager.
func WithCameraManager(m *camera.Manager) func(*Server) {
	return func(s *Server) { s.cameras = m }
}

// WithWebRTCManager attaches the WebRTC token/session manager.
func WithWebRTCManager(m *webrtc.Manager) func(*Server) {
	return func(s *Server) { s.rtc = m }
}

// WithGo2RTCClient attaches the media-server client.
func WithGo2RTCClient(c *webrtc.Go2RTCClient) func(*Server) {
	return func(s *Server) { s.go2rtc = c }
}

func (s *Server) setupRoutes() {
	r := s.router.PathPrefix(APIPrefix).Subrouter()

	r.HandleFunc("/control", s.authenticated("control", s.handleControl)).Methods(http.MethodPost)

	r.HandleFunc("/sync/structure", s.authenticated("sync", s.handleSyncStructure)).Methods(http.MethodGet)
	r.HandleFunc("/sync/states", s.authenticated("sync", s.handleSyncStates)).Methods(http.MethodGet)

	r.HandleFunc("/history/batch", s.authenticated("history", s.handleHistoryBatch)).Methods(http.MethodPost)
	r.HandleFunc("/history/statistics", s.authenticated("history", s.handleStatistics)).Methods(http.MethodPost)
	r.HandleFunc("/history/{entity_id}", s.authenticated("history", s.handleHistory)).Methods(http.MethodGet)

	r.HandleFunc("/camera/list", s.authenticated("camera", s.handleCameraList)).Methods(http.MethodGet)
	r.HandleFunc("/camera/config", s.authenticated("camera", s.handleCameraConfig)).Methods(http.MethodPost)
	r.HandleFunc("/camera/{entity_id}/snapshot", s.authenticated("camera", s.handleSnapshot)).Methods(http.MethodGet)
	r.HandleFunc("/camera/{entity_id}/stream/hls", s.authenticated("camera", s.handleHLS)).Methods(http.MethodGet)
	r.HandleFunc("/camera/{entity_id}/stream", s.authenticated("camera", s.handleStream)).Methods(http.MethodGet)

	r.HandleFunc("/camera/{entity_id}/webrtc", s.authenticated("webrtc", s.handleWebRTCToken)).Methods(http.MethodPost)

	// The SDP/ICE/hangup plane is gated by token and session id, not HMAC.
	r.HandleFunc("/camera/{entity_id}/webrtc/offer", s.handleWebRTCOffer).Methods(http.MethodPost)
	r.HandleFunc("/camera/{entity_id}/webrtc/ice", s.handleWebRTCICE).Methods(http.MethodPost)
	r.HandleFunc("/camera/{entity_id}/webrtc/hangup", s.handleWebRTCHangup).Methods(http.MethodPost)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start serves HTTP on addr until ctx is cancelled, then drains with a
// short bound.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			_ = s.httpServer.Close()
		}

		return ctx.Err()
	}
}
