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

package webrtc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const go2rtcTimeout = 10 * time.Second

// DefaultGo2RTCBaseURL is where the local media server is assumed to
// listen.
const DefaultGo2RTCBaseURL = "http://localhost:1984"

var (
	// ErrGo2RTCUnavailable means the media server could not be reached.
	ErrGo2RTCUnavailable = errors.New("go2rtc not available")
	// ErrStreamUnknown means the media server does not know the stream yet.
	ErrStreamUnknown = errors.New("stream unknown to go2rtc")
)

// Go2RTCClient talks to the local go2rtc HTTP API. It is an opaque
// external collaborator; the bridge only needs SDP exchange, candidate
// forwarding and stream registration.
type Go2RTCClient struct {
	baseURL string
	client  *http.Client
}

// NewGo2RTCClient creates a client for the media server at baseURL.
func NewGo2RTCClient(baseURL string) *Go2RTCClient {
	if baseURL == "" {
		baseURL = DefaultGo2RTCBaseURL
	}

	return &Go2RTCClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: go2rtcTimeout},
	}
}

type sdpPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Offer posts an SDP offer for the stream named src and returns the answer
// SDP. ErrStreamUnknown signals that the stream needs registration first.
func (c *Go2RTCClient) Offer(ctx context.Context, src, offerSDP string) (string, error) {
	body, _ := json.Marshal(sdpPayload{Type: "offer", SDP: offerSDP})

	resp, err := c.post(ctx, "/api/webrtc?src="+url.QueryEscape(src), body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrStreamUnknown
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("go2rtc webrtc endpoint returned %d", resp.StatusCode)
	}

	var answer sdpPayload
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return "", fmt.Errorf("decoding go2rtc answer: %w", err)
	}

	return answer.SDP, nil
}

// RegisterStream creates or replaces a named stream pointing at source.
func (c *Go2RTCClient) RegisterStream(ctx context.Context, name, source string) error {
	target := c.baseURL + "/api/streams?name=" + url.QueryEscape(name) + "&src=" + url.QueryEscape(source)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGo2RTCUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("go2rtc stream registration returned %d", resp.StatusCode)
	}

	return nil
}

// Candidate forwards one ICE candidate for the stream named src.
func (c *Go2RTCClient) Candidate(ctx context.Context, src string, candidate map[string]interface{}) error {
	payload := map[string]interface{}{"type": "candidate"}
	for k, v := range candidate {
		payload[k] = v
	}

	body, _ := json.Marshal(payload)

	resp, err := c.post(ctx, "/api/webrtc?src="+url.QueryEscape(src), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("go2rtc candidate forward returned %d", resp.StatusCode)
	}

	return nil
}

// Hangup asks the media server to drop state for the stream named src.
// Best effort: session teardown must not fail because the media server
// already forgot the stream.
func (c *Go2RTCClient) Hangup(ctx context.Context, src string) error {
	target := c.baseURL + "/api/webrtc?src=" + url.QueryEscape(src)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGo2RTCUnavailable, err)
	}
	defer resp.Body.Close()

	return nil
}

func (c *Go2RTCClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGo2RTCUnavailable, err)
	}

	return resp, nil
}
