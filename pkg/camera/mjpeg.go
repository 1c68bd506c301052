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

package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const streamChunkSize = 8 * 1024

// ErrStreamUnavailable is returned when no MJPEG source can be opened.
var ErrStreamUnavailable = errors.New("stream unavailable")

// openMJPEG returns the upstream multipart body for a camera: the
// registered stream URL when configured, else the hub's native MJPEG
// stream.
func (m *Manager) openMJPEG(ctx context.Context, entityID string) (io.ReadCloser, error) {
	cfg, ok := m.Config(entityID)
	if !ok || cfg.StreamURL == "" {
		body, err := m.hubCamera.OpenMJPEG(ctx, entityID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrStreamUnavailable, entityID)
		}

		return body, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.StreamURL, nil)
	if err != nil {
		return nil, err
	}

	applyCameraAuth(req, cfg)

	// Streams are long-lived; the snapshot client's timeout must not apply.
	client := &http.Client{Transport: m.httpClientFor(cfg).Transport}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStreamUnavailable, entityID)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: upstream returned %d", ErrStreamUnavailable, resp.StatusCode)
	}

	return resp.Body, nil
}

// ServeMJPEG proxies a camera's MJPEG stream to the client. The upstream
// already produces a valid multipart stream, so the response hijacks the
// connection and forwards body bytes verbatim: re-framing them as HTTP
// chunks breaks clients that parse "--frame" as a chunk-length prefix.
func (m *Manager) ServeMJPEG(w http.ResponseWriter, r *http.Request, entityID string) error {
	upstream, err := m.openMJPEG(r.Context(), entityID)
	if err != nil {
		return err
	}
	defer upstream.Close()

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		return errors.New("response writer does not support hijacking")
	}

	conn, buf, err := hijacker.Hijack()
	if err != nil {
		return err
	}
	defer conn.Close()

	header := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: multipart/x-mixed-replace;boundary=frame\r\n" +
		"Cache-Control: no-cache\r\n" +
		"Connection: close\r\n" +
		"\r\n"

	if _, err := buf.WriteString(header); err != nil {
		return err
	}

	if err := buf.Flush(); err != nil {
		return err
	}

	// Tear down the upstream read as soon as the client goes away.
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-r.Context().Done():
			upstream.Close()
		case <-done:
		}
	}()

	err = copyStream(buf, upstream)

	m.log.Debug().Err(err).Str("entity_id", entityID).Msg("mjpeg stream ended")

	return nil
}

// copyStream forwards upstream bytes in fixed-size chunks until either end
// closes.
func copyStream(buf *bufio.ReadWriter, upstream io.Reader) error {
	chunk := make([]byte, streamChunkSize)

	for {
		n, readErr := upstream.Read(chunk)

		if n > 0 {
			if _, err := buf.Write(chunk[:n]); err != nil {
				return err
			}

			if err := buf.Flush(); err != nil {
				return err
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}

			return readErr
		}
	}
}
