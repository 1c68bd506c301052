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

package auth

import (
	"sync"
	"time"
)

const (
	// RateLimit is the number of requests admitted per client per window.
	RateLimit = 60
	// RateWindow is the sliding-window length.
	RateWindow = time.Minute
)

// RateLimiter is a sliding-window counter per client id. Entries outside
// the window are dropped on each check, so the window never holds more
// than RateLimit timestamps per client.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewRateLimiter creates a limiter with the default limit and window.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		limit:   RateLimit,
		window:  RateWindow,
		now:     time.Now,
	}
}

// Allow admits or rejects one request for clientID. On admission the
// current time is appended to the client's window.
func (l *RateLimiter) Allow(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(clientID, now)

	if len(kept) >= l.limit {
		l.windows[clientID] = kept
		return false
	}

	l.windows[clientID] = append(kept, now)

	return true
}

// Remaining returns how many requests the client may still make in the
// current window.
func (l *RateLimiter) Remaining(clientID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(clientID, l.now())
	l.windows[clientID] = kept

	if r := l.limit - len(kept); r > 0 {
		return r
	}

	return 0
}

// RetryAfter returns the duration until the oldest entry in the client's
// window ages out. Zero when the window is not full.
func (l *RateLimiter) RetryAfter(clientID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(clientID, now)
	l.windows[clientID] = kept

	if len(kept) < l.limit {
		return 0
	}

	return kept[0].Add(l.window).Sub(now)
}

// Reset returns the unix time at which the window reopens.
func (l *RateLimiter) Reset(clientID string) int64 {
	return l.now().Add(l.RetryAfter(clientID)).Unix()
}

func (l *RateLimiter) prune(clientID string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	window := l.windows[clientID]

	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}

	return window[i:]
}
