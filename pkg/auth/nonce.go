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
	"context"
	"sync"
	"time"
)

const (
	// NonceTTL is the replay window. The 30-second timestamp tolerance is
	// the backstop if the cache is reset.
	NonceTTL = 5 * time.Minute

	nonceSweepInterval = time.Minute
)

// NonceCache is an in-memory nonce store with TTL-based expiration. It is
// per-bridge-instance state; bind it to the lifecycle object, never to the
// process.
type NonceCache struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// NewNonceCache creates a cache with the default TTL.
func NewNonceCache() *NonceCache {
	return &NonceCache{
		entries: make(map[string]time.Time),
		ttl:     NonceTTL,
		now:     time.Now,
	}
}

// CheckAndAdd atomically tests whether nonce was seen within the TTL and
// inserts it if not. It returns true when the nonce is fresh. Expired
// entries encountered under the same key are replaced.
func (c *NonceCache) CheckAndAdd(nonce string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	if seen, ok := c.entries[nonce]; ok && now.Sub(seen) <= c.ttl {
		return false
	}

	c.entries[nonce] = now

	return true
}

// Sweep removes entries older than the TTL and returns how many were
// evicted.
func (c *NonceCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := 0

	for nonce, seen := range c.entries {
		if now.Sub(seen) > c.ttl {
			delete(c.entries, nonce)
			evicted++
		}
	}

	return evicted
}

// Run sweeps the cache every minute until ctx is cancelled.
func (c *NonceCache) Run(ctx context.Context) error {
	ticker := time.NewTicker(nonceSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Len returns the current entry count.
func (c *NonceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
