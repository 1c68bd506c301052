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

// Package history holds the history query internals: cursor pagination,
// response metadata and the visualization rule table.
package history

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// ErrInvalidCursor is returned when a cursor fails to decode.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is the opaque pagination key. It carries the last emitted entry's
// timestamps; continuation starts strictly after that key in newest-first
// recorder order.
type Cursor struct {
	Timestamp   string `json:"ts"`
	LastChanged string `json:"lc"`
}

// Encode renders the cursor as URL-safe base64 JSON.
func (c Cursor) Encode() string {
	raw, _ := json.Marshal(c)

	return base64.URLEncoding.EncodeToString(raw)
}

// DecodeCursor parses a cursor string. Any tampering yields
// ErrInvalidCursor.
func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	if c.Timestamp == "" || c.LastChanged == "" {
		return Cursor{}, ErrInvalidCursor
	}

	return c, nil
}
