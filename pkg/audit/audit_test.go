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

package audit

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartlyhq/smartly-bridge/pkg/logger"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

func capture(t *testing.T) (*Log, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer

	return New(logger.NewWithWriter(&buf, zerolog.DebugLevel)), &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	return record
}

func TestControlRecord(t *testing.T) {
	log, buf := capture(t)

	log.Control("smartly_c", "light.bedroom", "turn_on", "success", "10.0.0.2",
		&models.Actor{UserID: "u1", Role: "admin"})

	record := lastRecord(t, buf)
	assert.Equal(t, "control", record["event"])
	assert.Equal(t, "light.bedroom", record["entity_id"])
	assert.Equal(t, "turn_on", record["service"])
	assert.Equal(t, "success", record["result"])
	assert.Equal(t, "u1", record["actor_user_id"])
	assert.Equal(t, "admin", record["actor_role"])
	assert.Equal(t, "10.0.0.2", record["source_ip"])
}

func TestDenyRecordWithoutActor(t *testing.T) {
	log, buf := capture(t)

	log.Deny("smartly_c", "lock.front", "unlock", "entity_not_allowed", "10.0.0.2", nil)

	record := lastRecord(t, buf)
	assert.Equal(t, "deny", record["event"])
	assert.Equal(t, "entity_not_allowed", record["reason"])
	assert.NotContains(t, record, "actor_user_id")
}

func TestPushRecords(t *testing.T) {
	log, buf := capture(t)

	log.PushSuccess("instance-1", 4)
	record := lastRecord(t, buf)
	assert.Equal(t, "push_success", record["event"])
	assert.Equal(t, float64(4), record["events"])

	buf.Reset()

	log.PushFail("instance-1", 2, "max_retries_exceeded")
	record = lastRecord(t, buf)
	assert.Equal(t, "push_fail", record["event"])
	assert.Equal(t, "max_retries_exceeded", record["reason"])
}
