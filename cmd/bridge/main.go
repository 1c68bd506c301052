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

package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"github.com/smartlyhq/smartly-bridge/cmd/bridge/app"
	"github.com/smartlyhq/smartly-bridge/pkg/hub"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/smartly-bridge/bridge.json", "Path to bridge config file")
	seedPath := flag.String("seed", "", "Optional hub seed file for local development")
	flag.Parse()

	h, err := buildHub(*seedPath)
	if err != nil {
		return err
	}

	return app.Run(context.Background(), app.Options{
		ConfigPath: *configPath,
		Hub:        h,
	})
}

// seedFile describes the in-memory development hub. Production deployments
// replace this with a real hub adapter.
type seedFile struct {
	Floors  []hub.FloorEntry  `json:"floors"`
	Areas   []hub.AreaEntry   `json:"areas"`
	Devices []hub.DeviceEntry `json:"devices"`

	Entities []struct {
		hub.EntityEntry
		State      string                 `json:"state"`
		Attributes map[string]interface{} `json:"attributes"`
	} `json:"entities"`
}

func buildHub(seedPath string) (hub.Hub, error) {
	m := hub.NewMemory()

	if seedPath == "" {
		return m, nil
	}

	raw, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, err
	}

	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, err
	}

	for i := range seed.Floors {
		m.AddFloor(&seed.Floors[i])
	}

	for i := range seed.Areas {
		m.AddArea(&seed.Areas[i])
	}

	for i := range seed.Devices {
		m.AddDevice(&seed.Devices[i])
	}

	now := time.Now().UTC()

	for i := range seed.Entities {
		e := seed.Entities[i]

		var state *hub.State
		if e.State != "" {
			state = &hub.State{
				State:       e.State,
				Attributes:  e.Attributes,
				LastChanged: now,
				LastUpdated: now,
			}
		}

		entry := e.EntityEntry
		m.AddEntity(&entry, state)
	}

	return m, nil
}
