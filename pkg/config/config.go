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

// Package config loads and validates the bridge configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/smartlyhq/smartly-bridge/pkg/auth"
	"github.com/smartlyhq/smartly-bridge/pkg/logger"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

var (
	errInvalidTrustProxyMode = errors.New("invalid trust_proxy_mode")
	errInvalidBatchInterval  = errors.New("push_batch_interval_seconds must be positive")
)

// Config is the bridge's persisted configuration.
type Config struct {
	ListenAddr  string             `json:"listen_addr"`
	Go2RTCURL   string             `json:"go2rtc_url"`
	Logging     *logger.Config     `json:"logging,omitempty"`
	Credentials models.Credentials `json:"credentials"`
}

// Load reads a JSON config file, applies environment overrides and
// normalizes the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BRIDGE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	if v := os.Getenv("BRIDGE_WEBHOOK_URL"); v != "" {
		cfg.Credentials.WebhookURL = v
	}

	if v := os.Getenv("BRIDGE_GO2RTC_URL"); v != "" {
		cfg.Go2RTCURL = v
	}
}

// Normalize fills defaults, generates missing credentials and parses the
// CIDR whitelist.
func (c *Config) Normalize() error {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8099"
	}

	EnsureCredentials(&c.Credentials)

	switch c.Credentials.TrustProxyMode {
	case "":
		c.Credentials.TrustProxyMode = models.TrustProxyAuto
	case models.TrustProxyAuto, models.TrustProxyAlways, models.TrustProxyNever:
	default:
		return fmt.Errorf("%w: %q", errInvalidTrustProxyMode, c.Credentials.TrustProxyMode)
	}

	if c.Credentials.PushBatchInterval == 0 {
		c.Credentials.PushBatchInterval = 0.5
	}

	if c.Credentials.PushBatchInterval < 0 {
		return errInvalidBatchInterval
	}

	parsed, err := auth.ParseCIDRs(c.Credentials.AllowedCIDRs)
	if err != nil {
		return fmt.Errorf("parsing allowed_cidrs: %w", err)
	}

	c.Credentials.ParsedCIDRs = parsed

	return nil
}
