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

// Package app wires the bridge: configuration, hub adapter, managers, the
// HTTP surface and the push pipeline, supervised under one errgroup.
package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/smartlyhq/smartly-bridge/pkg/acl"
	"github.com/smartlyhq/smartly-bridge/pkg/api"
	"github.com/smartlyhq/smartly-bridge/pkg/audit"
	"github.com/smartlyhq/smartly-bridge/pkg/auth"
	"github.com/smartlyhq/smartly-bridge/pkg/camera"
	"github.com/smartlyhq/smartly-bridge/pkg/config"
	"github.com/smartlyhq/smartly-bridge/pkg/hub"
	"github.com/smartlyhq/smartly-bridge/pkg/logger"
	"github.com/smartlyhq/smartly-bridge/pkg/push"
	"github.com/smartlyhq/smartly-bridge/pkg/webrtc"
)

// Options configures a bridge run.
type Options struct {
	ConfigPath string
	Hub        hub.Hub
}

// Run starts the bridge and blocks until the context is cancelled or a
// termination signal arrives. All per-instance state (nonce cache, rate
// windows, caches, token tables, push buffer) is created here and torn
// down with the run.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	if opts.Hub == nil {
		return fmt.Errorf("no hub adapter configured")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	aud := audit.New(log)
	aud.Lifecycle("setup_start", "instance="+cfg.Credentials.InstanceID)

	nonces := auth.NewNonceCache()
	limiter := auth.NewRateLimiter()
	verifier := auth.NewVerifier(&cfg.Credentials, nonces, limiter)

	cameras := camera.NewManager(opts.Hub, log)
	rtc := webrtc.NewManager(log)
	go2rtc := webrtc.NewGo2RTCClient(cfg.Go2RTCURL)

	allowed := func(entityID string) bool {
		return acl.EntityAllowed(opts.Hub, entityID)
	}
	pusher := push.NewManager(&cfg.Credentials, opts.Hub, allowed, aud, log)

	server := api.NewServer(&cfg.Credentials,
		api.WithLogger(log),
		api.WithHub(opts.Hub),
		api.WithVerifier(verifier),
		api.WithAudit(aud),
		api.WithCameraManager(cameras),
		api.WithWebRTCManager(rtc),
		api.WithGo2RTCClient(go2rtc),
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error { return nonces.Run(groupCtx) })
	group.Go(func() error { return cameras.Run(groupCtx) })
	group.Go(func() error { return rtc.Run(groupCtx) })
	group.Go(func() error { return pusher.Run(groupCtx) })
	group.Go(func() error { return server.Start(groupCtx, cfg.ListenAddr) })

	log.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("instance_id", cfg.Credentials.InstanceID).
		Msg("smartly bridge started")

	err = group.Wait()

	aud.Lifecycle("teardown", "")

	if err != nil && ctx.Err() != nil {
		return nil // clean shutdown on signal
	}

	return err
}
