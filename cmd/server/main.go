// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package main is the entry point for the Casthouse server.
//
// Casthouse is a self-hosted live-streaming and VOD platform core. It manages
// the broadcast lifecycle of stream sessions, converts ended recordings into
// VODs through an AI-assisted processing pipeline, gates playback behind
// tier-scoped expiring access grants, and routes moderation appeals through
// automated re-review.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: struct defaults, optional YAML file, CASTHOUSE_* env vars (Koanf v2)
//  2. Storage: BadgerDB key-value store for sessions, VODs, jobs, grants, appeals
//  3. Services: stream registry, conversion pipeline, grant issuer, moderation bridge
//  4. HTTP API: Chi router with request-ID, rate-limit, and Prometheus middleware
//  5. Supervision: suture tree running the store maintenance loop, pipeline
//     workers, and HTTP server in isolated layers
//
// # Configuration
//
// Key environment variables:
//   - CASTHOUSE_SERVER_PORT: HTTP listen port (default 8554)
//   - CASTHOUSE_STORAGE_PATH: BadgerDB directory (default /data/casthouse)
//   - CASTHOUSE_SECURITY_GRANT_SIGNING_SECRET: 32+ character grant signing secret (required)
//   - CASTHOUSE_STREAMING_INGEST_BASE_URL: RTMP ingest root
//   - CASTHOUSE_STREAMING_PLAYBACK_BASE_URL: HLS edge root
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP server
// drains in-flight requests, pipeline workers finish their current job, and
// the store is closed last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/casthouse/casthouse/internal/api"
	"github.com/casthouse/casthouse/internal/billing"
	"github.com/casthouse/casthouse/internal/config"
	"github.com/casthouse/casthouse/internal/grants"
	"github.com/casthouse/casthouse/internal/identity"
	"github.com/casthouse/casthouse/internal/logging"
	"github.com/casthouse/casthouse/internal/media"
	"github.com/casthouse/casthouse/internal/moderation"
	"github.com/casthouse/casthouse/internal/pipeline"
	"github.com/casthouse/casthouse/internal/registry"
	"github.com/casthouse/casthouse/internal/store"
	"github.com/casthouse/casthouse/internal/supervisor"
	"github.com/casthouse/casthouse/internal/supervisor/services"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("Server exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
		Output:    os.Stderr,
	})
	logging.Info().
		Str("version", version).
		Int("port", cfg.Server.Port).
		Msg("Casthouse starting")

	st, err := store.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close store")
		}
	}()

	// Core services. The media processor is the simulator behind a circuit
	// breaker; a real deployment swaps the simulator for actual capability
	// backends without touching the pipeline.
	reg := registry.NewService(st, cfg.Streaming)
	processor := media.NewBreakerProcessor(media.NewSimulator())
	pipe := pipeline.NewService(st, processor, cfg.Pipeline)
	tiers := billing.NewStaticSource(cfg.Security.StaticTiers)
	issuer := grants.NewIssuer(st, tiers, cfg.Security, cfg.Streaming)
	bridge := moderation.NewBridge(st, &moderation.RuleReviewer{}, cfg.Moderation)
	provider := identity.NewStaticProvider(cfg.Security.StaticIdentities)

	chimw := api.NewChiMiddleware(&api.ChiMiddlewareConfig{
		CORSAllowedOrigins:      cfg.Server.CORSOrigins,
		RateLimitRequests:       100,
		RateLimitWindow:         time.Minute,
		RateLimitHealthRequests: 1000,
	})
	router := api.NewRouter(api.NewHandler(reg, pipe, issuer, bridge), chimw, provider)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Supervisor events log through the zerolog-backed slog bridge.
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddStorageService(services.NewMaintenanceService(st, 10*time.Minute))
	tree.AddWorkerService(services.NewPipelineService(pipe))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Casthouse stopped gracefully")
	return nil
}
