// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package config loads and validates the Casthouse server configuration.
//
// Configuration is layered with koanf: struct defaults, then an optional YAML
// file, then environment variables. Environment variables win.
package config

import (
	"fmt"
	"time"

	"github.com/casthouse/casthouse/internal/validation"
)

// Config is the root configuration for the Casthouse server.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Security   SecurityConfig   `koanf:"security"`
	Storage    StorageConfig    `koanf:"storage"`
	Streaming  StreamingConfig  `koanf:"streaming"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Moderation ModerationConfig `koanf:"moderation"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// SecurityConfig holds grant signing and identity settings.
type SecurityConfig struct {
	// GrantSigningSecret signs playback grant tokens (HMAC-SHA256).
	// Minimum 32 characters.
	GrantSigningSecret string `koanf:"grant_signing_secret" validate:"required,min=32"`

	// GrantTTL is the fixed lifetime of an access grant. expiresAt−issuedAt
	// is always exactly this value.
	GrantTTL time.Duration `koanf:"grant_ttl" validate:"required"`

	// RefreshGrace is how long after expiry a grant's refresh token is
	// still honored. Grant records are retained for GrantTTL+RefreshGrace.
	RefreshGrace time.Duration `koanf:"refresh_grace"`

	// StaticIdentities back the development identity provider: bearer
	// token -> caller. Production deployments front Casthouse with a real
	// identity provider instead.
	StaticIdentities []StaticIdentity `koanf:"static_identities"`

	// StaticTiers backs the development billing source: viewer ID -> tier.
	StaticTiers map[string]string `koanf:"static_tiers"`
}

// StaticIdentity maps a bearer token to a caller for development setups.
type StaticIdentity struct {
	Token  string `koanf:"token"`
	UserID string `koanf:"user_id"`
	Role   string `koanf:"role"`
}

// StorageConfig holds BadgerDB settings.
type StorageConfig struct {
	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path string `koanf:"path"`

	// InMemory runs the store without disk persistence (tests, dev).
	InMemory bool `koanf:"in_memory"`
}

// StreamingConfig holds ingest and playback endpoint derivation settings.
type StreamingConfig struct {
	// IngestBaseURL is the RTMP ingest root, e.g. rtmp://ingest.example.com/live.
	IngestBaseURL string `koanf:"ingest_base_url" validate:"required"`

	// PlaybackBaseURL is the HLS edge root, e.g. https://edge.example.com/hls.
	PlaybackBaseURL string `koanf:"playback_base_url" validate:"required"`
}

// PipelineConfig holds VOD conversion pipeline settings.
type PipelineConfig struct {
	// Workers is the number of concurrent pipeline runs per instance.
	Workers int `koanf:"workers" validate:"min=1,max=64"`

	// QueueSize bounds the per-instance job queue.
	QueueSize int `koanf:"queue_size" validate:"min=1"`

	// ClaimTTL bounds how long a crashed worker can hold a VOD's in-flight
	// claim before another instance may reclaim it.
	ClaimTTL time.Duration `koanf:"claim_ttl"`

	// StageTimeout bounds a single media-capability call.
	StageTimeout time.Duration `koanf:"stage_timeout"`

	// RequeueInterval is how often the worker re-scans the store for jobs
	// stuck in queued state (restart recovery, deferred enqueues).
	RequeueInterval time.Duration `koanf:"requeue_interval"`

	// DefaultVODTier is the creator-independent platform default consulted
	// at auto-publication. Empty means inherit the source stream's tier.
	DefaultVODTier string `koanf:"default_vod_tier" validate:"omitempty,oneof=basic premium pro"`
}

// ModerationConfig holds appeal processing policy.
type ModerationConfig struct {
	// AutoResolveThreshold is the AI wrongful-flag confidence above which
	// an appeal is resolved automatically.
	AutoResolveThreshold float64 `koanf:"auto_resolve_threshold" validate:"gte=0,lte=1"`

	// MinReasonLength is the policy minimum appeal reason length.
	MinReasonLength int `koanf:"min_reason_length" validate:"min=1"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
}

// defaultConfig returns a Config with all default values applied.
// Defaults are loaded first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8554,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Security: SecurityConfig{
			GrantSigningSecret: "",
			GrantTTL:           15 * time.Minute,
			RefreshGrace:       2 * time.Minute,
		},
		Storage: StorageConfig{
			Path:     "/data/casthouse",
			InMemory: false,
		},
		Streaming: StreamingConfig{
			IngestBaseURL:   "rtmp://localhost:1935/live",
			PlaybackBaseURL: "http://localhost:8554/hls",
		},
		Pipeline: PipelineConfig{
			Workers:         2,
			QueueSize:       128,
			ClaimTTL:        30 * time.Minute,
			StageTimeout:    10 * time.Minute,
			RequeueInterval: 30 * time.Second,
		},
		Moderation: ModerationConfig{
			AutoResolveThreshold: 0.85,
			MinReasonLength:      10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the loaded configuration for invalid values.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("invalid configuration: %w", verr)
	}
	if c.Security.GrantTTL <= 0 {
		return fmt.Errorf("invalid configuration: security.grant_ttl must be positive")
	}
	return nil
}
