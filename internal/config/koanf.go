// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/casthouse/config.yaml",
	"/etc/casthouse/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces Casthouse environment variables.
const envPrefix = "CASTHOUSE_"

// Load builds the configuration in three layers: struct defaults, an optional
// YAML file, then CASTHOUSE_* environment variables. Later layers win.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file path, honoring the
// CONFIG_PATH override. Empty string means run on defaults + env only.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps CASTHOUSE_* environment variable names to koanf paths.
//
// Examples:
//   - CASTHOUSE_SERVER_PORT            -> server.port
//   - CASTHOUSE_GRANT_SIGNING_SECRET   -> security.grant_signing_secret
//   - CASTHOUSE_STORAGE_PATH           -> storage.path
//   - CASTHOUSE_PIPELINE_WORKERS       -> pipeline.workers
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	// Multi-word leaf names cannot be derived by splitting on underscores
	// alone, so known variables are mapped explicitly.
	mappings := map[string]string{
		"server_host":             "server.host",
		"server_port":             "server.port",
		"server_read_timeout":     "server.read_timeout",
		"server_write_timeout":    "server.write_timeout",
		"server_shutdown_timeout": "server.shutdown_timeout",
		"cors_origins":            "server.cors_origins",

		"grant_signing_secret": "security.grant_signing_secret",
		"grant_ttl":            "security.grant_ttl",
		"refresh_grace":        "security.refresh_grace",

		"storage_path":      "storage.path",
		"storage_in_memory": "storage.in_memory",

		"ingest_base_url":   "streaming.ingest_base_url",
		"playback_base_url": "streaming.playback_base_url",

		"pipeline_workers":       "pipeline.workers",
		"pipeline_queue_size":    "pipeline.queue_size",
		"pipeline_claim_ttl":     "pipeline.claim_ttl",
		"pipeline_stage_timeout": "pipeline.stage_timeout",
		"default_vod_tier":       "pipeline.default_vod_tier",

		"moderation_auto_resolve_threshold": "moderation.auto_resolve_threshold",
		"moderation_min_reason_length":      "moderation.min_reason_length",

		"log_level":  "logging.level",
		"log_format": "logging.format",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}

	// Fall back to section_leaf -> section.leaf for simple two-part names.
	return strings.Replace(key, "_", ".", 1)
}
