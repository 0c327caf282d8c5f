// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package models defines the Casthouse domain model and the API response
// envelope shared by all HTTP endpoints.
package models

import (
	"time"

	"github.com/casthouse/casthouse/internal/entitlement"
)

// StreamStatus is the lifecycle state of a live broadcast session.
type StreamStatus string

const (
	// StreamStatusIdle means the session exists but is not broadcasting.
	StreamStatusIdle StreamStatus = "idle"

	// StreamStatusLive means the session is currently broadcasting.
	StreamStatusLive StreamStatus = "live"

	// StreamStatusEnded means the session finished. Terminal: a new session
	// is required to broadcast again.
	StreamStatusEnded StreamStatus = "ended"
)

// StreamVisibility controls who can discover a stream.
type StreamVisibility string

const (
	// StreamVisibilityPublic means the stream is visible to everyone.
	StreamVisibilityPublic StreamVisibility = "public"

	// StreamVisibilityPrivate means the stream is only visible to entitled viewers.
	StreamVisibilityPrivate StreamVisibility = "private"
)

// StreamSession is one live broadcast session. At most one session per owner
// may be live at any time; the store enforces that with a conditional write,
// not in-process locking, so multiple server instances stay correct.
type StreamSession struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Status     StreamStatus     `json:"status"`
	Visibility StreamVisibility `json:"visibility"`

	// RequiredTier gates live playback of this stream.
	RequiredTier entitlement.Tier `json:"required_tier"`

	// RecordingEnabled must be set before the stream goes live for a VOD
	// conversion to be possible afterwards.
	RecordingEnabled bool `json:"recording_enabled"`

	// StreamKey is the ingest secret. Generated once at creation, never
	// rotated mid-session. Not serialized in API responses; handlers return
	// it explicitly to the owner only.
	StreamKey string `json:"-"`

	// IngestURL and PlaybackURL are derived deterministically from the
	// stream key and the configured ingest/edge hosts.
	IngestURL   string `json:"ingest_url,omitempty"`
	PlaybackURL string `json:"playback_url"`

	// ViewerCount is mutated by the external heartbeat collector, not by
	// the lifecycle core.
	ViewerCount int `json:"viewer_count"`

	// RecordingRef is the sealed recording artifact reference, set when an
	// ended session had recording enabled.
	RecordingRef string `json:"recording_ref,omitempty"`

	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsLive reports whether the session is currently broadcasting.
func (s *StreamSession) IsLive() bool {
	return s.Status == StreamStatusLive
}

// CreatorSettings projects the session fields the entitlement resolver needs
// for publication-time tier assignment.
func (s *StreamSession) CreatorSettings(defaultVODTier string) entitlement.CreatorSettings {
	return entitlement.CreatorSettings{
		DefaultVODTier: defaultVODTier,
		StreamTier:     s.RequiredTier,
	}
}
