// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package models

import (
	"time"

	"github.com/casthouse/casthouse/internal/entitlement"
)

// AccessGrant is a short-lived authorization artifact permitting playback of
// one video to one viewer. Grants self-expire; there is no cancellation API.
// A grant is never reused across viewers or videos.
type AccessGrant struct {
	// ID identifies this grant (grant-scoped session, distinct from a
	// StreamSession).
	ID string `json:"session_id"`

	VideoID  string `json:"video_id"`
	ViewerID string `json:"viewer_id"`

	// SignedURL is the playback URL carrying the signed token bound to
	// (VideoID, ViewerID, ExpiresAt).
	SignedURL string `json:"signed_url"`

	// RefreshToken mints at most one replacement grant per expiry window.
	// Entitlement is re-validated at refresh time.
	RefreshToken string `json:"refresh_token"`

	// TierAtIssuance is the viewer's tier when the grant was minted.
	TierAtIssuance entitlement.Tier `json:"tier_at_issuance"`

	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the grant is past its hard expiry at the given instant.
func (g *AccessGrant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}
