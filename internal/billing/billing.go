// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package billing resolves a viewer's current subscription tier.
package billing

import (
	"context"

	"github.com/casthouse/casthouse/internal/entitlement"
)

// TierSource answers "what tier does this viewer pay for right now".
// The grant issuer consults it at issuance and again at every refresh, so a
// lapsed subscription stops producing grants within one expiry window.
type TierSource interface {
	ViewerTier(ctx context.Context, viewerID string) (entitlement.Tier, error)
}

// StaticSource is a config-backed TierSource for development and tests.
// Unknown viewers resolve to basic.
type StaticSource struct {
	tiers map[string]entitlement.Tier
}

// NewStaticSource builds a StaticSource from viewer ID -> tier name pairs.
// Unparseable tier names are dropped rather than defaulted upward.
func NewStaticSource(tiers map[string]string) *StaticSource {
	resolved := make(map[string]entitlement.Tier, len(tiers))
	for viewerID, name := range tiers {
		tier, err := entitlement.ParseTier(name)
		if err != nil {
			continue
		}
		resolved[viewerID] = tier
	}
	return &StaticSource{tiers: resolved}
}

// ViewerTier implements TierSource.
func (s *StaticSource) ViewerTier(ctx context.Context, viewerID string) (entitlement.Tier, error) {
	if tier, ok := s.tiers[viewerID]; ok {
		return tier, nil
	}
	return entitlement.TierBasic, nil
}
