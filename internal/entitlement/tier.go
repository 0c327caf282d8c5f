// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package entitlement centralizes subscription-tier policy. Tier comparison
// lives here and nowhere else so access decisions cannot diverge between the
// stream registry, the grant issuer, and the pipeline's publication step.
package entitlement

import (
	"fmt"
	"strings"
)

// Tier is a subscription level gating content access.
// Tiers are totally ordered: basic < premium < pro.
type Tier int

const (
	// TierBasic is the entry-level subscription.
	TierBasic Tier = iota

	// TierPremium sits between basic and pro.
	TierPremium

	// TierPro is the highest subscription level.
	TierPro
)

// String returns the wire representation of the tier.
func (t Tier) String() string {
	switch t {
	case TierBasic:
		return "basic"
	case TierPremium:
		return "premium"
	case TierPro:
		return "pro"
	default:
		return "basic"
	}
}

// MarshalText implements encoding.TextMarshaler so tiers serialize as their
// wire names in JSON documents.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTier converts a wire string into a Tier.
// Returns an error for unknown values; callers decide whether to fall back.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "basic":
		return TierBasic, nil
	case "premium":
		return TierPremium, nil
	case "pro":
		return TierPro, nil
	default:
		return TierBasic, fmt.Errorf("unknown tier: %q", s)
	}
}

// CanAccess reports whether a viewer at viewerTier may access content that
// requires requiredTier. A viewer may access content requiring their tier
// or lower.
func CanAccess(viewerTier, requiredTier Tier) bool {
	return viewerTier >= requiredTier
}

// CreatorSettings is the slice of creator configuration the resolver needs for
// publication-time tier assignment.
type CreatorSettings struct {
	// DefaultVODTier is the tier the creator wants newly published VODs to
	// require. Empty means inherit from the source stream.
	DefaultVODTier string

	// StreamTier is the tier the source stream required while live.
	StreamTier Tier
}

// ResolveDefaultTier decides the required tier for a VOD at publication time.
// An explicit creator default wins; otherwise the VOD inherits the source
// stream's tier. Unparseable settings fall back to the stream tier rather than
// silently widening access.
func ResolveDefaultTier(settings CreatorSettings) Tier {
	if settings.DefaultVODTier == "" {
		return settings.StreamTier
	}
	tier, err := ParseTier(settings.DefaultVODTier)
	if err != nil {
		return settings.StreamTier
	}
	return tier
}
