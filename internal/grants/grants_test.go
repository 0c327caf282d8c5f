// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package grants

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/billing"
	"github.com/casthouse/casthouse/internal/config"
	"github.com/casthouse/casthouse/internal/entitlement"
	"github.com/casthouse/casthouse/internal/models"
	"github.com/casthouse/casthouse/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(t *testing.T) (*Issuer, *store.Store) {
	t.Helper()
	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tiers := billing.NewStaticSource(map[string]string{
		"viewer-basic":   "basic",
		"viewer-premium": "premium",
		"viewer-pro":     "pro",
	})
	issuer := NewIssuer(st, tiers, config.SecurityConfig{
		GrantSigningSecret: testSecret,
		GrantTTL:           15 * time.Minute,
		RefreshGrace:       2 * time.Minute,
	}, config.StreamingConfig{
		PlaybackBaseURL: "https://edge.test/hls",
	})
	return issuer, st
}

// seedPublishedVOD stores a published VOD requiring the given tier.
func seedPublishedVOD(t *testing.T, st *store.Store, tier entitlement.Tier) *models.VOD {
	t.Helper()
	now := time.Now().UTC()
	vod := &models.VOD{
		ID:           uuid.NewString(),
		OwnerID:      "creator-1",
		Title:        "published vod",
		Status:       models.VODStatusPublished,
		StorageRef:   "vods/asset.mp4",
		RequiredTier: tier,
		Stages:       models.StageResults{},
		CreatedAt:    now,
		UpdatedAt:    now,
		PublishedAt:  &now,
	}
	if err := st.CreateVOD(context.Background(), vod); err != nil {
		t.Fatalf("CreateVOD: %v", err)
	}
	return vod
}

func TestIssue(t *testing.T) {
	ctx := context.Background()

	t.Run("entitled viewer gets grant", func(t *testing.T) {
		issuer, st := newTestIssuer(t)
		vod := seedPublishedVOD(t, st, entitlement.TierPremium)

		grant, err := issuer.Issue(ctx, vod.ID, "viewer-premium")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if grant.VideoID != vod.ID || grant.ViewerID != "viewer-premium" {
			t.Errorf("grant binding = (%q, %q)", grant.VideoID, grant.ViewerID)
		}
		if got := grant.ExpiresAt.Sub(grant.IssuedAt); got != 15*time.Minute {
			t.Errorf("grant lifetime = %v, want 15m", got)
		}
		if grant.RefreshToken == "" {
			t.Error("no refresh token")
		}
		if !strings.Contains(grant.SignedURL, vod.ID) {
			t.Errorf("signed url %q does not reference the video", grant.SignedURL)
		}
	})

	t.Run("higher tier passes", func(t *testing.T) {
		issuer, st := newTestIssuer(t)
		vod := seedPublishedVOD(t, st, entitlement.TierPremium)
		if _, err := issuer.Issue(ctx, vod.ID, "viewer-pro"); err != nil {
			t.Fatalf("Issue: %v", err)
		}
	})

	t.Run("insufficient tier refused", func(t *testing.T) {
		issuer, st := newTestIssuer(t)
		vod := seedPublishedVOD(t, st, entitlement.TierPremium)

		_, err := issuer.Issue(ctx, vod.ID, "viewer-basic")
		if apperr.CodeOf(err) != apperr.CodeForbidden {
			t.Fatalf("code = %s, want FORBIDDEN", apperr.CodeOf(err))
		}
	})

	t.Run("owner bypasses tier gate", func(t *testing.T) {
		issuer, st := newTestIssuer(t)
		vod := seedPublishedVOD(t, st, entitlement.TierPro)
		if _, err := issuer.Issue(ctx, vod.ID, "creator-1"); err != nil {
			t.Fatalf("Issue as owner: %v", err)
		}
	})

	t.Run("unknown video", func(t *testing.T) {
		issuer, _ := newTestIssuer(t)
		_, err := issuer.Issue(ctx, "missing", "viewer-pro")
		if !apperr.IsKind(err, apperr.KindNotFound) {
			t.Fatalf("err = %v, want not found", err)
		}
	})

	t.Run("unpublished vod invisible", func(t *testing.T) {
		issuer, st := newTestIssuer(t)
		now := time.Now().UTC()
		vod := &models.VOD{
			ID:        uuid.NewString(),
			OwnerID:   "creator-1",
			Status:    models.VODStatusReady,
			Stages:    models.StageResults{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.CreateVOD(ctx, vod); err != nil {
			t.Fatalf("CreateVOD: %v", err)
		}
		_, err := issuer.Issue(ctx, vod.ID, "viewer-pro")
		if !apperr.IsKind(err, apperr.KindNotFound) {
			t.Fatalf("err = %v, want not found", err)
		}
	})

	t.Run("live stream grants", func(t *testing.T) {
		issuer, st := newTestIssuer(t)
		session := &models.StreamSession{
			ID:           uuid.NewString(),
			OwnerID:      "creator-1",
			Status:       models.StreamStatusIdle,
			RequiredTier: entitlement.TierBasic,
			CreatedAt:    time.Now().UTC(),
		}
		if err := st.CreateStream(ctx, session); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}

		// Idle stream is not watchable.
		if _, err := issuer.Issue(ctx, session.ID, "viewer-basic"); !apperr.IsKind(err, apperr.KindNotFound) {
			t.Fatalf("idle stream: err = %v, want not found", err)
		}

		if _, err := st.SetStreamLive(ctx, session.ID, time.Now()); err != nil {
			t.Fatalf("SetStreamLive: %v", err)
		}
		if _, err := issuer.Issue(ctx, session.ID, "viewer-basic"); err != nil {
			t.Fatalf("live stream Issue: %v", err)
		}
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("single use", func(t *testing.T) {
		issuer, st := newTestIssuer(t)
		vod := seedPublishedVOD(t, st, entitlement.TierBasic)
		grant, err := issuer.Issue(ctx, vod.ID, "viewer-premium")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}

		next, err := issuer.Refresh(ctx, grant.RefreshToken)
		if err != nil {
			t.Fatalf("Refresh: %v", err)
		}
		if next.ID == grant.ID {
			t.Error("refresh reused the grant id")
		}
		if next.VideoID != grant.VideoID || next.ViewerID != grant.ViewerID {
			t.Error("refresh changed the grant binding")
		}

		_, err = issuer.Refresh(ctx, grant.RefreshToken)
		if apperr.CodeOf(err) != apperr.CodeRefreshConsumed {
			t.Fatalf("second refresh: code = %s, want REFRESH_CONSUMED", apperr.CodeOf(err))
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		issuer, _ := newTestIssuer(t)
		_, err := issuer.Refresh(ctx, "bogus")
		if apperr.CodeOf(err) != apperr.CodeRefreshConsumed {
			t.Fatalf("code = %s, want REFRESH_CONSUMED", apperr.CodeOf(err))
		}
	})

	t.Run("revalidates entitlement", func(t *testing.T) {
		issuer, st := newTestIssuer(t)
		vod := seedPublishedVOD(t, st, entitlement.TierBasic)
		grant, err := issuer.Issue(ctx, vod.ID, "viewer-basic")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}

		// Content tier was raised after issuance; the refresh must refuse.
		if _, err := st.UpdateVOD(ctx, vod.ID, func(v *models.VOD) error {
			v.RequiredTier = entitlement.TierPro
			return nil
		}); err != nil {
			t.Fatalf("UpdateVOD: %v", err)
		}

		_, err = issuer.Refresh(ctx, grant.RefreshToken)
		if apperr.CodeOf(err) != apperr.CodeForbidden {
			t.Fatalf("code = %s, want FORBIDDEN", apperr.CodeOf(err))
		}
	})
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	issuer, st := newTestIssuer(t)
	vod := seedPublishedVOD(t, st, entitlement.TierBasic)

	grant, err := issuer.Issue(ctx, vod.ID, "viewer-premium")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parsed, err := url.Parse(grant.SignedURL)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	token := parsed.Query().Get("token")
	if token == "" {
		t.Fatal("signed url carries no token")
	}

	t.Run("valid token", func(t *testing.T) {
		claims, err := issuer.Validate(ctx, token, vod.ID)
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if claims.Subject != "viewer-premium" {
			t.Errorf("subject = %q, want viewer-premium", claims.Subject)
		}
		if claims.GrantID != grant.ID {
			t.Errorf("grant id = %q, want %q", claims.GrantID, grant.ID)
		}
		if claims.Tier != "premium" {
			t.Errorf("tier = %q, want premium", claims.Tier)
		}
	})

	t.Run("wrong video", func(t *testing.T) {
		_, err := issuer.Validate(ctx, token, "other-video")
		if apperr.CodeOf(err) != apperr.CodeGrantInvalid {
			t.Fatalf("code = %s, want GRANT_INVALID", apperr.CodeOf(err))
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := issuer.Validate(ctx, "not.a.jwt", vod.ID)
		if apperr.CodeOf(err) != apperr.CodeGrantInvalid {
			t.Fatalf("code = %s, want GRANT_INVALID", apperr.CodeOf(err))
		}
	})

	t.Run("tampered token", func(t *testing.T) {
		other := NewIssuer(st, billing.NewStaticSource(nil), config.SecurityConfig{
			GrantSigningSecret: "another-secret-another-secret-32",
			GrantTTL:           15 * time.Minute,
		}, config.StreamingConfig{PlaybackBaseURL: "https://edge.test/hls"})

		_, err := other.Validate(ctx, token, vod.ID)
		if apperr.CodeOf(err) != apperr.CodeGrantInvalid {
			t.Fatalf("code = %s, want GRANT_INVALID", apperr.CodeOf(err))
		}
	})
}
