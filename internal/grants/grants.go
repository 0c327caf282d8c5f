// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package grants issues and validates short-lived, tier-scoped playback
// grants.
//
// A grant binds one video to one viewer for a fixed window. The signed URL
// carries an HS256 token the playback edge validates without touching the
// store; the refresh token is single-use and re-checks entitlement, so access
// revocation converges within one expiry window.
package grants

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/billing"
	"github.com/casthouse/casthouse/internal/config"
	"github.com/casthouse/casthouse/internal/entitlement"
	"github.com/casthouse/casthouse/internal/logging"
	"github.com/casthouse/casthouse/internal/metrics"
	"github.com/casthouse/casthouse/internal/models"
	"github.com/casthouse/casthouse/internal/store"
)

// Claims is the payload of a playback token. Subject is the viewer ID.
type Claims struct {
	VideoID string `json:"vid"`
	GrantID string `json:"gid"`
	Tier    string `json:"tier"`
	jwt.RegisteredClaims
}

// Issuer mints and validates playback grants.
type Issuer struct {
	store        *store.Store
	tiers        billing.TierSource
	secret       []byte
	ttl          time.Duration
	grace        time.Duration
	playbackBase string
}

// NewIssuer builds a grant issuer.
func NewIssuer(st *store.Store, tiers billing.TierSource, sec config.SecurityConfig, streaming config.StreamingConfig) *Issuer {
	return &Issuer{
		store:        st,
		tiers:        tiers,
		secret:       []byte(sec.GrantSigningSecret),
		ttl:          sec.GrantTTL,
		grace:        sec.RefreshGrace,
		playbackBase: strings.TrimRight(streaming.PlaybackBaseURL, "/"),
	}
}

// videoAccess is the resolved access policy of a video at grant time.
type videoAccess struct {
	requiredTier entitlement.Tier
	ownerID      string
}

// resolveVideo finds the video's current access policy. VODs must be
// published and streams must be live to be watchable; everything else is
// indistinguishable from absent.
func (i *Issuer) resolveVideo(ctx context.Context, videoID string) (*videoAccess, error) {
	vod, err := i.store.GetVOD(ctx, videoID)
	if err == nil {
		if vod.Status != models.VODStatusPublished {
			return nil, apperr.NotFound(apperr.CodeVODNotFound, "video not found")
		}
		return &videoAccess{requiredTier: vod.RequiredTier, ownerID: vod.OwnerID}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	stream, err := i.store.GetStream(ctx, videoID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeNotFound, "video not found")
		}
		return nil, err
	}
	if !stream.IsLive() {
		return nil, apperr.NotFound(apperr.CodeNotFound, "video not found")
	}
	return &videoAccess{requiredTier: stream.RequiredTier, ownerID: stream.OwnerID}, nil
}

// checkEntitlement resolves the viewer's tier and enforces the tier order.
// Owners always pass for their own content.
func (i *Issuer) checkEntitlement(ctx context.Context, access *videoAccess, viewerID string) (entitlement.Tier, error) {
	viewerTier, err := i.tiers.ViewerTier(ctx, viewerID)
	if err != nil {
		return 0, apperr.Dependency(apperr.CodeDependencyFailure, "subscription lookup failed", err)
	}
	if viewerID == access.ownerID {
		return viewerTier, nil
	}
	if !entitlement.CanAccess(viewerTier, access.requiredTier) {
		metrics.GrantsRefused.WithLabelValues("tier").Inc()
		return 0, apperr.Forbidden(apperr.CodeForbidden,
			fmt.Sprintf("content requires %s tier, viewer has %s", access.requiredTier, viewerTier))
	}
	return viewerTier, nil
}

// newRefreshToken returns a fresh opaque refresh token.
func newRefreshToken() (string, error) {
	var buf [24]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// mint creates, signs, and persists a grant for an already-entitled viewer.
func (i *Issuer) mint(ctx context.Context, videoID, viewerID string, viewerTier entitlement.Tier) (*models.AccessGrant, error) {
	now := time.Now().UTC()
	expires := now.Add(i.ttl)
	grantID := uuid.NewString()

	refreshToken, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	claims := &Claims{
		VideoID: videoID,
		GrantID: grantID,
		Tier:    viewerTier.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   viewerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        grantID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign grant token: %w", err)
	}

	grant := &models.AccessGrant{
		ID:             grantID,
		VideoID:        videoID,
		ViewerID:       viewerID,
		SignedURL:      fmt.Sprintf("%s/vod/%s/index.m3u8?token=%s", i.playbackBase, videoID, signed),
		RefreshToken:   refreshToken,
		TierAtIssuance: viewerTier,
		IssuedAt:       now,
		ExpiresAt:      expires,
	}
	if err := i.store.PutGrant(ctx, grant, i.ttl+i.grace); err != nil {
		return nil, fmt.Errorf("persist grant: %w", err)
	}
	return grant, nil
}

// Issue mints a playback grant for videoID scoped to viewerID.
func (i *Issuer) Issue(ctx context.Context, videoID, viewerID string) (*models.AccessGrant, error) {
	access, err := i.resolveVideo(ctx, videoID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			metrics.GrantsRefused.WithLabelValues("not_found").Inc()
		}
		return nil, err
	}

	viewerTier, err := i.checkEntitlement(ctx, access, viewerID)
	if err != nil {
		return nil, err
	}

	grant, err := i.mint(ctx, videoID, viewerID, viewerTier)
	if err != nil {
		return nil, err
	}
	metrics.GrantsIssued.WithLabelValues("issue").Inc()

	logging.Ctx(ctx).Debug().
		Str("video_id", videoID).
		Str("viewer_id", viewerID).
		Str("grant_id", grant.ID).
		Msg("Playback grant issued")
	return grant, nil
}

// Refresh exchanges a single-use refresh token for a replacement grant,
// re-validating entitlement first. A token is consumed by the attempt even
// when revalidation refuses the new grant.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*models.AccessGrant, error) {
	prev, err := i.store.ConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metrics.GrantsRefused.WithLabelValues("consumed").Inc()
			return nil, apperr.Unauthorized(apperr.CodeRefreshConsumed,
				"refresh token is unknown, expired, or already used")
		}
		return nil, err
	}

	if time.Now().After(prev.ExpiresAt.Add(i.grace)) {
		metrics.GrantsRefused.WithLabelValues("expired").Inc()
		return nil, apperr.Unauthorized(apperr.CodeGrantExpired, "grant refresh window has passed")
	}

	access, err := i.resolveVideo(ctx, prev.VideoID)
	if err != nil {
		return nil, err
	}
	viewerTier, err := i.checkEntitlement(ctx, access, prev.ViewerID)
	if err != nil {
		return nil, err
	}

	grant, err := i.mint(ctx, prev.VideoID, prev.ViewerID, viewerTier)
	if err != nil {
		return nil, err
	}
	metrics.GrantsIssued.WithLabelValues("refresh").Inc()

	logging.Ctx(ctx).Debug().
		Str("video_id", grant.VideoID).
		Str("viewer_id", grant.ViewerID).
		Str("grant_id", grant.ID).
		Str("previous_grant_id", prev.ID).
		Msg("Playback grant refreshed")
	return grant, nil
}

// Validate verifies a playback token for videoID: signature, expiry, and
// video binding. This is the edge callback path; it never touches the store.
func (i *Issuer) Validate(ctx context.Context, token, videoID string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		metrics.GrantValidations.WithLabelValues("invalid").Inc()
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Unauthorized(apperr.CodeGrantExpired, "grant has expired")
		}
		return nil, apperr.Unauthorized(apperr.CodeGrantInvalid, "grant token is invalid")
	}

	if claims.VideoID != videoID {
		metrics.GrantValidations.WithLabelValues("invalid").Inc()
		return nil, apperr.Unauthorized(apperr.CodeGrantInvalid, "grant is bound to a different video")
	}

	metrics.GrantValidations.WithLabelValues("valid").Inc()
	return claims, nil
}
