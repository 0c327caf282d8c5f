// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package registry implements the stream session lifecycle: creation, the
// idle → live → ended state machine, and stream key management.
//
// Transitions are conditional writes in the store; the registry translates
// store outcomes into the typed error taxonomy and records metrics, but holds
// no lifecycle state of its own.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/config"
	"github.com/casthouse/casthouse/internal/entitlement"
	"github.com/casthouse/casthouse/internal/logging"
	"github.com/casthouse/casthouse/internal/metrics"
	"github.com/casthouse/casthouse/internal/models"
	"github.com/casthouse/casthouse/internal/store"
)

// Service manages stream sessions.
type Service struct {
	store     *store.Store
	streaming config.StreamingConfig
}

// NewService builds a registry service on the given store.
func NewService(st *store.Store, streaming config.StreamingConfig) *Service {
	return &Service{store: st, streaming: streaming}
}

// newStreamKey returns a fresh 32-character lowercase-hex ingest secret.
func newStreamKey() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate stream key: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}

// ingestURL derives the RTMP ingest endpoint for a stream key.
func (s *Service) ingestURL(key string) string {
	return strings.TrimRight(s.streaming.IngestBaseURL, "/") + "/" + key
}

// playbackURL derives the HLS playback endpoint for a stream key.
func (s *Service) playbackURL(key string) string {
	return strings.TrimRight(s.streaming.PlaybackBaseURL, "/") + "/" + key + "/index.m3u8"
}

// CreateStream registers a new idle session for ownerID with a generated
// stream key and derived ingest/playback URLs.
func (s *Service) CreateStream(ctx context.Context, ownerID string, req *models.CreateStreamRequest) (*models.StreamSession, error) {
	key, err := newStreamKey()
	if err != nil {
		return nil, err
	}

	visibility := models.StreamVisibility(req.Visibility)
	if visibility == "" {
		visibility = models.StreamVisibilityPublic
	}

	tier := entitlement.TierBasic
	if req.RequiredTier != "" {
		tier, err = entitlement.ParseTier(req.RequiredTier)
		if err != nil {
			return nil, apperr.InvalidInput(apperr.CodeValidation, err.Error())
		}
	}

	now := time.Now().UTC()
	session := &models.StreamSession{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		Title:            req.Title,
		Description:      req.Description,
		Status:           models.StreamStatusIdle,
		Visibility:       visibility,
		RequiredTier:     tier,
		RecordingEnabled: req.RecordingEnabled,
		StreamKey:        key,
		IngestURL:        s.ingestURL(key),
		PlaybackURL:      s.playbackURL(key),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.CreateStream(ctx, session); err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("stream_id", session.ID).
		Str("owner_id", ownerID).
		Bool("recording_enabled", session.RecordingEnabled).
		Msg("Stream session created")
	return session, nil
}

// GetStream returns the session by ID.
func (s *Service) GetStream(ctx context.Context, streamID string) (*models.StreamSession, error) {
	session, err := s.store.GetStream(ctx, streamID)
	if err != nil {
		return nil, mapStreamStoreErr(err)
	}
	return session, nil
}

// ListStreamsByOwner returns every session of the owner, any state.
func (s *Service) ListStreamsByOwner(ctx context.Context, ownerID string) ([]*models.StreamSession, error) {
	return s.store.ListStreamsByOwner(ctx, ownerID)
}

// StartStream transitions a session from idle to live. Only the owner may
// start a session, and an owner may have at most one live session at a time.
func (s *Service) StartStream(ctx context.Context, streamID, requesterID string) (*models.StreamSession, error) {
	session, err := s.store.GetStream(ctx, streamID)
	if err != nil {
		return nil, mapStreamStoreErr(err)
	}
	if session.OwnerID != requesterID {
		return nil, apperr.Unauthorized(apperr.CodeUnauthorized, "only the stream owner may start the stream")
	}

	live, err := s.store.SetStreamLive(ctx, streamID, time.Now())
	if err != nil {
		metrics.RecordStreamTransition("start", false)
		return nil, mapStartErr(err)
	}
	metrics.RecordStreamTransition("start", true)

	logging.Ctx(ctx).Info().
		Str("stream_id", streamID).
		Str("owner_id", live.OwnerID).
		Msg("Stream went live")
	return live, nil
}

// EndStream transitions a session from live to ended. The transition is
// terminal; if recording was enabled the sealed recording artifact reference
// is attached for later VOD conversion.
func (s *Service) EndStream(ctx context.Context, streamID, requesterID string) (*models.StreamSession, error) {
	session, err := s.store.GetStream(ctx, streamID)
	if err != nil {
		return nil, mapStreamStoreErr(err)
	}
	if session.OwnerID != requesterID {
		return nil, apperr.Unauthorized(apperr.CodeUnauthorized, "only the stream owner may end the stream")
	}

	var recordingRef string
	if session.RecordingEnabled {
		recordingRef = "recordings/" + streamID + ".mp4"
	}

	ended, err := s.store.SetStreamEnded(ctx, streamID, recordingRef, time.Now())
	if err != nil {
		metrics.RecordStreamTransition("end", false)
		var stateErr *store.StateError
		if asStateError(err, &stateErr) {
			return nil, apperr.Conflict(apperr.CodeStreamNotActive,
				fmt.Sprintf("stream is %s, not live", stateErr.Current))
		}
		return nil, mapStreamStoreErr(err)
	}
	metrics.RecordStreamTransition("end", true)

	logging.Ctx(ctx).Info().
		Str("stream_id", streamID).
		Str("recording_ref", ended.RecordingRef).
		Msg("Stream ended")
	return ended, nil
}

// RotateStreamKey replaces the ingest secret of an idle session. Rotation is
// never allowed once a session has started; a live or ended session keeps the
// key it broadcast with.
func (s *Service) RotateStreamKey(ctx context.Context, streamID, requesterID string) (*models.StreamSession, error) {
	session, err := s.store.GetStream(ctx, streamID)
	if err != nil {
		return nil, mapStreamStoreErr(err)
	}
	if session.OwnerID != requesterID {
		return nil, apperr.Unauthorized(apperr.CodeUnauthorized, "only the stream owner may rotate the key")
	}

	key, err := newStreamKey()
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateIdleStream(ctx, streamID, func(sess *models.StreamSession) error {
		sess.StreamKey = key
		sess.IngestURL = s.ingestURL(key)
		sess.PlaybackURL = s.playbackURL(key)
		return nil
	})
	if err != nil {
		var stateErr *store.StateError
		if asStateError(err, &stateErr) {
			return nil, apperr.Conflict(apperr.CodeKeyRotationDenied,
				fmt.Sprintf("stream key can only be rotated while idle, stream is %s", stateErr.Current))
		}
		return nil, mapStreamStoreErr(err)
	}

	logging.Ctx(ctx).Info().Str("stream_id", streamID).Msg("Stream key rotated")
	return updated, nil
}
