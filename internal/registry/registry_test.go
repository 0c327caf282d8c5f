// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package registry

import (
	"context"
	"strings"
	"testing"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/config"
	"github.com/casthouse/casthouse/internal/models"
	"github.com/casthouse/casthouse/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return NewService(st, config.StreamingConfig{
		IngestBaseURL:   "rtmp://ingest.test/live",
		PlaybackBaseURL: "https://edge.test/hls",
	})
}

func createStream(t *testing.T, svc *Service, ownerID string) *models.StreamSession {
	t.Helper()
	session, err := svc.CreateStream(context.Background(), ownerID, &models.CreateStreamRequest{
		Title:            "test broadcast",
		RecordingEnabled: true,
	})
	if err != nil {
		t.Fatalf("CreateStream: %v", err)
	}
	return session
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("err = nil, want code %s", code)
	}
	if got := apperr.CodeOf(err); got != code {
		t.Fatalf("code = %s (%v), want %s", got, err, code)
	}
}

func TestCreateStream(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	session := createStream(t, svc, "owner-1")

	if session.Status != models.StreamStatusIdle {
		t.Errorf("status = %q, want idle", session.Status)
	}
	if len(session.StreamKey) != 32 {
		t.Errorf("stream key length = %d, want 32", len(session.StreamKey))
	}
	if session.StreamKey != strings.ToLower(session.StreamKey) {
		t.Errorf("stream key %q not lowercase", session.StreamKey)
	}
	if want := "rtmp://ingest.test/live/" + session.StreamKey; session.IngestURL != want {
		t.Errorf("ingest url = %q, want %q", session.IngestURL, want)
	}
	if want := "https://edge.test/hls/" + session.StreamKey + "/index.m3u8"; session.PlaybackURL != want {
		t.Errorf("playback url = %q, want %q", session.PlaybackURL, want)
	}

	t.Run("keys are unique", func(t *testing.T) {
		other := createStream(t, svc, "owner-1")
		if other.StreamKey == session.StreamKey {
			t.Error("two sessions share a stream key")
		}
	})

	t.Run("invalid tier rejected", func(t *testing.T) {
		_, err := svc.CreateStream(ctx, "owner-1", &models.CreateStreamRequest{
			Title:        "bad tier",
			RequiredTier: "platinum",
		})
		wantCode(t, err, apperr.CodeValidation)
	})
}

func TestStartStream(t *testing.T) {
	ctx := context.Background()

	t.Run("owner starts idle stream", func(t *testing.T) {
		svc := newTestService(t)
		session := createStream(t, svc, "owner-1")

		live, err := svc.StartStream(ctx, session.ID, "owner-1")
		if err != nil {
			t.Fatalf("StartStream: %v", err)
		}
		if !live.IsLive() {
			t.Errorf("status = %q, want live", live.Status)
		}
	})

	t.Run("non-owner rejected", func(t *testing.T) {
		svc := newTestService(t)
		session := createStream(t, svc, "owner-1")

		_, err := svc.StartStream(ctx, session.ID, "intruder")
		wantCode(t, err, apperr.CodeUnauthorized)
	})

	t.Run("unknown stream", func(t *testing.T) {
		svc := newTestService(t)
		_, err := svc.StartStream(ctx, "missing", "owner-1")
		wantCode(t, err, apperr.CodeStreamNotFound)
	})

	t.Run("already live", func(t *testing.T) {
		svc := newTestService(t)
		session := createStream(t, svc, "owner-1")
		if _, err := svc.StartStream(ctx, session.ID, "owner-1"); err != nil {
			t.Fatalf("StartStream: %v", err)
		}
		_, err := svc.StartStream(ctx, session.ID, "owner-1")
		wantCode(t, err, apperr.CodeAlreadyLive)
	})

	t.Run("owner live on another session", func(t *testing.T) {
		svc := newTestService(t)
		first := createStream(t, svc, "owner-1")
		second := createStream(t, svc, "owner-1")
		if _, err := svc.StartStream(ctx, first.ID, "owner-1"); err != nil {
			t.Fatalf("StartStream(first): %v", err)
		}
		_, err := svc.StartStream(ctx, second.ID, "owner-1")
		wantCode(t, err, apperr.CodeAlreadyLive)
	})

	t.Run("ended stream cannot restart", func(t *testing.T) {
		svc := newTestService(t)
		session := createStream(t, svc, "owner-1")
		if _, err := svc.StartStream(ctx, session.ID, "owner-1"); err != nil {
			t.Fatalf("StartStream: %v", err)
		}
		if _, err := svc.EndStream(ctx, session.ID, "owner-1"); err != nil {
			t.Fatalf("EndStream: %v", err)
		}
		_, err := svc.StartStream(ctx, session.ID, "owner-1")
		wantCode(t, err, apperr.CodeConflict)
	})
}

func TestEndStream(t *testing.T) {
	ctx := context.Background()

	t.Run("ends live stream with recording ref", func(t *testing.T) {
		svc := newTestService(t)
		session := createStream(t, svc, "owner-1")
		if _, err := svc.StartStream(ctx, session.ID, "owner-1"); err != nil {
			t.Fatalf("StartStream: %v", err)
		}

		ended, err := svc.EndStream(ctx, session.ID, "owner-1")
		if err != nil {
			t.Fatalf("EndStream: %v", err)
		}
		if ended.Status != models.StreamStatusEnded {
			t.Errorf("status = %q, want ended", ended.Status)
		}
		if ended.RecordingRef == "" {
			t.Error("recording ref not set despite recording enabled")
		}
	})

	t.Run("idle stream is not active", func(t *testing.T) {
		svc := newTestService(t)
		session := createStream(t, svc, "owner-1")
		_, err := svc.EndStream(ctx, session.ID, "owner-1")
		wantCode(t, err, apperr.CodeStreamNotActive)
	})

	t.Run("non-owner rejected", func(t *testing.T) {
		svc := newTestService(t)
		session := createStream(t, svc, "owner-1")
		if _, err := svc.StartStream(ctx, session.ID, "owner-1"); err != nil {
			t.Fatalf("StartStream: %v", err)
		}
		_, err := svc.EndStream(ctx, session.ID, "intruder")
		wantCode(t, err, apperr.CodeUnauthorized)
	})
}

func TestRotateStreamKey(t *testing.T) {
	ctx := context.Background()

	t.Run("rotates while idle", func(t *testing.T) {
		svc := newTestService(t)
		session := createStream(t, svc, "owner-1")

		rotated, err := svc.RotateStreamKey(ctx, session.ID, "owner-1")
		if err != nil {
			t.Fatalf("RotateStreamKey: %v", err)
		}
		if rotated.StreamKey == session.StreamKey {
			t.Error("stream key unchanged after rotation")
		}
		if !strings.Contains(rotated.IngestURL, rotated.StreamKey) {
			t.Error("ingest url not re-derived from the new key")
		}
	})

	t.Run("denied while live", func(t *testing.T) {
		svc := newTestService(t)
		session := createStream(t, svc, "owner-1")
		if _, err := svc.StartStream(ctx, session.ID, "owner-1"); err != nil {
			t.Fatalf("StartStream: %v", err)
		}
		_, err := svc.RotateStreamKey(ctx, session.ID, "owner-1")
		wantCode(t, err, apperr.CodeKeyRotationDenied)
	})

	t.Run("non-owner rejected", func(t *testing.T) {
		svc := newTestService(t)
		session := createStream(t, svc, "owner-1")
		_, err := svc.RotateStreamKey(ctx, session.ID, "intruder")
		wantCode(t, err, apperr.CodeUnauthorized)
	})
}
