// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/casthouse/casthouse/internal/entitlement"
	"github.com/casthouse/casthouse/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}

func newTestStream(ownerID string) *models.StreamSession {
	now := time.Now().UTC()
	return &models.StreamSession{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Title:        "test stream",
		Status:       models.StreamStatusIdle,
		Visibility:   models.StreamVisibilityPublic,
		RequiredTier: entitlement.TierBasic,
		StreamKey:    "0123456789abcdef0123456789abcdef",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestStreamLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("create and get", func(t *testing.T) {
		session := newTestStream("owner-1")
		if err := s.CreateStream(ctx, session); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}

		got, err := s.GetStream(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetStream: %v", err)
		}
		if got.OwnerID != "owner-1" {
			t.Errorf("owner = %q, want owner-1", got.OwnerID)
		}
		if got.Status != models.StreamStatusIdle {
			t.Errorf("status = %q, want idle", got.Status)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := s.GetStream(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("duplicate create", func(t *testing.T) {
		session := newTestStream("owner-2")
		if err := s.CreateStream(ctx, session); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}
		if err := s.CreateStream(ctx, session); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("err = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("list by owner", func(t *testing.T) {
		for range 3 {
			if err := s.CreateStream(ctx, newTestStream("owner-3")); err != nil {
				t.Fatalf("CreateStream: %v", err)
			}
		}
		sessions, err := s.ListStreamsByOwner(ctx, "owner-3")
		if err != nil {
			t.Fatalf("ListStreamsByOwner: %v", err)
		}
		if len(sessions) != 3 {
			t.Errorf("got %d sessions, want 3", len(sessions))
		}
	})
}

func TestStreamTransitions(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	t.Run("idle to live", func(t *testing.T) {
		s := newTestStore(t)
		session := newTestStream("owner-1")
		if err := s.CreateStream(ctx, session); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}

		live, err := s.SetStreamLive(ctx, session.ID, now)
		if err != nil {
			t.Fatalf("SetStreamLive: %v", err)
		}
		if live.Status != models.StreamStatusLive {
			t.Errorf("status = %q, want live", live.Status)
		}
		if live.StartedAt == nil {
			t.Error("StartedAt not set")
		}

		holder, err := s.LiveStreamForOwner(ctx, "owner-1")
		if err != nil {
			t.Fatalf("LiveStreamForOwner: %v", err)
		}
		if holder != session.ID {
			t.Errorf("lock holder = %q, want %q", holder, session.ID)
		}
	})

	t.Run("second session for same owner rejected", func(t *testing.T) {
		s := newTestStore(t)
		first := newTestStream("owner-1")
		second := newTestStream("owner-1")
		for _, sess := range []*models.StreamSession{first, second} {
			if err := s.CreateStream(ctx, sess); err != nil {
				t.Fatalf("CreateStream: %v", err)
			}
		}

		if _, err := s.SetStreamLive(ctx, first.ID, now); err != nil {
			t.Fatalf("SetStreamLive(first): %v", err)
		}
		if _, err := s.SetStreamLive(ctx, second.ID, now); !errors.Is(err, ErrOwnerLive) {
			t.Fatalf("err = %v, want ErrOwnerLive", err)
		}

		// Second session must remain idle after the rejected attempt.
		got, err := s.GetStream(ctx, second.ID)
		if err != nil {
			t.Fatalf("GetStream: %v", err)
		}
		if got.Status != models.StreamStatusIdle {
			t.Errorf("status = %q, want idle", got.Status)
		}
	})

	t.Run("start non-idle session", func(t *testing.T) {
		s := newTestStore(t)
		session := newTestStream("owner-1")
		if err := s.CreateStream(ctx, session); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}
		if _, err := s.SetStreamLive(ctx, session.ID, now); err != nil {
			t.Fatalf("SetStreamLive: %v", err)
		}

		var stateErr *StateError
		_, err := s.SetStreamLive(ctx, session.ID, now)
		if !errors.As(err, &stateErr) {
			t.Fatalf("err = %v, want *StateError", err)
		}
		if stateErr.Current != models.StreamStatusLive {
			t.Errorf("current = %q, want live", stateErr.Current)
		}
	})

	t.Run("end releases lock", func(t *testing.T) {
		s := newTestStore(t)
		session := newTestStream("owner-1")
		session.RecordingEnabled = true
		if err := s.CreateStream(ctx, session); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}
		if _, err := s.SetStreamLive(ctx, session.ID, now); err != nil {
			t.Fatalf("SetStreamLive: %v", err)
		}

		ended, err := s.SetStreamEnded(ctx, session.ID, "rec://artifact", now.Add(time.Minute))
		if err != nil {
			t.Fatalf("SetStreamEnded: %v", err)
		}
		if ended.Status != models.StreamStatusEnded {
			t.Errorf("status = %q, want ended", ended.Status)
		}
		if ended.RecordingRef != "rec://artifact" {
			t.Errorf("recording ref = %q, want rec://artifact", ended.RecordingRef)
		}

		holder, err := s.LiveStreamForOwner(ctx, "owner-1")
		if err != nil {
			t.Fatalf("LiveStreamForOwner: %v", err)
		}
		if holder != "" {
			t.Errorf("lock still held by %q after end", holder)
		}

		// Owner can go live again with a fresh session.
		next := newTestStream("owner-1")
		if err := s.CreateStream(ctx, next); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}
		if _, err := s.SetStreamLive(ctx, next.ID, now.Add(2*time.Minute)); err != nil {
			t.Fatalf("SetStreamLive after end: %v", err)
		}
	})

	t.Run("end non-live session", func(t *testing.T) {
		s := newTestStore(t)
		session := newTestStream("owner-1")
		if err := s.CreateStream(ctx, session); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}

		var stateErr *StateError
		_, err := s.SetStreamEnded(ctx, session.ID, "", now)
		if !errors.As(err, &stateErr) {
			t.Fatalf("err = %v, want *StateError", err)
		}
	})

	t.Run("recording ref ignored when recording disabled", func(t *testing.T) {
		s := newTestStore(t)
		session := newTestStream("owner-1")
		session.RecordingEnabled = false
		if err := s.CreateStream(ctx, session); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}
		if _, err := s.SetStreamLive(ctx, session.ID, now); err != nil {
			t.Fatalf("SetStreamLive: %v", err)
		}
		ended, err := s.SetStreamEnded(ctx, session.ID, "rec://artifact", now)
		if err != nil {
			t.Fatalf("SetStreamEnded: %v", err)
		}
		if ended.RecordingRef != "" {
			t.Errorf("recording ref = %q, want empty", ended.RecordingRef)
		}
	})

	t.Run("concurrent starts admit one session", func(t *testing.T) {
		s := newTestStore(t)
		first := newTestStream("owner-1")
		second := newTestStream("owner-1")
		for _, sess := range []*models.StreamSession{first, second} {
			if err := s.CreateStream(ctx, sess); err != nil {
				t.Fatalf("CreateStream: %v", err)
			}
		}

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		start := make(chan struct{})
		for i := range 16 {
			id := first.ID
			if i%2 == 1 {
				id = second.ID
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := s.SetStreamLive(ctx, id, now); err == nil {
					wins.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		if got := wins.Load(); got != 1 {
			t.Fatalf("%d start attempts succeeded, want exactly 1", got)
		}
		holder, err := s.LiveStreamForOwner(ctx, "owner-1")
		if err != nil {
			t.Fatalf("LiveStreamForOwner: %v", err)
		}
		if holder != first.ID && holder != second.ID {
			t.Errorf("lock holder = %q, want one of the racing sessions", holder)
		}
		live, err := s.GetStream(ctx, holder)
		if err != nil {
			t.Fatalf("GetStream: %v", err)
		}
		if live.Status != models.StreamStatusLive {
			t.Errorf("winner status = %q, want live", live.Status)
		}
	})

	t.Run("update idle only", func(t *testing.T) {
		s := newTestStore(t)
		session := newTestStream("owner-1")
		if err := s.CreateStream(ctx, session); err != nil {
			t.Fatalf("CreateStream: %v", err)
		}

		updated, err := s.UpdateIdleStream(ctx, session.ID, func(sess *models.StreamSession) error {
			sess.StreamKey = "ffffffffffffffffffffffffffffffff"
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateIdleStream: %v", err)
		}
		if updated.StreamKey != "ffffffffffffffffffffffffffffffff" {
			t.Errorf("stream key not rotated")
		}

		if _, err := s.SetStreamLive(ctx, session.ID, now); err != nil {
			t.Fatalf("SetStreamLive: %v", err)
		}
		var stateErr *StateError
		_, err = s.UpdateIdleStream(ctx, session.ID, func(*models.StreamSession) error { return nil })
		if !errors.As(err, &stateErr) {
			t.Fatalf("err = %v, want *StateError", err)
		}
	})
}
