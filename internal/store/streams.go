// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/casthouse/casthouse/internal/models"
)

// CreateStream stores a new stream session and its owner index entry.
func (s *Store) CreateStream(ctx context.Context, session *models.StreamSession) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := streamKeyPrefix + session.ID
		if _, err := txn.Get([]byte(key)); err == nil {
			return ErrAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return fmt.Errorf("check stream: %w", err)
		}

		if err := setJSON(txn, key, session); err != nil {
			return err
		}

		ownerKey := streamOwnerKeyPrefix + session.OwnerID + ":" + session.ID
		if err := txn.Set([]byte(ownerKey), []byte(session.ID)); err != nil {
			return fmt.Errorf("set owner index: %w", err)
		}
		return nil
	})
}

// GetStream retrieves a stream session by ID.
func (s *Store) GetStream(ctx context.Context, id string) (*models.StreamSession, error) {
	var session models.StreamSession
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, streamKeyPrefix+id, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListStreamsByOwner returns all sessions owned by ownerID, any state.
func (s *Store) ListStreamsByOwner(ctx context.Context, ownerID string) ([]*models.StreamSession, error) {
	var sessions []*models.StreamSession

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(streamOwnerKeyPrefix + ownerID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var streamID string
			err := it.Item().Value(func(val []byte) error {
				streamID = string(val)
				return nil
			})
			if err != nil {
				continue
			}

			var session models.StreamSession
			if err := getJSON(txn, streamKeyPrefix+streamID, &session); err != nil {
				continue // session may have been removed by retention
			}
			sessions = append(sessions, &session)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list streams for owner: %w", err)
	}
	return sessions, nil
}

// SetStreamLive atomically transitions a session from idle to live and claims
// the owner's exclusivity lock. Both the state check and the lock claim happen
// in one transaction: two concurrent calls for the same owner cannot both
// succeed, even across server instances sharing the store.
//
// Returns *StateError when the session is not idle, ErrOwnerLive when another
// session of the same owner is already live.
func (s *Store) SetStreamLive(ctx context.Context, streamID string, now time.Time) (*models.StreamSession, error) {
	var session models.StreamSession

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, streamKeyPrefix+streamID, &session); err != nil {
			return err
		}
		if session.Status != models.StreamStatusIdle {
			return &StateError{Expected: models.StreamStatusIdle, Current: session.Status}
		}

		lockKey := liveOwnerKeyPrefix + session.OwnerID
		if _, err := txn.Get([]byte(lockKey)); err == nil {
			return ErrOwnerLive
		} else if err != badger.ErrKeyNotFound {
			return fmt.Errorf("check owner lock: %w", err)
		}

		started := now.UTC()
		session.Status = models.StreamStatusLive
		session.StartedAt = &started
		session.UpdatedAt = started

		if err := setJSON(txn, streamKeyPrefix+streamID, &session); err != nil {
			return err
		}
		if err := txn.Set([]byte(lockKey), []byte(streamID)); err != nil {
			return fmt.Errorf("claim owner lock: %w", err)
		}
		return nil
	})
	if err != nil {
		if IsConflict(err) {
			// A racing transition for the same owner committed first.
			return nil, ErrOwnerLive
		}
		return nil, err
	}
	return &session, nil
}

// SetStreamEnded atomically transitions a session from live to ended and
// releases the owner's exclusivity lock. The transition is terminal.
//
// recordingRef, when non-empty, is stored as the sealed recording artifact
// reference for later VOD conversion.
func (s *Store) SetStreamEnded(ctx context.Context, streamID, recordingRef string, now time.Time) (*models.StreamSession, error) {
	var session models.StreamSession

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, streamKeyPrefix+streamID, &session); err != nil {
			return err
		}
		if session.Status != models.StreamStatusLive {
			return &StateError{Expected: models.StreamStatusLive, Current: session.Status}
		}

		ended := now.UTC()
		session.Status = models.StreamStatusEnded
		session.EndedAt = &ended
		session.UpdatedAt = ended
		if recordingRef != "" && session.RecordingEnabled {
			session.RecordingRef = recordingRef
		}

		if err := setJSON(txn, streamKeyPrefix+streamID, &session); err != nil {
			return err
		}

		// Release the lock only if this session holds it.
		lockKey := []byte(liveOwnerKeyPrefix + session.OwnerID)
		item, err := txn.Get(lockKey)
		if err == nil {
			var holder string
			if verr := item.Value(func(val []byte) error {
				holder = string(val)
				return nil
			}); verr == nil && holder == streamID {
				if derr := txn.Delete(lockKey); derr != nil {
					return fmt.Errorf("release owner lock: %w", derr)
				}
			}
		} else if err != badger.ErrKeyNotFound {
			return fmt.Errorf("check owner lock: %w", err)
		}
		return nil
	})
	if err != nil {
		if IsConflict(err) {
			return nil, &StateError{Expected: models.StreamStatusLive, Current: session.Status}
		}
		return nil, err
	}
	return &session, nil
}

// UpdateIdleStream applies mutate to a session that must currently be idle.
// Used for settings updates that are only legal before broadcast: key
// rotation, visibility, tier, recording flag.
func (s *Store) UpdateIdleStream(ctx context.Context, streamID string, mutate func(*models.StreamSession) error) (*models.StreamSession, error) {
	var session models.StreamSession

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, streamKeyPrefix+streamID, &session); err != nil {
			return err
		}
		if session.Status != models.StreamStatusIdle {
			return &StateError{Expected: models.StreamStatusIdle, Current: session.Status}
		}
		if err := mutate(&session); err != nil {
			return err
		}
		session.UpdatedAt = time.Now().UTC()
		return setJSON(txn, streamKeyPrefix+streamID, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// LiveStreamForOwner returns the stream ID currently holding the owner's
// exclusivity lock, or "" when the owner is not live.
func (s *Store) LiveStreamForOwner(ctx context.Context, ownerID string) (string, error) {
	var streamID string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(liveOwnerKeyPrefix + ownerID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get owner lock: %w", err)
		}
		return item.Value(func(val []byte) error {
			streamID = string(val)
			return nil
		})
	})
	return streamID, err
}
