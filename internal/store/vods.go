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
	"github.com/goccy/go-json"

	"github.com/casthouse/casthouse/internal/models"
)

// CreateVODForStream stores a new VOD converted from a stream, guarded by the
// per-stream idempotency index: a second conversion request for the same
// stream returns *VODExistsError carrying the first VOD's ID instead of
// creating a duplicate.
func (s *Store) CreateVODForStream(ctx context.Context, vod *models.VOD) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		indexKey := []byte(vodStreamKeyPrefix + vod.SourceStreamID)
		item, err := txn.Get(indexKey)
		if err == nil {
			var existingID string
			if verr := item.Value(func(val []byte) error {
				existingID = string(val)
				return nil
			}); verr != nil {
				return verr
			}
			return &VODExistsError{ExistingID: existingID}
		}
		if err != badger.ErrKeyNotFound {
			return fmt.Errorf("check vod index: %w", err)
		}

		if err := setJSON(txn, vodKeyPrefix+vod.ID, vod); err != nil {
			return err
		}
		if err := txn.Set(indexKey, []byte(vod.ID)); err != nil {
			return fmt.Errorf("set vod index: %w", err)
		}
		ownerKey := vodOwnerKeyPrefix + vod.OwnerID + ":" + vod.ID
		if err := txn.Set([]byte(ownerKey), []byte(vod.ID)); err != nil {
			return fmt.Errorf("set vod owner index: %w", err)
		}
		return nil
	})
	if IsConflict(err) {
		// A racing conversion request committed first; surface it the same
		// way as a pre-existing VOD so the caller re-reads the index.
		return &VODExistsError{}
	}
	return err
}

// CreateVOD stores a direct-upload VOD (no source stream, no idempotency index).
func (s *Store) CreateVOD(ctx context.Context, vod *models.VOD) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := vodKeyPrefix + vod.ID
		if _, err := txn.Get([]byte(key)); err == nil {
			return ErrAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return fmt.Errorf("check vod: %w", err)
		}
		if err := setJSON(txn, key, vod); err != nil {
			return err
		}
		ownerKey := vodOwnerKeyPrefix + vod.OwnerID + ":" + vod.ID
		if err := txn.Set([]byte(ownerKey), []byte(vod.ID)); err != nil {
			return fmt.Errorf("set vod owner index: %w", err)
		}
		return nil
	})
}

// GetVOD retrieves a VOD by ID.
func (s *Store) GetVOD(ctx context.Context, id string) (*models.VOD, error) {
	var vod models.VOD
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, vodKeyPrefix+id, &vod)
	})
	if err != nil {
		return nil, err
	}
	return &vod, nil
}

// GetVODByStream resolves the idempotency index for a source stream.
func (s *Store) GetVODByStream(ctx context.Context, streamID string) (*models.VOD, error) {
	var vod models.VOD
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(vodStreamKeyPrefix + streamID))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get vod index: %w", err)
		}
		var vodID string
		if verr := item.Value(func(val []byte) error {
			vodID = string(val)
			return nil
		}); verr != nil {
			return verr
		}
		return getJSON(txn, vodKeyPrefix+vodID, &vod)
	})
	if err != nil {
		return nil, err
	}
	return &vod, nil
}

// UpdateVOD applies mutate to the stored VOD inside one transaction.
// The pipeline is the only writer for a claimed VOD, so read-modify-write
// here is race-free as long as the claim discipline is respected.
func (s *Store) UpdateVOD(ctx context.Context, id string, mutate func(*models.VOD) error) (*models.VOD, error) {
	var vod models.VOD
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, vodKeyPrefix+id, &vod); err != nil {
			return err
		}
		if err := mutate(&vod); err != nil {
			return err
		}
		vod.UpdatedAt = time.Now().UTC()
		return setJSON(txn, vodKeyPrefix+id, &vod)
	})
	if err != nil {
		return nil, err
	}
	return &vod, nil
}

// ClaimVOD acquires the per-VOD in-flight guard for a pipeline run.
// The claim expires after ttl so a crashed worker cannot wedge the VOD
// forever. Returns ErrClaimHeld when another run holds the claim.
func (s *Store) ClaimVOD(ctx context.Context, vodID, jobID string, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(vodClaimKeyPrefix + vodID)
		if _, err := txn.Get(key); err == nil {
			return ErrClaimHeld
		} else if err != badger.ErrKeyNotFound {
			return fmt.Errorf("check vod claim: %w", err)
		}
		entry := badger.NewEntry(key, []byte(jobID)).WithTTL(ttl)
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("claim vod: %w", err)
		}
		return nil
	})
	if IsConflict(err) {
		return ErrClaimHeld
	}
	return err
}

// ReleaseVOD drops the in-flight guard after a pipeline run finishes.
func (s *Store) ReleaseVOD(ctx context.Context, vodID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(vodClaimKeyPrefix + vodID))
		if err != nil && err != badger.ErrKeyNotFound {
			return fmt.Errorf("release vod claim: %w", err)
		}
		return nil
	})
}

// PutJob stores a pipeline job handle and points the VOD's latest-run index
// at it.
func (s *Store) PutJob(ctx context.Context, job *models.PipelineJob) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, jobKeyPrefix+job.ID, job); err != nil {
			return err
		}
		if err := txn.Set([]byte(jobVODKeyPrefix+job.VODID), []byte(job.ID)); err != nil {
			return fmt.Errorf("set job index: %w", err)
		}
		return nil
	})
}

// JobForVOD returns the latest pipeline job for a VOD.
func (s *Store) JobForVOD(ctx context.Context, vodID string) (*models.PipelineJob, error) {
	var job models.PipelineJob
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(jobVODKeyPrefix + vodID))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get job index: %w", err)
		}
		var jobID string
		if verr := item.Value(func(val []byte) error {
			jobID = string(val)
			return nil
		}); verr != nil {
			return verr
		}
		return getJSON(txn, jobKeyPrefix+jobID, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob retrieves a pipeline job handle by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*models.PipelineJob, error) {
	var job models.PipelineJob
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, jobKeyPrefix+id, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListQueuedJobs returns every job still in queued state. The pipeline's
// requeue sweep uses it to recover jobs whose in-memory queue entry was lost
// to a restart or a full queue.
func (s *Store) ListQueuedJobs(ctx context.Context) ([]*models.PipelineJob, error) {
	var jobs []*models.PipelineJob

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(jobKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var job models.PipelineJob
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &job)
			})
			if err != nil {
				continue
			}
			if job.Status == models.JobQueued {
				j := job
				jobs = append(jobs, &j)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJob applies mutate to the stored job inside one transaction.
func (s *Store) UpdateJob(ctx context.Context, id string, mutate func(*models.PipelineJob) error) (*models.PipelineJob, error) {
	var job models.PipelineJob
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, jobKeyPrefix+id, &job); err != nil {
			return err
		}
		if err := mutate(&job); err != nil {
			return err
		}
		return setJSON(txn, jobKeyPrefix+id, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}
