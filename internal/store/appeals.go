// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package store

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/casthouse/casthouse/internal/models"
)

// PutAppeal stores a new moderation appeal.
func (s *Store) PutAppeal(ctx context.Context, appeal *models.ModerationAppeal) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := appealKeyPrefix + appeal.ID
		if _, err := txn.Get([]byte(key)); err == nil {
			return ErrAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return setJSON(txn, key, appeal)
	})
}

// GetAppeal retrieves an appeal by ID.
func (s *Store) GetAppeal(ctx context.Context, id string) (*models.ModerationAppeal, error) {
	var appeal models.ModerationAppeal
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, appealKeyPrefix+id, &appeal)
	})
	if err != nil {
		return nil, err
	}
	return &appeal, nil
}

// UpdateAppeal applies mutate to the stored appeal inside one transaction.
func (s *Store) UpdateAppeal(ctx context.Context, id string, mutate func(*models.ModerationAppeal) error) (*models.ModerationAppeal, error) {
	var appeal models.ModerationAppeal
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, appealKeyPrefix+id, &appeal); err != nil {
			return err
		}
		if err := mutate(&appeal); err != nil {
			return err
		}
		return setJSON(txn, appealKeyPrefix+id, &appeal)
	})
	if err != nil {
		return nil, err
	}
	return &appeal, nil
}
