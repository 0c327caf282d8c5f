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

// PutGrant stores an access grant and its refresh-token index, both expiring
// via Badger TTL after the retention window (grant TTL + refresh grace).
// Nothing outlives the window; expired grants need no sweeper.
func (s *Store) PutGrant(ctx context.Context, grant *models.AccessGrant, retain time.Duration) error {
	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("marshal grant: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		grantEntry := badger.NewEntry([]byte(grantKeyPrefix+grant.ID), data).WithTTL(retain)
		if err := txn.SetEntry(grantEntry); err != nil {
			return fmt.Errorf("set grant: %w", err)
		}

		refreshEntry := badger.NewEntry(
			[]byte(refreshKeyPrefix+grant.RefreshToken),
			[]byte(grant.ID),
		).WithTTL(retain)
		if err := txn.SetEntry(refreshEntry); err != nil {
			return fmt.Errorf("set refresh index: %w", err)
		}
		return nil
	})
}

// GetGrant retrieves a grant by its ID.
func (s *Store) GetGrant(ctx context.Context, id string) (*models.AccessGrant, error) {
	var grant models.AccessGrant
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, grantKeyPrefix+id, &grant)
	})
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

// ConsumeRefreshToken resolves a refresh token to its grant and deletes the
// token in the same transaction, making it single-use: at most one
// replacement grant per expiry window. Returns ErrNotFound when the token is
// unknown, already consumed, or expired.
func (s *Store) ConsumeRefreshToken(ctx context.Context, token string) (*models.AccessGrant, error) {
	var grant models.AccessGrant

	err := s.db.Update(func(txn *badger.Txn) error {
		key := []byte(refreshKeyPrefix + token)
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get refresh index: %w", err)
		}

		var grantID string
		if verr := item.Value(func(val []byte) error {
			grantID = string(val)
			return nil
		}); verr != nil {
			return verr
		}

		if err := getJSON(txn, grantKeyPrefix+grantID, &grant); err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return fmt.Errorf("consume refresh token: %w", err)
		}
		return nil
	})
	if err != nil {
		if IsConflict(err) {
			// A racing refresh consumed the token first.
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &grant, nil
}
