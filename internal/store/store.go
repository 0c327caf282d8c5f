// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package store provides BadgerDB-backed persistence for stream sessions,
// VODs, pipeline jobs, access grants, and moderation appeals.
//
// Records are JSON documents under typed key prefixes. State transitions use
// read-check-write inside a single Badger transaction, so "transition iff
// current state matches expected" holds under concurrent requests without
// in-process locking; Badger's conflict detection serializes racing
// transactions and the loser surfaces as a conflict error.
package store

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/casthouse/casthouse/internal/config"
	"github.com/casthouse/casthouse/internal/logging"
)

// Key prefixes for BadgerDB storage.
const (
	streamKeyPrefix      = "stream:"
	streamOwnerKeyPrefix = "stream_owner:" // stream_owner:<ownerID>:<streamID> -> streamID
	liveOwnerKeyPrefix   = "live_owner:"   // live_owner:<ownerID> -> streamID (exclusivity lock)
	vodKeyPrefix         = "vod:"
	vodStreamKeyPrefix   = "vod_stream:" // vod_stream:<streamID> -> vodID (idempotency index)
	vodOwnerKeyPrefix    = "vod_owner:"  // vod_owner:<ownerID>:<vodID> -> vodID
	vodClaimKeyPrefix    = "vod_claim:"  // vod_claim:<vodID> -> jobID (in-flight guard, TTL)
	jobKeyPrefix         = "job:"
	jobVODKeyPrefix      = "job_vod:" // job_vod:<vodID> -> jobID (latest run)
	grantKeyPrefix       = "grant:"
	refreshKeyPrefix     = "refresh:" // refresh:<token> -> grantID (single use, TTL)
	appealKeyPrefix      = "appeal:"
)

// Store wraps a BadgerDB handle with typed accessors for the Casthouse
// collections.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the BadgerDB store described by cfg.
func Open(cfg config.StorageConfig) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a throwaway in-memory store. Intended for tests.
func OpenInMemory() (*Store, error) {
	return Open(config.StorageConfig{InMemory: true})
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunValueLogGC triggers one round of Badger value log garbage collection.
// Called periodically by the maintenance service; badger.ErrNoRewrite means
// there was nothing to collect and is not an error for callers.
func (s *Store) RunValueLogGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}

// getJSON loads and unmarshals the value at key within txn.
// Returns ErrNotFound when the key is absent.
func getJSON(txn *badger.Txn, key string, out interface{}) error {
	item, err := txn.Get([]byte(key))
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// setJSON marshals v and stores it at key within txn.
func setJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := txn.Set([]byte(key), data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// badgerLogger adapts Badger's logger interface to the logging package.
// Badger's info output is demoted to debug; it is operational noise for us.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.Error().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.Warn().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.Debug().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}
