// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/casthouse/casthouse/internal/models"
)

// Sentinel errors for store operations. Services translate these into the
// apperr taxonomy; the store itself stays HTTP-agnostic.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists indicates a create collided with an existing record.
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrOwnerLive indicates the owner already has a live session
	// (the live_owner exclusivity lock is held).
	ErrOwnerLive = errors.New("store: owner already has a live stream")

	// ErrClaimHeld indicates another pipeline run holds the VOD's
	// in-flight claim.
	ErrClaimHeld = errors.New("store: conversion already in flight")
)

// StateError reports a conditional stream transition that found the session
// in an unexpected state. The attempted transition did not mutate anything.
type StateError struct {
	Expected models.StreamStatus
	Current  models.StreamStatus
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("store: stream is %s, expected %s", e.Current, e.Expected)
}

// VODExistsError reports that a conversion was already requested for the
// stream; ExistingID identifies the VOD created by the first request.
type VODExistsError struct {
	ExistingID string
}

// Error implements the error interface.
func (e *VODExistsError) Error() string {
	return fmt.Sprintf("store: vod already exists for stream (vod %s)", e.ExistingID)
}

// IsConflict reports whether err is a Badger transaction conflict, meaning a
// concurrent transaction won the race and the caller's precondition must be
// re-evaluated.
func IsConflict(err error) bool {
	return errors.Is(err, badger.ErrConflict)
}
