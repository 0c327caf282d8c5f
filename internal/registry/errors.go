// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package registry

import (
	"errors"
	"fmt"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/models"
	"github.com/casthouse/casthouse/internal/store"
)

// mapStreamStoreErr translates store sentinels into the typed taxonomy.
func mapStreamStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(apperr.CodeStreamNotFound, "stream not found")
	}
	return err
}

// mapStartErr classifies a failed idle→live transition.
func mapStartErr(err error) error {
	if errors.Is(err, store.ErrOwnerLive) {
		return apperr.Conflict(apperr.CodeAlreadyLive, "owner already has a live stream")
	}
	var stateErr *store.StateError
	if errors.As(err, &stateErr) {
		if stateErr.Current == models.StreamStatusLive {
			return apperr.Conflict(apperr.CodeAlreadyLive, "stream is already live")
		}
		return apperr.Conflict(apperr.CodeConflict,
			fmt.Sprintf("stream is %s and cannot go live", stateErr.Current))
	}
	return mapStreamStoreErr(err)
}

func asStateError(err error, target **store.StateError) bool {
	return errors.As(err, target)
}
