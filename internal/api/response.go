// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package api exposes the Casthouse HTTP surface: stream lifecycle, VOD
// conversion, playback grants, and moderation appeals, all wrapped in the
// standard response envelope.
package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/logging"
	"github.com/casthouse/casthouse/internal/models"
	"github.com/casthouse/casthouse/internal/validation"
)

// writeJSON writes an envelope with the given status code.
func writeJSON(w http.ResponseWriter, status int, resp models.APIResponse) {
	resp.Metadata = models.Metadata{Timestamp: time.Now().UTC()}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeSuccess writes a success envelope.
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, models.APIResponse{Status: "success", Data: data})
}

// writeError maps a service error onto the envelope. Typed errors carry
// their own status and code; anything untyped is a 500 and gets logged with
// its cause, which is never leaked to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperr.From(err)
	if appErr == nil {
		logging.Ctx(r.Context()).Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("Unhandled internal error")
		writeJSON(w, http.StatusInternalServerError, models.APIResponse{
			Status: "error",
			Error:  &models.APIError{Code: apperr.CodeInternal, Message: "internal error"},
		})
		return
	}

	writeJSON(w, apperr.HTTPStatus(appErr), models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: appErr.Code, Message: appErr.Message},
	})
}

// writeValidationError maps a request validation failure onto the envelope.
func writeValidationError(w http.ResponseWriter, verr *validation.RequestValidationError) {
	apiErr := verr.ToAPIError()
	writeJSON(w, http.StatusBadRequest, models.APIResponse{
		Status: "error",
		Error: &models.APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		},
	})
}

// decodeBody decodes and validates a JSON request body into dst.
// Returns false after writing the error response when the request is bad.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIResponse{
			Status: "error",
			Error:  &models.APIError{Code: apperr.CodeValidation, Message: "invalid JSON body"},
		})
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		writeValidationError(w, verr)
		return false
	}
	return true
}
