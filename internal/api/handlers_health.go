// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package api

import (
	"net/http"
	"time"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/models"
)

// serverStart is used for the uptime field in health responses.
var serverStart = time.Now()

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(serverStart).Seconds()),
	})
}

// HealthLive handles GET /api/v1/health/live. Liveness means the process is
// serving; it never checks dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/v1/health/ready. Readiness probes the store
// with a cheap read so a wedged database takes the instance out of rotation.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.registry.GetStream(r.Context(), "readiness-probe"); err != nil {
		// A not-found answer proves the store responds; anything else is a
		// real failure.
		if !isNotFound(err) {
			writeJSONUnready(w)
			return
		}
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}

func isNotFound(err error) bool {
	return apperr.IsKind(err, apperr.KindNotFound)
}

func writeJSONUnready(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: apperr.CodeDependencyFailure, Message: "store not ready"},
	})
}
