// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/identity"
	"github.com/casthouse/casthouse/internal/logging"
	"github.com/casthouse/casthouse/internal/models"
)

// callerKey is the context key the authenticated caller is stored under.
const callerKey contextKey = "caller"

// Authenticate resolves the caller through the identity provider and rejects
// requests without valid credentials. The caller lands in the request context
// for handlers.
func Authenticate(provider identity.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := provider.CallerFromRequest(r)
			if !ok {
				logging.Ctx(r.Context()).Debug().
					Str("path", r.URL.Path).
					Msg("Request rejected: no valid credentials")
				writeUnauthenticated(w)
				return
			}

			ctx := context.WithValue(r.Context(), callerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthenticate resolves the caller when credentials are present but
// never rejects. Public read endpoints use it so owners still see their own
// unpublished resources.
func OptionalAuthenticate(provider identity.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if caller, ok := provider.CallerFromRequest(r); ok {
				r = r.WithContext(context.WithValue(r.Context(), callerKey, caller))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallerFromContext returns the authenticated caller stored by Authenticate.
func CallerFromContext(ctx context.Context) (identity.Caller, bool) {
	caller, ok := ctx.Value(callerKey).(identity.Caller)
	return caller, ok
}

// writeUnauthenticated emits the standard envelope for a 401 without pulling
// in the api package (which imports this one).
func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	resp := models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error: &models.APIError{
			Code:    apperr.CodeUnauthenticated,
			Message: "authentication required",
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Error().Err(err).Msg("Failed to encode 401 response")
	}
}
