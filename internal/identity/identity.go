// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package identity resolves the calling user from an HTTP request.
package identity

import (
	"net/http"
	"strings"

	"github.com/casthouse/casthouse/internal/config"
)

// Roles understood by the platform. Anything else is treated as a regular
// user.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Caller is the authenticated principal behind a request.
type Caller struct {
	ID   string
	Role string
}

// IsAdmin reports whether the caller carries the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Provider turns request credentials into a Caller.
// Implementations must not write to the response; the auth middleware owns
// the 401 path.
type Provider interface {
	// CallerFromRequest resolves the caller, or ok=false when the request
	// carries no valid credentials.
	CallerFromRequest(r *http.Request) (Caller, bool)
}

// StaticProvider maps fixed bearer tokens to callers, backed by config.
// It exists for development and tests; production deployments front Casthouse
// with a real identity provider.
type StaticProvider struct {
	byToken map[string]Caller
}

// NewStaticProvider builds a StaticProvider from configured identities.
func NewStaticProvider(identities []config.StaticIdentity) *StaticProvider {
	byToken := make(map[string]Caller, len(identities))
	for _, id := range identities {
		if id.Token == "" || id.UserID == "" {
			continue
		}
		role := id.Role
		if role == "" {
			role = RoleUser
		}
		byToken[id.Token] = Caller{ID: id.UserID, Role: role}
	}
	return &StaticProvider{byToken: byToken}
}

// CallerFromRequest implements Provider using the Authorization bearer token.
func (p *StaticProvider) CallerFromRequest(r *http.Request) (Caller, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return Caller{}, false
	}
	caller, ok := p.byToken[token]
	return caller, ok
}
