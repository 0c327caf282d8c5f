// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// ChiMiddlewareConfig holds configuration for the Chi middleware factories.
type ChiMiddlewareConfig struct {
	CORSAllowedOrigins []string

	// RateLimitRequests / RateLimitWindow apply to the core API group.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// RateLimitHealthRequests is permissive so monitoring probes are never
	// throttled out of rotation checks.
	RateLimitHealthRequests int

	RateLimitDisabled bool
}

// DefaultChiMiddlewareConfig returns the default middleware configuration.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins:      []string{},
		RateLimitRequests:       100,
		RateLimitWindow:         time.Minute,
		RateLimitHealthRequests: 1000,
	}
}

// ChiMiddleware provides Chi-compatible middleware built on the go-chi
// ecosystem (go-chi/cors, go-chi/httprate).
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware creates the middleware factory.
func NewChiMiddleware(config *ChiMiddlewareConfig) *ChiMiddleware {
	if config == nil {
		config = DefaultChiMiddlewareConfig()
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: config.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	})

	return &ChiMiddleware{config: config, cors: corsHandler}
}

// CORS returns the CORS middleware. Must be global so OPTIONS preflight
// requests are answered before any route matching.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns the per-IP rate limiter for API endpoints.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return passthrough
	}
	return httprate.Limit(
		m.config.RateLimitRequests,
		m.config.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}

// RateLimitHealth returns the permissive limiter for health endpoints.
func (m *ChiMiddleware) RateLimitHealth() func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return passthrough
	}
	return httprate.LimitByIP(m.config.RateLimitHealthRequests, time.Minute)
}

func passthrough(next http.Handler) http.Handler {
	return next
}
