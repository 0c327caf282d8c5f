// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/casthouse/casthouse/internal/identity"
	"github.com/casthouse/casthouse/internal/middleware"
)

// Router wires handlers, middleware, and the identity provider into the HTTP
// routing tree.
type Router struct {
	handler  *Handler
	chimw    *ChiMiddleware
	identity identity.Provider
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, chimw *ChiMiddleware, provider identity.Provider) *Router {
	return &Router{handler: handler, chimw: chimw, identity: provider}
}

// Setup builds the routing tree.
//
// Three route groups with distinct policies: health (permissive rate limit,
// no auth), public playback/read endpoints (optional auth so owners see
// their own unpublished resources), and the authenticated core API.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chimw.CORS())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/health", func(r chi.Router) {
			r.Use(router.chimw.RateLimitHealth())
			r.Use(middleware.SecurityHeaders)
			r.Get("/", router.handler.Health)
			r.Get("/live", router.handler.HealthLive)
			r.Get("/ready", router.handler.HealthReady)
		})

		// Public reads and edge-facing grant endpoints. The refresh token
		// and the grant token are credentials in their own right.
		r.Group(func(r chi.Router) {
			r.Use(router.chimw.RateLimit())
			r.Use(middleware.SecurityHeaders)
			r.Use(middleware.PrometheusMetrics)
			r.Use(middleware.OptionalAuthenticate(router.identity))

			r.Get("/streams/{id}", router.handler.GetStream)
			r.Get("/vods/{id}", router.handler.GetVOD)
			r.Post("/playback/refresh", router.handler.RefreshGrant)
			r.Get("/playback/validate", router.handler.ValidateGrant)
		})

		// Everything that acts on behalf of a caller requires auth.
		r.Group(func(r chi.Router) {
			r.Use(router.chimw.RateLimit())
			r.Use(middleware.SecurityHeaders)
			r.Use(middleware.PrometheusMetrics)
			r.Use(middleware.Authenticate(router.identity))

			r.Post("/streams", router.handler.CreateStream)
			r.Get("/streams", router.handler.ListStreams)
			r.Post("/streams/{id}/start", router.handler.StartStream)
			r.Post("/streams/{id}/end", router.handler.EndStream)
			r.Post("/streams/{id}/key/rotate", router.handler.RotateStreamKey)
			r.Post("/streams/{id}/vod", router.handler.CreateVOD)

			r.Post("/vods", router.handler.CreateDirectUpload)
			r.Post("/vods/{id}/publish", router.handler.PublishVOD)
			r.Get("/jobs/{id}", router.handler.GetJob)

			r.Post("/playback/{videoID}/url", router.handler.IssuePlaybackURL)

			r.Post("/appeals", router.handler.SubmitAppeal)
			r.Get("/appeals/{id}", router.handler.GetAppeal)
		})
	})

	// Prometheus scrape endpoint on the default registry.
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
