// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/grants"
	"github.com/casthouse/casthouse/internal/identity"
	"github.com/casthouse/casthouse/internal/middleware"
	"github.com/casthouse/casthouse/internal/models"
	"github.com/casthouse/casthouse/internal/moderation"
	"github.com/casthouse/casthouse/internal/pipeline"
	"github.com/casthouse/casthouse/internal/registry"
)

// Handler carries the services the HTTP surface delegates to.
type Handler struct {
	registry   *registry.Service
	pipeline   *pipeline.Service
	grants     *grants.Issuer
	moderation *moderation.Bridge
}

// NewHandler builds the API handler set.
func NewHandler(reg *registry.Service, pipe *pipeline.Service, issuer *grants.Issuer, bridge *moderation.Bridge) *Handler {
	return &Handler{
		registry:   reg,
		pipeline:   pipe,
		grants:     issuer,
		moderation: bridge,
	}
}

// caller returns the authenticated caller's ID; routes behind Authenticate
// always have one.
func caller(r *http.Request) string {
	return callerIdentity(r).ID
}

// callerIdentity returns the full caller, role included, for handlers whose
// services distinguish owners from admins.
func callerIdentity(r *http.Request) identity.Caller {
	c, _ := middleware.CallerFromContext(r.Context())
	return c
}

// CreateStream handles POST /api/v1/streams.
// The response is the only payload that ever carries the stream key.
func (h *Handler) CreateStream(w http.ResponseWriter, r *http.Request) {
	var req models.CreateStreamRequest
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := h.registry.CreateStream(r.Context(), caller(r), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, models.StreamKeyResponse{
		Stream:    session,
		StreamKey: session.StreamKey,
	})
}

// GetStream handles GET /api/v1/streams/{id}.
func (h *Handler) GetStream(w http.ResponseWriter, r *http.Request) {
	session, err := h.registry.GetStream(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, session)
}

// ListStreams handles GET /api/v1/streams, scoped to the caller's sessions.
func (h *Handler) ListStreams(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.registry.ListStreamsByOwner(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*models.StreamSession{}
	}
	writeSuccess(w, http.StatusOK, sessions)
}

// StartStream handles POST /api/v1/streams/{id}/start.
func (h *Handler) StartStream(w http.ResponseWriter, r *http.Request) {
	session, err := h.registry.StartStream(r.Context(), chi.URLParam(r, "id"), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, session)
}

// EndStream handles POST /api/v1/streams/{id}/end.
func (h *Handler) EndStream(w http.ResponseWriter, r *http.Request) {
	session, err := h.registry.EndStream(r.Context(), chi.URLParam(r, "id"), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, session)
}

// RotateStreamKey handles POST /api/v1/streams/{id}/key/rotate.
func (h *Handler) RotateStreamKey(w http.ResponseWriter, r *http.Request) {
	session, err := h.registry.RotateStreamKey(r.Context(), chi.URLParam(r, "id"), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, models.StreamKeyResponse{
		Stream:    session,
		StreamKey: session.StreamKey,
	})
}

// CreateVOD handles POST /api/v1/streams/{id}/vod. Processing is
// asynchronous; the response carries the VOD record and the pollable job.
func (h *Handler) CreateVOD(w http.ResponseWriter, r *http.Request) {
	var req models.CreateVODRequest
	if !decodeBody(w, r, &req) {
		return
	}

	vod, job, err := h.pipeline.CreateVODFromStream(r.Context(), chi.URLParam(r, "id"), callerIdentity(r), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, models.ConversionResponse{VOD: vod, Job: job})
}

// CreateDirectUpload handles POST /api/v1/vods.
func (h *Handler) CreateDirectUpload(w http.ResponseWriter, r *http.Request) {
	var req models.DirectUploadRequest
	if !decodeBody(w, r, &req) {
		return
	}

	vod, job, err := h.pipeline.CreateDirectUpload(r.Context(), caller(r), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, models.ConversionResponse{VOD: vod, Job: job})
}

// GetVOD handles GET /api/v1/vods/{id}. Unpublished VODs are visible to
// their owner only; to everyone else they do not exist.
func (h *Handler) GetVOD(w http.ResponseWriter, r *http.Request) {
	vod, err := h.pipeline.GetVOD(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if vod.Status != models.VODStatusPublished {
		c, ok := middleware.CallerFromContext(r.Context())
		if !ok || (c.ID != vod.OwnerID && !c.IsAdmin()) {
			writeError(w, r, apperr.NotFound(apperr.CodeVODNotFound, "vod not found"))
			return
		}
	}
	writeSuccess(w, http.StatusOK, vod)
}

// PublishVOD handles POST /api/v1/vods/{id}/publish.
func (h *Handler) PublishVOD(w http.ResponseWriter, r *http.Request) {
	vod, err := h.pipeline.PublishVOD(r.Context(), chi.URLParam(r, "id"), callerIdentity(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, vod)
}

// GetJob handles GET /api/v1/jobs/{id}. Jobs expose processing state for
// VODs that may still be unpublished, so reads are scoped the same way as
// the VOD itself: owner or admin, everyone else gets not-found.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.pipeline.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	vod, err := h.pipeline.GetVOD(r.Context(), job.VODID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c := callerIdentity(r)
	if vod.OwnerID != c.ID && !c.IsAdmin() {
		writeError(w, r, apperr.NotFound(apperr.CodeJobNotFound, "job not found"))
		return
	}
	writeSuccess(w, http.StatusOK, job)
}

// IssuePlaybackURL handles POST /api/v1/playback/{videoID}/url.
// The body's tier hint is advisory; entitlement always checks the stored
// required tier.
func (h *Handler) IssuePlaybackURL(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > 0 {
		var req models.PlaybackURLRequest
		if !decodeBody(w, r, &req) {
			return
		}
	}

	grant, err := h.grants.Issue(r.Context(), chi.URLParam(r, "videoID"), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, grant)
}

// RefreshGrant handles POST /api/v1/playback/refresh. The refresh token is
// the credential; no separate authentication applies.
func (h *Handler) RefreshGrant(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshGrantRequest
	if !decodeBody(w, r, &req) {
		return
	}

	grant, err := h.grants.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, grant)
}

// ValidateGrant handles GET /api/v1/playback/validate, the edge callback.
func (h *Handler) ValidateGrant(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	videoID := r.URL.Query().Get("video_id")
	if token == "" || videoID == "" {
		writeError(w, r, apperr.InvalidInput(apperr.CodeValidation, "token and video_id are required"))
		return
	}

	claims, err := h.grants.Validate(r.Context(), token, videoID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]string{
		"video_id":  claims.VideoID,
		"viewer_id": claims.Subject,
		"grant_id":  claims.GrantID,
		"tier":      claims.Tier,
	})
}

// SubmitAppeal handles POST /api/v1/appeals.
func (h *Handler) SubmitAppeal(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitAppealRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appeal, err := h.moderation.ProcessContentAppeal(r.Context(), caller(r), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, appeal)
}

// GetAppeal handles GET /api/v1/appeals/{id}. Appeals are visible to their
// appellant only.
func (h *Handler) GetAppeal(w http.ResponseWriter, r *http.Request) {
	appeal, err := h.moderation.Appeal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if appeal.UserID != caller(r) {
		writeError(w, r, apperr.NotFound(apperr.CodeAppealNotFound, "appeal not found"))
		return
	}
	writeSuccess(w, http.StatusOK, appeal)
}
