// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package pipeline implements VOD conversion: precondition checks, the
// asynchronous multi-stage processing run, and publication.
//
// A conversion request validates preconditions synchronously, persists the
// VOD record and a pollable job handle, and enqueues the run. Stage execution
// happens on pipeline workers; the per-VOD in-flight claim in the store keeps
// concurrent runs out even across server instances.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/config"
	"github.com/casthouse/casthouse/internal/entitlement"
	"github.com/casthouse/casthouse/internal/identity"
	"github.com/casthouse/casthouse/internal/logging"
	"github.com/casthouse/casthouse/internal/media"
	"github.com/casthouse/casthouse/internal/metrics"
	"github.com/casthouse/casthouse/internal/models"
	"github.com/casthouse/casthouse/internal/store"
)

// Service owns VOD records and their processing runs.
type Service struct {
	store *store.Store
	proc  media.Processor
	cfg   config.PipelineConfig

	queue chan string // job IDs
}

// NewService builds a pipeline service. Run must be started for enqueued
// conversions to make progress.
func NewService(st *store.Store, proc media.Processor, cfg config.PipelineConfig) *Service {
	return &Service{
		store: st,
		proc:  proc,
		cfg:   cfg,
		queue: make(chan string, cfg.QueueSize),
	}
}

// CreateVODFromStream validates the conversion preconditions, creates the VOD
// record and job handle, and enqueues the processing run.
//
// The operation is idempotent per stream: a repeated request returns the VOD
// and job created by the first one.
func (s *Service) CreateVODFromStream(ctx context.Context, streamID string, requester identity.Caller, req *models.CreateVODRequest) (*models.VOD, *models.PipelineJob, error) {
	stream, err := s.store.GetStream(ctx, streamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, apperr.NotFound(apperr.CodeStreamNotFound, "stream not found")
		}
		return nil, nil, err
	}
	if stream.OwnerID != requester.ID && !requester.IsAdmin() {
		return nil, nil, apperr.Unauthorized(apperr.CodeUnauthorized, "only the stream owner may convert the recording")
	}
	if stream.Status != models.StreamStatusEnded {
		return nil, nil, apperr.Conflict(apperr.CodeStreamNotEnded,
			fmt.Sprintf("stream is %s; conversion requires an ended stream", stream.Status))
	}
	if !stream.RecordingEnabled || stream.RecordingRef == "" {
		return nil, nil, apperr.Conflict(apperr.CodeRecordingNotEnabled, "stream was not recorded")
	}

	now := time.Now().UTC()
	vod := &models.VOD{
		ID:             uuid.NewString(),
		SourceStreamID: streamID,
		OwnerID:        stream.OwnerID,
		Title:          stream.Title,
		Status:         models.VODStatusPending,
		// StorageRef starts as the sealed recording; finalize replaces it
		// with the playable asset.
		StorageRef:   stream.RecordingRef,
		RequiredTier: entitlement.ResolveDefaultTier(stream.CreatorSettings(s.cfg.DefaultVODTier)),
		Options:      req.Options(),
		Stages:       models.StageResults{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateVODForStream(ctx, vod); err != nil {
		var exists *store.VODExistsError
		if errors.As(err, &exists) {
			existing, gerr := s.store.GetVODByStream(ctx, streamID)
			if gerr != nil {
				return nil, nil, gerr
			}
			job, jerr := s.store.JobForVOD(ctx, existing.ID)
			if jerr != nil && !errors.Is(jerr, store.ErrNotFound) {
				return nil, nil, jerr
			}
			logging.Ctx(ctx).Debug().
				Str("stream_id", streamID).
				Str("vod_id", existing.ID).
				Msg("Conversion already requested, returning existing VOD")
			return existing, job, nil
		}
		return nil, nil, fmt.Errorf("create vod: %w", err)
	}

	job, err := s.enqueue(ctx, vod.ID)
	if err != nil {
		return nil, nil, err
	}

	logging.Ctx(ctx).Info().
		Str("stream_id", streamID).
		Str("vod_id", vod.ID).
		Str("job_id", job.ID).
		Bool("ai_processing", vod.Options.EnableAIProcessing).
		Msg("VOD conversion enqueued")
	return vod, job, nil
}

// CreateDirectUpload registers a VOD from an already-uploaded asset and
// enqueues the same processing run. There is no recording to finalize; the
// finalize stage is recorded as skipped.
func (s *Service) CreateDirectUpload(ctx context.Context, ownerID string, req *models.DirectUploadRequest) (*models.VOD, *models.PipelineJob, error) {
	tier := entitlement.TierBasic
	if req.RequiredTier != "" {
		var err error
		tier, err = entitlement.ParseTier(req.RequiredTier)
		if err != nil {
			return nil, nil, apperr.InvalidInput(apperr.CodeValidation, err.Error())
		}
	}

	now := time.Now().UTC()
	vod := &models.VOD{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Title:        req.Title,
		Status:       models.VODStatusPending,
		StorageRef:   req.StorageRef,
		RequiredTier: tier,
		Category:     req.Category,
		Options:      req.Options(),
		Stages:       models.StageResults{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateVOD(ctx, vod); err != nil {
		return nil, nil, fmt.Errorf("create direct upload: %w", err)
	}

	job, err := s.enqueue(ctx, vod.ID)
	if err != nil {
		return nil, nil, err
	}

	logging.Ctx(ctx).Info().
		Str("vod_id", vod.ID).
		Str("job_id", job.ID).
		Msg("Direct upload registered")
	return vod, job, nil
}

// enqueue persists a queued job handle and hands it to the worker pool.
func (s *Service) enqueue(ctx context.Context, vodID string) (*models.PipelineJob, error) {
	job := &models.PipelineJob{
		ID:         uuid.NewString(),
		VODID:      vodID,
		Status:     models.JobQueued,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.store.PutJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	select {
	case s.queue <- job.ID:
		metrics.PipelineQueueDepth.Set(float64(len(s.queue)))
	default:
		// The job is already durable in queued state; the requeue sweep in
		// Run picks it up once the channel drains.
		logging.Ctx(ctx).Warn().
			Str("job_id", job.ID).
			Str("vod_id", vodID).
			Msg("Conversion queue full, job deferred to requeue sweep")
	}
	return job, nil
}

// Job returns a pipeline job handle for polling.
func (s *Service) Job(ctx context.Context, jobID string) (*models.PipelineJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeJobNotFound, "job not found")
		}
		return nil, err
	}
	return job, nil
}

// GetVOD returns a VOD by ID.
func (s *Service) GetVOD(ctx context.Context, vodID string) (*models.VOD, error) {
	vod, err := s.store.GetVOD(ctx, vodID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(apperr.CodeVODNotFound, "vod not found")
		}
		return nil, err
	}
	return vod, nil
}

// PublishVOD makes a ready VOD visible to entitled viewers. Only the owner or
// an admin may publish, and only from the ready state.
func (s *Service) PublishVOD(ctx context.Context, vodID string, requester identity.Caller) (*models.VOD, error) {
	vod, err := s.GetVOD(ctx, vodID)
	if err != nil {
		return nil, err
	}
	if vod.OwnerID != requester.ID && !requester.IsAdmin() {
		return nil, apperr.Unauthorized(apperr.CodeUnauthorized, "only the owner may publish the vod")
	}
	if vod.Status != models.VODStatusReady {
		return nil, apperr.Conflict(apperr.CodeVODNotReady,
			fmt.Sprintf("vod is %s, publication requires ready", vod.Status))
	}

	now := time.Now().UTC()
	published, err := s.store.UpdateVOD(ctx, vodID, func(v *models.VOD) error {
		if v.Status != models.VODStatusReady {
			return apperr.Conflict(apperr.CodeVODNotReady,
				fmt.Sprintf("vod is %s, publication requires ready", v.Status))
		}
		v.Status = models.VODStatusPublished
		v.PublishedAt = &now
		v.Stages[models.StagePublish] = models.StageResult{
			Status:      models.StageSucceeded,
			Detail:      "published manually",
			CompletedAt: &now,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Ctx(ctx).Info().Str("vod_id", vodID).Msg("VOD published")
	return published, nil
}
