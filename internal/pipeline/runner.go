// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/casthouse/casthouse/internal/logging"
	"github.com/casthouse/casthouse/internal/metrics"
	"github.com/casthouse/casthouse/internal/models"
	"github.com/casthouse/casthouse/internal/store"
)

// Run consumes the job queue with the configured number of workers until ctx
// is cancelled. It blocks; the supervisor runs it as a service.
//
// Jobs are durable in the store but the delivery channel is not: before the
// workers start, and periodically afterwards, Run re-enqueues jobs still in
// queued state so restarts and full-queue deferrals never orphan a job.
func (s *Service) Run(ctx context.Context) error {
	logging.Info().Int("workers", s.cfg.Workers).Msg("Pipeline workers starting")

	if n := s.requeueStale(ctx, 0); n > 0 {
		logging.Info().Int("jobs", n).Msg("Recovered queued jobs from previous run")
	}
	if s.cfg.RequeueInterval > 0 {
		go s.requeueLoop(ctx)
	}

	var wg sync.WaitGroup
	for range s.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case jobID := <-s.queue:
					metrics.PipelineQueueDepth.Set(float64(len(s.queue)))
					s.runJob(ctx, jobID)
				}
			}
		}()
	}
	wg.Wait()

	logging.Info().Msg("Pipeline workers stopped")
	return ctx.Err()
}

// requeueLoop periodically re-delivers jobs stuck in queued state. A job is
// stuck once it has sat queued for a full interval: either its channel entry
// was lost to a restart or enqueue deferred it on a full queue.
func (s *Service) requeueLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RequeueInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.requeueStale(ctx, s.cfg.RequeueInterval); n > 0 {
				logging.Info().Int("jobs", n).Msg("Requeued stale pipeline jobs")
			}
		}
	}
}

// requeueStale re-sends queued jobs older than olderThan to the worker
// channel and reports how many it delivered. Duplicate delivery is harmless:
// runJob skips jobs no longer in queued state.
func (s *Service) requeueStale(ctx context.Context, olderThan time.Duration) int {
	jobs, err := s.store.ListQueuedJobs(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to scan for queued jobs")
		return 0
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	sent := 0
	for _, job := range jobs {
		if job.EnqueuedAt.After(cutoff) {
			continue
		}
		select {
		case s.queue <- job.ID:
			sent++
		default:
			metrics.PipelineQueueDepth.Set(float64(len(s.queue)))
			return sent
		}
	}
	metrics.PipelineQueueDepth.Set(float64(len(s.queue)))
	return sent
}

// runJob executes one conversion run end to end: claim, stages, publication
// decision, release. Stage failures are recorded, never propagated — only the
// run's own bookkeeping (claim, store access) can fail the job.
func (s *Service) runJob(ctx context.Context, jobID string) {
	log := logging.Logger().With().Str("job_id", jobID).Logger()

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		log.Error().Err(err).Msg("Pipeline job vanished before execution")
		return
	}
	if job.Status != models.JobQueued {
		// Requeue sweep and channel can deliver the same job twice; only the
		// first delivery runs it.
		log.Debug().Str("status", string(job.Status)).Msg("Job already picked up, skipping")
		return
	}
	log = log.With().Str("vod_id", job.VODID).Logger()

	if err := s.store.ClaimVOD(ctx, job.VODID, job.ID, s.cfg.ClaimTTL); err != nil {
		s.failJob(ctx, jobID, err)
		if errors.Is(err, store.ErrClaimHeld) {
			log.Warn().Msg("Conversion already in flight, job abandoned")
		} else {
			log.Error().Err(err).Msg("Failed to claim VOD")
		}
		return
	}
	defer func() {
		if err := s.store.ReleaseVOD(ctx, job.VODID); err != nil {
			log.Error().Err(err).Msg("Failed to release VOD claim")
		}
	}()

	started := time.Now().UTC()
	if _, err := s.store.UpdateJob(ctx, jobID, func(j *models.PipelineJob) error {
		j.Status = models.JobRunning
		j.StartedAt = &started
		return nil
	}); err != nil {
		log.Error().Err(err).Msg("Failed to mark job running")
		return
	}

	vod, err := s.store.UpdateVOD(ctx, job.VODID, func(v *models.VOD) error {
		v.Status = models.VODStatusProcessing
		return nil
	})
	if err != nil {
		s.failJob(ctx, jobID, err)
		log.Error().Err(err).Msg("Failed to mark VOD processing")
		return
	}

	outcome := s.runStages(ctx, jobID, vod)

	finished := time.Now().UTC()
	if _, err := s.store.UpdateVOD(ctx, job.VODID, func(v *models.VOD) error {
		for name, res := range outcome.stages {
			v.Stages[name] = res
		}
		v.StorageRef = outcome.storageRef
		v.DurationSec = outcome.durationSec
		v.AI = outcome.ai
		v.Status = outcome.status
		v.PartialFailure = outcome.partialFailure
		if outcome.status == models.VODStatusPublished {
			v.PublishedAt = &finished
		}
		return nil
	}); err != nil {
		s.failJob(ctx, jobID, err)
		log.Error().Err(err).Msg("Failed to persist pipeline outcome")
		return
	}

	if _, err := s.store.UpdateJob(ctx, jobID, func(j *models.PipelineJob) error {
		j.Status = models.JobCompleted
		j.CurrentStage = ""
		j.FinishedAt = &finished
		return nil
	}); err != nil {
		log.Error().Err(err).Msg("Failed to mark job completed")
		return
	}
	metrics.PipelineJobs.WithLabelValues("completed").Inc()

	log.Info().
		Str("status", string(outcome.status)).
		Bool("partial_failure", outcome.partialFailure).
		Msg("VOD conversion finished")
}

// failJob marks the run itself as aborted. Stage-level failures never land
// here; they are recorded per stage on the VOD.
func (s *Service) failJob(ctx context.Context, jobID string, cause error) {
	now := time.Now().UTC()
	if _, err := s.store.UpdateJob(ctx, jobID, func(j *models.PipelineJob) error {
		j.Status = models.JobFailed
		j.Error = cause.Error()
		j.FinishedAt = &now
		return nil
	}); err != nil {
		logging.Error().Err(err).Str("job_id", jobID).Msg("Failed to mark job failed")
	}
	metrics.PipelineJobs.WithLabelValues("failed").Inc()
}

// stageOutcome accumulates the results of one run before the final write.
type stageOutcome struct {
	stages         models.StageResults
	ai             models.AIResults
	storageRef     string
	durationSec    float64
	status         models.VODStatus
	partialFailure bool
}

// runStages executes the stage sequence against the media backend.
//
// Finalize must succeed for the AI stages to have an asset to work on.
// Thumbnails and transcription are independent of each other; highlights
// consume the transcript when one exists and degrade to raw-signal mode when
// transcription was requested but failed. The VOD only fails as a whole when
// every requested stage failed.
func (s *Service) runStages(ctx context.Context, jobID string, vod *models.VOD) stageOutcome {
	out := stageOutcome{
		stages:      models.StageResults{},
		storageRef:  vod.StorageRef,
		durationSec: vod.DurationSec,
	}
	opts := vod.Options

	// Stage: finalize. Direct uploads arrive already finalized.
	if vod.SourceStreamID == "" {
		out.record(models.StageFinalize, models.StageSkipped, "asset uploaded pre-finalized", 0)
	} else {
		s.setStage(ctx, jobID, models.StageFinalize)
		elapsed, err := s.stage(ctx, func(c context.Context) error {
			res, ferr := s.proc.FinalizeRecording(c, vod.StorageRef)
			if ferr != nil {
				return ferr
			}
			out.storageRef = res.StorageRef
			out.durationSec = res.DurationSec
			return nil
		})
		if err != nil {
			out.record(models.StageFinalize, models.StageFailed, err.Error(), elapsed)
			// No playable asset; the AI stages have nothing to run on.
			for _, name := range []string{models.StageThumbnails, models.StageTranscription, models.StageHighlights} {
				if stageRequested(opts, name) {
					out.record(name, models.StageSkipped, "finalize failed", 0)
				} else {
					out.record(name, models.StageNotRequested, "", 0)
				}
			}
			out.decide(opts)
			return out
		}
		out.record(models.StageFinalize, models.StageSucceeded, "", elapsed)
	}

	// Stage: thumbnails.
	if opts.GenerateThumbnails {
		s.setStage(ctx, jobID, models.StageThumbnails)
		elapsed, err := s.stage(ctx, func(c context.Context) error {
			refs, terr := s.proc.GenerateThumbnails(c, out.storageRef, 4)
			if terr != nil {
				return terr
			}
			out.ai.Thumbnails = refs
			return nil
		})
		if err != nil {
			out.record(models.StageThumbnails, models.StageFailed, err.Error(), elapsed)
		} else {
			out.record(models.StageThumbnails, models.StageSucceeded, "", elapsed)
		}
	} else {
		out.record(models.StageThumbnails, models.StageNotRequested, "", 0)
	}

	// Stage: transcription.
	transcriptionFailed := false
	if opts.GenerateTranscription {
		s.setStage(ctx, jobID, models.StageTranscription)
		elapsed, err := s.stage(ctx, func(c context.Context) error {
			ref, terr := s.proc.Transcribe(c, out.storageRef)
			if terr != nil {
				return terr
			}
			out.ai.TranscriptRef = ref
			return nil
		})
		if err != nil {
			transcriptionFailed = true
			out.record(models.StageTranscription, models.StageFailed, err.Error(), elapsed)
		} else {
			out.record(models.StageTranscription, models.StageSucceeded, "", elapsed)
		}
	} else {
		out.record(models.StageTranscription, models.StageNotRequested, "", 0)
	}

	// Stage: highlights. Runs in raw-signal mode when no transcript exists,
	// including when transcription was requested but failed.
	if opts.GenerateHighlights {
		s.setStage(ctx, jobID, models.StageHighlights)
		detail := ""
		if out.ai.TranscriptRef == "" {
			detail = "mode=raw"
			if transcriptionFailed {
				detail = "mode=raw (transcription failed)"
			}
		}
		elapsed, err := s.stage(ctx, func(c context.Context) error {
			markers, herr := s.proc.ExtractHighlights(c, out.storageRef, out.ai.TranscriptRef)
			if herr != nil {
				return herr
			}
			out.ai.Highlights = markers
			return nil
		})
		if err != nil {
			out.record(models.StageHighlights, models.StageFailed, err.Error(), elapsed)
		} else {
			out.record(models.StageHighlights, models.StageSucceeded, detail, elapsed)
		}
	} else {
		out.record(models.StageHighlights, models.StageNotRequested, "", 0)
	}

	out.decide(opts)
	return out
}

// stage runs fn under the configured stage timeout and reports elapsed time.
func (s *Service) stage(ctx context.Context, fn func(context.Context) error) (time.Duration, error) {
	stageCtx, cancel := context.WithTimeout(ctx, s.cfg.StageTimeout)
	defer cancel()

	start := time.Now()
	err := fn(stageCtx)
	return time.Since(start), err
}

// setStage updates the job's pollable current-stage field. Best effort.
func (s *Service) setStage(ctx context.Context, jobID, stage string) {
	if _, err := s.store.UpdateJob(ctx, jobID, func(j *models.PipelineJob) error {
		j.CurrentStage = stage
		return nil
	}); err != nil {
		logging.Warn().Err(err).Str("job_id", jobID).Msg("Failed to update job stage")
	}
}

// record captures one stage result and its metrics.
func (o *stageOutcome) record(stage string, status models.StageStatus, detail string, elapsed time.Duration) {
	now := time.Now().UTC()
	res := models.StageResult{Status: status, Detail: detail}
	if status == models.StageSucceeded || status == models.StageFailed {
		res.CompletedAt = &now
		metrics.RecordStage(stage, string(status), elapsed)
	} else if status == models.StageSkipped {
		metrics.PipelineStageResults.WithLabelValues(stage, string(status)).Inc()
	}
	o.stages[stage] = res
}

// decide applies the publication policy to the collected stage results.
func (o *stageOutcome) decide(opts models.ProcessingOptions) {
	failed, requested := o.stages.RequestedFailed()

	switch {
	case requested > 0 && failed == requested:
		o.status = models.VODStatusFailed
		o.stages[models.StagePublish] = models.StageResult{
			Status: models.StageSkipped,
			Detail: "all requested stages failed",
		}
	case opts.AutoPublish:
		o.status = models.VODStatusPublished
		now := time.Now().UTC()
		o.stages[models.StagePublish] = models.StageResult{
			Status:      models.StageSucceeded,
			Detail:      "published automatically",
			CompletedAt: &now,
		}
	default:
		o.status = models.VODStatusReady
		o.stages[models.StagePublish] = models.StageResult{Status: models.StageNotRequested}
	}
	o.partialFailure = failed > 0 && failed < requested
}

// stageRequested reports whether the options snapshot asks for an AI stage.
func stageRequested(opts models.ProcessingOptions, stage string) bool {
	switch stage {
	case models.StageThumbnails:
		return opts.GenerateThumbnails
	case models.StageTranscription:
		return opts.GenerateTranscription
	case models.StageHighlights:
		return opts.GenerateHighlights
	default:
		return false
	}
}
