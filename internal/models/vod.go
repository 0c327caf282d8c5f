// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package models

import (
	"time"

	"github.com/casthouse/casthouse/internal/entitlement"
)

// VODStatus is the lifecycle state of an on-demand asset.
type VODStatus string

const (
	// VODStatusPending means the VOD record exists but processing has not started.
	VODStatusPending VODStatus = "pending"

	// VODStatusProcessing means a pipeline run holds the in-flight claim.
	VODStatusProcessing VODStatus = "processing"

	// VODStatusReady means every requested stage succeeded or was skipped;
	// the asset awaits manual publication.
	VODStatusReady VODStatus = "ready"

	// VODStatusFailed means every requested stage failed.
	VODStatusFailed VODStatus = "failed"

	// VODStatusPublished means the asset is visible to entitled viewers.
	VODStatusPublished VODStatus = "published"
)

// ProcessingOptions is the snapshot of AI stages requested for a conversion.
// The snapshot is stored on the VOD so a later inspection shows what was
// asked for, independent of current platform defaults.
type ProcessingOptions struct {
	EnableAIProcessing    bool `json:"enable_ai_processing"`
	GenerateThumbnails    bool `json:"generate_thumbnails"`
	GenerateTranscription bool `json:"generate_transcription"`
	GenerateHighlights    bool `json:"generate_highlights"`
	AutoPublish           bool `json:"auto_publish"`

	// RetentionDays of -1 means keep indefinitely.
	RetentionDays int `json:"retention_days"`
}

// Pipeline stage names. Stage ordering is fixed; later stages may consume
// earlier outputs.
const (
	StageFinalize      = "finalize"
	StageThumbnails    = "thumbnails"
	StageTranscription = "transcription"
	StageHighlights    = "highlights"
	StagePublish       = "publish"
)

// StageStatus is the recorded outcome of one pipeline stage.
type StageStatus string

const (
	// StageNotRequested means the options snapshot did not ask for this stage.
	StageNotRequested StageStatus = "not_requested"

	// StageSkipped means the stage was requested but deliberately not run
	// (never "failed" — e.g. a dependency of the stage was unavailable).
	StageSkipped StageStatus = "skipped"

	// StageSucceeded means the stage completed and its outputs are attached.
	StageSucceeded StageStatus = "succeeded"

	// StageFailed means the stage ran and errored. Outputs of other stages
	// are retained regardless.
	StageFailed StageStatus = "failed"
)

// StageResult records the outcome of a single stage run.
type StageResult struct {
	Status      StageStatus `json:"status"`
	Detail      string      `json:"detail,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// StageResults is the VOD's partial-results record: the outcome of every
// stage, including the ones that were never requested.
type StageResults map[string]StageResult

// RequestedFailed reports how many requested stages failed and how many were
// requested at all. Stages recorded not_requested or skipped count as neither.
func (r StageResults) RequestedFailed() (failed, requested int) {
	for _, res := range r {
		switch res.Status {
		case StageSucceeded:
			requested++
		case StageFailed:
			requested++
			failed++
		}
	}
	return failed, requested
}

// HighlightMarker is one extracted highlight segment.
type HighlightMarker struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Label    string  `json:"label,omitempty"`
	Score    float64 `json:"score"`
}

// AIResults holds the independently present/absent outputs of the AI stages.
type AIResults struct {
	TranscriptRef string            `json:"transcript_ref,omitempty"`
	Thumbnails    []string          `json:"thumbnails,omitempty"`
	Highlights    []HighlightMarker `json:"highlights,omitempty"`
}

// VOD is a durable on-demand asset, either converted from an ended stream or
// registered from a direct upload.
type VOD struct {
	ID string `json:"id"`

	// SourceStreamID is empty for direct uploads.
	SourceStreamID string `json:"source_stream_id,omitempty"`

	OwnerID string `json:"owner_id"`
	Title   string `json:"title"`

	Status VODStatus `json:"status"`

	DurationSec  float64          `json:"duration_sec"`
	StorageRef   string           `json:"storage_ref"`
	RequiredTier entitlement.Tier `json:"required_tier"`
	Category     string           `json:"category,omitempty"`
	Tags         []string         `json:"tags,omitempty"`
	ViewCount    int64            `json:"view_count"`

	Options ProcessingOptions `json:"options"`
	Stages  StageResults      `json:"stages"`
	AI      AIResults         `json:"ai_results"`

	// PartialFailure marks a ready/published VOD where at least one
	// requested stage failed. Nothing already computed is discarded.
	PartialFailure bool `json:"partial_failure,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// JobStatus is the state of an asynchronous pipeline run.
type JobStatus string

const (
	// JobQueued means the run is waiting for a pipeline worker.
	JobQueued JobStatus = "queued"

	// JobRunning means a worker holds the VOD's in-flight claim.
	JobRunning JobStatus = "running"

	// JobCompleted means the run finished; the VOD record holds the outcome.
	JobCompleted JobStatus = "completed"

	// JobFailed means the run itself aborted (claim lost, store failure).
	// Stage-level failures do not fail the job; they land in StageResults.
	JobFailed JobStatus = "failed"
)

// PipelineJob is the pollable handle returned by a conversion request.
// Conversion is fire-and-forget from the caller's perspective; this handle is
// the only synchronous result.
type PipelineJob struct {
	ID           string     `json:"id"`
	VODID        string     `json:"vod_id"`
	Status       JobStatus  `json:"status"`
	CurrentStage string     `json:"current_stage,omitempty"`
	Error        string     `json:"error,omitempty"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
