// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package models

// CreateStreamRequest registers a new idle stream session for the caller.
type CreateStreamRequest struct {
	Title            string `json:"title" validate:"required,max=200"`
	Description      string `json:"description" validate:"max=2000"`
	Visibility       string `json:"visibility" validate:"omitempty,oneof=public private"`
	RequiredTier     string `json:"required_tier" validate:"omitempty,oneof=basic premium pro"`
	RecordingEnabled bool   `json:"recording_enabled"`
}

// CreateVODRequest triggers conversion of an ended stream's recording.
// RetentionDays of -1 means keep indefinitely.
type CreateVODRequest struct {
	EnableAIProcessing    bool `json:"enable_ai_processing"`
	GenerateThumbnails    bool `json:"generate_thumbnails"`
	GenerateTranscription bool `json:"generate_transcription"`
	GenerateHighlights    bool `json:"generate_highlights"`
	AutoPublish           bool `json:"auto_publish"`
	RetentionDays         int  `json:"retention_days" validate:"min=-1,max=3650"`
}

// Options converts the request into the stored processing-options snapshot.
func (r *CreateVODRequest) Options() ProcessingOptions {
	return ProcessingOptions{
		EnableAIProcessing:    r.EnableAIProcessing,
		GenerateThumbnails:    r.GenerateThumbnails,
		GenerateTranscription: r.GenerateTranscription,
		GenerateHighlights:    r.GenerateHighlights,
		AutoPublish:           r.AutoPublish,
		RetentionDays:         r.RetentionDays,
	}
}

// DirectUploadRequest registers a VOD from an already-uploaded asset rather
// than a stream recording.
type DirectUploadRequest struct {
	Title      string `json:"title" validate:"required,max=200"`
	StorageRef string `json:"storage_ref" validate:"required,max=1024"`
	Category   string `json:"category" validate:"max=100"`

	RequiredTier string `json:"required_tier" validate:"omitempty,oneof=basic premium pro"`

	CreateVODRequest
}

// PlaybackURLRequest asks for a signed playback URL. TierHint is advisory
// routing only; the video's stored required tier is always authoritative.
type PlaybackURLRequest struct {
	TierHint string `json:"tier_hint" validate:"omitempty,oneof=basic premium pro"`
}

// RefreshGrantRequest exchanges a refresh token for a replacement grant.
type RefreshGrantRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// SubmitAppealRequest disputes a moderation flag on a content item.
// The policy minimum reason length is enforced by the moderation bridge, not
// here, so the rejection carries the INVALID_APPEAL code rather than a
// generic validation error.
type SubmitAppealRequest struct {
	ContentID string    `json:"content_id" validate:"required,max=128"`
	Reason    string    `json:"reason" validate:"required,max=4000"`
	Violation Violation `json:"violation"`
}
