// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package media abstracts the external media-processing backend used by the
// VOD pipeline: recording finalization, thumbnail generation, transcription,
// and highlight extraction.
package media

import (
	"context"

	"github.com/casthouse/casthouse/internal/models"
)

// FinalizeResult is the outcome of sealing a raw recording into a playable asset.
type FinalizeResult struct {
	// StorageRef locates the finalized asset.
	StorageRef string

	// DurationSec is the measured asset duration.
	DurationSec float64
}

// Processor is the media backend capability consumed by the pipeline.
// Implementations must be safe for concurrent use; the pipeline runs multiple
// workers against one Processor.
type Processor interface {
	// FinalizeRecording converts a sealed recording artifact into a playable
	// VOD asset.
	FinalizeRecording(ctx context.Context, recordingRef string) (*FinalizeResult, error)

	// GenerateThumbnails produces count thumbnail image refs for an asset.
	GenerateThumbnails(ctx context.Context, storageRef string, count int) ([]string, error)

	// Transcribe produces a transcript ref for an asset.
	Transcribe(ctx context.Context, storageRef string) (string, error)

	// ExtractHighlights finds highlight segments. transcriptRef may be empty,
	// in which case extraction runs in raw-signal mode on audio/video features
	// alone and typically yields coarser markers.
	ExtractHighlights(ctx context.Context, storageRef, transcriptRef string) ([]models.HighlightMarker, error)
}
