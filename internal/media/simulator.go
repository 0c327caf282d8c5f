// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package media

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/casthouse/casthouse/internal/models"
)

// Simulator is a deterministic in-process Processor for development and
// tests. It produces stable refs derived from its inputs and supports fault
// injection per operation.
type Simulator struct {
	mu sync.Mutex

	// Fail<Op>, when set, makes that operation return the error.
	FailFinalize      error
	FailThumbnails    error
	FailTranscription error
	FailHighlights    error

	// calls counts invocations per operation, for assertions.
	calls map[string]int
}

// NewSimulator returns a Simulator with no injected faults.
func NewSimulator() *Simulator {
	return &Simulator{calls: make(map[string]int)}
}

// Calls reports how often op was invoked.
func (s *Simulator) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *Simulator) record(op string) {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
}

// FinalizeRecording implements Processor.
func (s *Simulator) FinalizeRecording(ctx context.Context, recordingRef string) (*FinalizeResult, error) {
	s.record("finalize")
	if s.FailFinalize != nil {
		return nil, s.FailFinalize
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(recordingRef, ".mp4")
	return &FinalizeResult{
		StorageRef:  base + "-final.mp4",
		DurationSec: 3600,
	}, nil
}

// GenerateThumbnails implements Processor.
func (s *Simulator) GenerateThumbnails(ctx context.Context, storageRef string, count int) ([]string, error) {
	s.record("thumbnails")
	if s.FailThumbnails != nil {
		return nil, s.FailThumbnails
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	refs := make([]string, 0, count)
	for i := range count {
		refs = append(refs, fmt.Sprintf("%s.thumb.%d.jpg", storageRef, i))
	}
	return refs, nil
}

// Transcribe implements Processor.
func (s *Simulator) Transcribe(ctx context.Context, storageRef string) (string, error) {
	s.record("transcription")
	if s.FailTranscription != nil {
		return "", s.FailTranscription
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return storageRef + ".transcript.vtt", nil
}

// ExtractHighlights implements Processor.
func (s *Simulator) ExtractHighlights(ctx context.Context, storageRef, transcriptRef string) ([]models.HighlightMarker, error) {
	s.record("highlights")
	if s.FailHighlights != nil {
		return nil, s.FailHighlights
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Transcript-guided extraction yields labeled segments; raw-signal mode
	// yields a single coarse marker.
	if transcriptRef == "" {
		return []models.HighlightMarker{
			{StartSec: 0, EndSec: 30, Score: 0.5},
		}, nil
	}
	return []models.HighlightMarker{
		{StartSec: 120, EndSec: 150, Label: "peak chat activity", Score: 0.9},
		{StartSec: 1800, EndSec: 1845, Label: "topic shift", Score: 0.7},
	}, nil
}
