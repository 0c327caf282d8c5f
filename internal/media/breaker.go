// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package media

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/logging"
	"github.com/casthouse/casthouse/internal/metrics"
	"github.com/casthouse/casthouse/internal/models"
)

// BreakerProcessor wraps a Processor with a circuit breaker so a flapping
// media backend fails fast instead of stalling every pipeline worker on
// timeouts. Rejected and failed calls surface as DEPENDENCY_FAILURE.
//
// The breaker uses real time for its interval and timeout calculations;
// tests exercise the wrapped Processor directly.
type BreakerProcessor struct {
	inner Processor
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerProcessor wraps inner with a circuit breaker.
// Opens after a 60% failure rate over at least 5 requests; retries half-open
// after 30 seconds.
func NewBreakerProcessor(inner Processor) *BreakerProcessor {
	const cbName = "media-backend"

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Media backend circuit breaker state change")
			metrics.BreakerStateChanges.WithLabelValues(name, to.String()).Inc()
		},
	})

	return &BreakerProcessor{inner: inner, cb: cb}
}

// execute runs fn under the breaker and classifies failures.
func execute[T any](b *BreakerProcessor, op string, fn func() (T, error)) (T, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, apperr.Dependency(apperr.CodeDependencyFailure,
				"media backend unavailable", err)
		}
		return zero, apperr.Dependency(apperr.CodeDependencyFailure,
			"media backend "+op+" failed", err)
	}
	return result.(T), nil
}

// FinalizeRecording implements Processor.
func (b *BreakerProcessor) FinalizeRecording(ctx context.Context, recordingRef string) (*FinalizeResult, error) {
	return execute(b, "finalize", func() (*FinalizeResult, error) {
		return b.inner.FinalizeRecording(ctx, recordingRef)
	})
}

// GenerateThumbnails implements Processor.
func (b *BreakerProcessor) GenerateThumbnails(ctx context.Context, storageRef string, count int) ([]string, error) {
	return execute(b, "thumbnails", func() ([]string, error) {
		return b.inner.GenerateThumbnails(ctx, storageRef, count)
	})
}

// Transcribe implements Processor.
func (b *BreakerProcessor) Transcribe(ctx context.Context, storageRef string) (string, error) {
	return execute(b, "transcription", func() (string, error) {
		return b.inner.Transcribe(ctx, storageRef)
	})
}

// ExtractHighlights implements Processor.
func (b *BreakerProcessor) ExtractHighlights(ctx context.Context, storageRef, transcriptRef string) ([]models.HighlightMarker, error) {
	return execute(b, "highlights", func() ([]models.HighlightMarker, error) {
		return b.inner.ExtractHighlights(ctx, storageRef, transcriptRef)
	})
}
