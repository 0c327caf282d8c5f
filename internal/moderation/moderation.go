// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package moderation bridges user appeals against moderation flags to an AI
// re-review capability and routes the outcome.
package moderation

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/casthouse/casthouse/internal/apperr"
	"github.com/casthouse/casthouse/internal/config"
	"github.com/casthouse/casthouse/internal/logging"
	"github.com/casthouse/casthouse/internal/metrics"
	"github.com/casthouse/casthouse/internal/models"
	"github.com/casthouse/casthouse/internal/store"
)

// Verdict is the AI re-review outcome for an appeal.
type Verdict struct {
	// Confidence that the original flag was wrongful, in [0,1].
	Confidence float64

	// Recommendation is a short machine-readable disposition hint.
	Recommendation string
}

// Reviewer is the AI capability that re-reviews a flagged item against the
// appellant's reasoning. Implementations must be deterministic for identical
// inputs so routing is reproducible.
type Reviewer interface {
	ReviewAppeal(ctx context.Context, violation models.Violation, reason string) (Verdict, error)
}

// Bridge processes appeals: policy checks, AI re-review, and routing.
type Bridge struct {
	store    *store.Store
	reviewer Reviewer
	cfg      config.ModerationConfig
}

// NewBridge builds an appeal bridge.
func NewBridge(st *store.Store, reviewer Reviewer, cfg config.ModerationConfig) *Bridge {
	return &Bridge{store: st, reviewer: reviewer, cfg: cfg}
}

// ProcessContentAppeal accepts an appeal, runs the AI re-review, and routes
// it. The reason-length policy is checked before any AI call; a too-short
// reason is rejected with INVALID_APPEAL and nothing is persisted.
//
// Routing: review confidence strictly above the configured threshold resolves
// the appeal automatically; anything else escalates to a human.
func (b *Bridge) ProcessContentAppeal(ctx context.Context, userID string, req *models.SubmitAppealRequest) (*models.ModerationAppeal, error) {
	if utf8.RuneCountInString(req.Reason) < b.cfg.MinReasonLength {
		metrics.AppealRouting.WithLabelValues("rejected").Inc()
		return nil, apperr.InvalidInput(apperr.CodeInvalidAppeal,
			fmt.Sprintf("appeal reason must be at least %d characters", b.cfg.MinReasonLength))
	}

	now := time.Now().UTC()
	appeal := &models.ModerationAppeal{
		ID:          uuid.NewString(),
		ContentID:   req.ContentID,
		UserID:      userID,
		Violation:   req.Violation,
		Reason:      req.Reason,
		Status:      models.AppealSubmitted,
		SubmittedAt: now,
	}
	if err := b.store.PutAppeal(ctx, appeal); err != nil {
		return nil, fmt.Errorf("persist appeal: %w", err)
	}

	reviewStart := time.Now()
	verdict, err := b.reviewer.ReviewAppeal(ctx, req.Violation, req.Reason)
	metrics.AppealReviewDuration.Observe(time.Since(reviewStart).Seconds())
	if err != nil {
		// The appeal is recorded; the caller can see it in submitted state
		// even though this request fails.
		return nil, apperr.Dependency(apperr.CodeDependencyFailure, "appeal review unavailable", err)
	}

	status := models.AppealHumanReviewRequired
	if verdict.Confidence > b.cfg.AutoResolveThreshold {
		status = models.AppealAutoResolved
	}

	reviewed := time.Now().UTC()
	routed, err := b.store.UpdateAppeal(ctx, appeal.ID, func(a *models.ModerationAppeal) error {
		a.Status = status
		a.ReviewConfidence = verdict.Confidence
		a.ReviewRecommendation = verdict.Recommendation
		a.ReviewedAt = &reviewed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("route appeal: %w", err)
	}
	metrics.AppealRouting.WithLabelValues(string(status)).Inc()

	logging.Ctx(ctx).Info().
		Str("appeal_id", routed.ID).
		Str("content_id", routed.ContentID).
		Float64("review_confidence", verdict.Confidence).
		Str("status", string(routed.Status)).
		Msg("Appeal processed")
	return routed, nil
}

// Appeal returns an appeal by ID. Polling never re-triggers review.
func (b *Bridge) Appeal(ctx context.Context, appealID string) (*models.ModerationAppeal, error) {
	appeal, err := b.store.GetAppeal(ctx, appealID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, apperr.NotFound(apperr.CodeAppealNotFound, "appeal not found")
		}
		return nil, err
	}
	return appeal, nil
}
