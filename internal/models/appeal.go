// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package models

import "time"

// AppealStatus is the state of a moderation appeal.
type AppealStatus string

const (
	// AppealSubmitted means the appeal was accepted and awaits AI re-review.
	AppealSubmitted AppealStatus = "submitted"

	// AppealAIReviewed means the AI capability returned a verdict but
	// routing has not been applied yet.
	AppealAIReviewed AppealStatus = "ai_reviewed"

	// AppealAutoResolved means AI confidence of a wrongful flag exceeded the
	// configured threshold and the content was reinstated automatically.
	AppealAutoResolved AppealStatus = "auto_resolved"

	// AppealHumanReviewRequired means the appeal was escalated to a human.
	AppealHumanReviewRequired AppealStatus = "human_review_required"
)

// Violation is the originating moderation violation record an appeal disputes.
type Violation struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Severity   string  `json:"severity"`
}

// ModerationAppeal tracks one appeal through AI re-review and routing.
// Re-running the AI review on the same violation+reason input yields the same
// routing decision; polling an appeal never re-triggers review.
type ModerationAppeal struct {
	ID        string `json:"appeal_id"`
	ContentID string `json:"content_id"`
	UserID    string `json:"user_id"`

	Violation Violation `json:"violation"`
	Reason    string    `json:"reason"`

	Status AppealStatus `json:"status"`

	// ReviewConfidence is the AI's confidence that the original flag was
	// wrongful. Populated after review.
	ReviewConfidence     float64 `json:"review_confidence,omitempty"`
	ReviewRecommendation string  `json:"review_recommendation,omitempty"`

	SubmittedAt time.Time  `json:"submitted_at"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
}
