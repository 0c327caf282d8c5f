// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package moderation

import (
	"context"
	"strings"

	"github.com/casthouse/casthouse/internal/models"
)

// RuleReviewer is a deterministic in-process Reviewer for development and
// tests. It estimates wrongful-flag confidence from the original detection
// confidence and the substance of the appeal reason. Identical inputs always
// produce identical verdicts.
type RuleReviewer struct {
	// Fail, when set, makes every review return the error.
	Fail error
}

// ReviewAppeal implements Reviewer.
func (r *RuleReviewer) ReviewAppeal(ctx context.Context, violation models.Violation, reason string) (Verdict, error) {
	if r.Fail != nil {
		return Verdict{}, r.Fail
	}
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}

	// A weak original detection is the strongest signal the flag was wrong.
	confidence := 1.0 - violation.Confidence

	// Substantive reasons (by crude length proxy) shift the estimate up a
	// little; severity shifts it down.
	if len(strings.Fields(reason)) >= 10 {
		confidence += 0.1
	}
	if violation.Severity == "high" {
		confidence -= 0.15
	}

	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	recommendation := "uphold_flag"
	if confidence >= 0.5 {
		recommendation = "reinstate_content"
	}
	return Verdict{Confidence: confidence, Recommendation: recommendation}, nil
}
