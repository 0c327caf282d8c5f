// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package metrics provides Prometheus instrumentation for the Casthouse
// server: stream lifecycle transitions, VOD pipeline stages, playback grant
// issuance, moderation appeal routing, and API request metrics. Metrics are
// exposed at /metrics in Prometheus text format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream lifecycle metrics
	LiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "casthouse_live_streams",
			Help: "Number of stream sessions currently live",
		},
	)

	StreamTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casthouse_stream_transitions_total",
			Help: "Total stream lifecycle transitions",
		},
		[]string{"transition", "result"}, // transition: "start", "end"; result: "ok", "rejected"
	)

	// VOD pipeline metrics
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casthouse_pipeline_stage_duration_seconds",
			Help:    "Duration of VOD pipeline stages in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 180, 600}, // media stages can take minutes
		},
		[]string{"stage"},
	)

	PipelineStageResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casthouse_pipeline_stage_results_total",
			Help: "Total VOD pipeline stage outcomes",
		},
		[]string{"stage", "status"}, // status: "succeeded", "failed", "skipped"
	)

	PipelineJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casthouse_pipeline_jobs_total",
			Help: "Total VOD pipeline runs by terminal status",
		},
		[]string{"status"}, // "completed", "failed"
	)

	PipelineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "casthouse_pipeline_queue_depth",
			Help: "Current number of queued pipeline jobs on this instance",
		},
	)

	// Playback grant metrics
	GrantsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casthouse_grants_issued_total",
			Help: "Total playback grants issued",
		},
		[]string{"path"}, // "issue", "refresh"
	)

	GrantsRefused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casthouse_grants_refused_total",
			Help: "Total refused playback grant requests",
		},
		[]string{"reason"}, // "tier", "not_found", "expired", "consumed"
	)

	GrantValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casthouse_grant_validations_total",
			Help: "Total edge playback-token validations",
		},
		[]string{"result"}, // "valid", "invalid"
	)

	// Moderation appeal metrics
	AppealRouting = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casthouse_appeal_routing_total",
			Help: "Total moderation appeal routing decisions",
		},
		[]string{"outcome"}, // "auto_resolved", "human_review_required", "rejected"
	)

	AppealReviewDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "casthouse_appeal_review_duration_seconds",
			Help:    "Duration of AI appeal re-review calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casthouse_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "casthouse_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Circuit breaker metrics
	BreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casthouse_breaker_state_changes_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"breaker", "to_state"},
	)
)

// RecordStreamTransition records a lifecycle transition attempt and keeps the
// live-streams gauge consistent with successful transitions.
func RecordStreamTransition(transition string, ok bool) {
	result := "ok"
	if !ok {
		result = "rejected"
	}
	StreamTransitions.WithLabelValues(transition, result).Inc()

	if !ok {
		return
	}
	switch transition {
	case "start":
		LiveStreams.Inc()
	case "end":
		LiveStreams.Dec()
	}
}

// RecordStage records a pipeline stage outcome with its duration.
func RecordStage(stage, status string, duration time.Duration) {
	PipelineStageResults.WithLabelValues(stage, status).Inc()
	PipelineStageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
