// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package services

import (
	"context"
	"errors"
)

// JobRunner is the blocking worker-pool entry point of the conversion
// pipeline. Satisfied by *pipeline.Service.
type JobRunner interface {
	Run(ctx context.Context) error
}

// PipelineService runs the VOD conversion workers under supervision. A panic
// in a worker surfaces as a service failure and suture restarts the pool.
type PipelineService struct {
	runner JobRunner
}

// NewPipelineService wraps the pipeline worker pool as a supervised service.
func NewPipelineService(runner JobRunner) *PipelineService {
	return &PipelineService{runner: runner}
}

// Serve implements suture.Service.
func (p *PipelineService) Serve(ctx context.Context) error {
	err := p.runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return err
}

// String identifies the service in supervisor logs.
func (p *PipelineService) String() string {
	return "pipeline-workers"
}
