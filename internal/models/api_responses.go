// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package models

import (
	"time"
)

// APIResponse is the standardized response wrapper used by all HTTP endpoints.
//
// Status field values:
//   - "success": Request completed successfully, see Data field
//   - "error": Request failed, see Error field for details
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {
//	    "code": "STREAM_NOT_ACTIVE",
//	    "message": "stream is not currently live"
//	  },
//	  "metadata": {"timestamp": "2026-08-29T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// APIError carries structured error details. Code is the stable
// machine-readable taxonomy key (see the apperr package); Message is
// free-text and must never be parsed by clients.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// StreamKeyResponse returns the ingest secret to the session owner. This is
// the only place the key appears in an API payload.
type StreamKeyResponse struct {
	Stream    *StreamSession `json:"stream"`
	StreamKey string         `json:"stream_key"`
}

// ConversionResponse is returned by a create-VOD-from-stream request: the VOD
// record plus the pollable job handle. The HTTP caller is never blocked for
// the duration of media processing.
type ConversionResponse struct {
	VOD *VOD         `json:"vod"`
	Job *PipelineJob `json:"job"`
}
