// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

// Package apperr defines the typed error taxonomy shared by all Casthouse
// services. Every failure a service can return carries a Kind (used to pick an
// HTTP status at the API boundary) and a stable machine-readable Code (used by
// clients to branch without parsing prose).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP status mapping and caller branching.
type Kind int

const (
	// KindUnknown is an unclassified internal failure.
	KindUnknown Kind = iota

	// KindNotFound means the referenced entity does not exist.
	KindNotFound

	// KindUnauthorized means the caller is not the owner or lacks the role.
	KindUnauthorized

	// KindForbidden means the caller's subscription tier is insufficient.
	KindForbidden

	// KindConflict means a state-transition precondition was violated.
	KindConflict

	// KindInvalidInput means the request failed schema or policy validation.
	KindInvalidInput

	// KindDependencyFailure means an external collaborator call failed.
	KindDependencyFailure
)

// Stable error codes returned in the API envelope. Clients branch on these,
// never on message text.
const (
	CodeNotFound            = "NOT_FOUND"
	CodeStreamNotFound      = "STREAM_NOT_FOUND"
	CodeVODNotFound         = "VOD_NOT_FOUND"
	CodeJobNotFound         = "JOB_NOT_FOUND"
	CodeAppealNotFound      = "APPEAL_NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeForbidden           = "FORBIDDEN"
	CodeConflict            = "CONFLICT"
	CodeAlreadyLive         = "ALREADY_LIVE"
	CodeStreamNotActive     = "STREAM_NOT_ACTIVE"
	CodeStreamNotEnded      = "STREAM_NOT_ENDED"
	CodeRecordingNotEnabled = "RECORDING_NOT_ENABLED"
	CodeVODAlreadyExists    = "VOD_ALREADY_EXISTS"
	CodeVODNotReady         = "VOD_NOT_READY"
	CodeKeyRotationDenied   = "KEY_ROTATION_DENIED"
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidAppeal       = "INVALID_APPEAL"
	CodeGrantExpired        = "GRANT_EXPIRED"
	CodeGrantInvalid        = "GRANT_INVALID"
	CodeRefreshConsumed     = "REFRESH_CONSUMED"
	CodeDependencyFailure   = "DEPENDENCY_FAILURE"
	CodeInternal            = "INTERNAL_ERROR"
)

// Error is the typed error returned by Casthouse services.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a typed error with an explicit kind and code.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds a typed error around an underlying cause.
func Wrap(kind Kind, code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// NotFound builds a KindNotFound error.
func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

// Unauthorized builds a KindUnauthorized error.
func Unauthorized(code, message string) *Error {
	return New(KindUnauthorized, code, message)
}

// Forbidden builds a KindForbidden error.
func Forbidden(code, message string) *Error {
	return New(KindForbidden, code, message)
}

// Conflict builds a KindConflict error.
func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// InvalidInput builds a KindInvalidInput error.
func InvalidInput(code, message string) *Error {
	return New(KindInvalidInput, code, message)
}

// Dependency builds a KindDependencyFailure error wrapping the collaborator failure.
func Dependency(code, message string, err error) *Error {
	return Wrap(KindDependencyFailure, code, message, err)
}

// From extracts the typed error from an error chain.
// Returns nil if err does not carry an *Error.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// CodeOf returns the stable code for an error, or CodeInternal when the error
// is not a typed apperr.Error.
func CodeOf(err error) string {
	if appErr := From(err); appErr != nil {
		return appErr.Code
	}
	return CodeInternal
}

// KindOf returns the kind for an error, or KindUnknown when untyped.
func KindOf(err error) Kind {
	if appErr := From(err); appErr != nil {
		return appErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to the HTTP status the API boundary should use.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindDependencyFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
