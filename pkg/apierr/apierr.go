// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

// Package apierr defines the structured error taxonomy returned by the
// credential issuance core. Every failure is per-request; none is fatal to
// the process.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a failure for callers and for HTTP mapping.
type Kind int

const (
	// KindNotFound means a referenced user, workspace, root, or node record
	// is absent. Not retryable.
	KindNotFound Kind = iota + 1
	// KindForbidden means policy computation yielded no grantable statement.
	// Not retryable.
	KindForbidden
	// KindInvalidTTL means the requested lifetime exceeds the node- or
	// share-imposed ceiling. The ceiling is reported in MaxTTL.
	KindInvalidTTL
	// KindUpstream means the storage node's issuance call failed. Network
	// failures may be retried once by the caller; policy rejections are
	// surfaced verbatim and must not be retried.
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindForbidden:
		return "Forbidden"
	case KindInvalidTTL:
		return "InvalidTTL"
	case KindUpstream:
		return "UpstreamError"
	default:
		return "Unknown"
	}
}

// HTTPStatus maps the kind to a response status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidTTL:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified per-request failure.
type Error struct {
	Kind    Kind
	Message string
	// MaxTTL carries the allowed ceiling for KindInvalidTTL.
	MaxTTL time.Duration
	// Err is the underlying cause, kept for diagnosis (e.g. the upstream
	// error body on KindUpstream).
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden returns a KindForbidden error.
func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// InvalidTTL returns a KindInvalidTTL error reporting the allowed ceiling.
func InvalidTTL(max time.Duration, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidTTL, Message: fmt.Sprintf(format, args...), MaxTTL: max}
}

// Upstream wraps a failed issuance call against a storage node.
func Upstream(err error, format string, args ...any) *Error {
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
