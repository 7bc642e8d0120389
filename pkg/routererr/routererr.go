// Package routererr defines the sentinel error taxonomy a dispatch can
// fail with, so callers (the HTTP gateway boundary) can classify a failure with errors.Is instead of string matching,
// the way the teacher's pkg/client wraps transport failures in named
// sentinels.
package routererr

import "errors"

var (
	// ErrInvalidRequest means the inbound request body or headers
	// could not be parsed into a dispatchable request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoWorkersAvailable means the registry had no selectable
	// worker of the required kind when Select was called.
	ErrNoWorkersAvailable = errors.New("no workers available")

	// ErrUpstreamFailure means the last dispatch attempt failed at the
	// transport level or the worker answered with a retryable (5xx)
	// status.
	ErrUpstreamFailure = errors.New("upstream failure")

	// ErrTimeout means the request's deadline elapsed before a
	// dispatch attempt completed.
	ErrTimeout = errors.New("request timeout")

	// ErrCircuitOpen means the breaker refused admission to the worker
	// (or prefill/decode pair) selected on the last dispatch attempt.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrConfigInvalid means a router was asked to dispatch with a
	// configuration that cannot produce a valid request.
	ErrConfigInvalid = errors.New("invalid router configuration")
)
