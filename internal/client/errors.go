// Tidegate - Resilient API Access Layer for the BGAPP Ocean Data Portal
// Copyright 2026 Arcasa Developing
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/arcasadev/tidegate

package client

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// CircuitOpenError reports that the origin's circuit breaker is open and
// the request was failed fast without any network attempt.
type CircuitOpenError struct {
	Origin string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for origin %s", e.Origin)
}

// TimeoutError reports that an attempt exceeded its adaptive deadline.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out after %s", e.URL, e.Timeout)
}

// HTTPError reports a response with a non-2xx status. Body holds a
// truncated snippet of the response body for diagnostics.
type HTTPError struct {
	Status int
	URL    string
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request to %s failed with status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("request to %s failed with status %d: %s", e.URL, e.Status, e.Body)
}

// NetworkError reports a connection-level failure before any response
// was received.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// retryable classifies an error as transient. Timeouts, connection
// failures, 5xx, and 429 are worth retrying; every other 4xx is a
// permanent failure and surfaces immediately.
func retryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status >= http.StatusInternalServerError ||
			httpErr.Status == http.StatusTooManyRequests
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return true
	}
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// outcomeLabel maps an error to the metrics outcome label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case isCircuitOpen(err):
		return "circuit_open"
	case isTimeout(err):
		return "timeout"
	case isHTTPError(err):
		return "http_error"
	case isNetworkError(err):
		return "network_error"
	default:
		return "error"
	}
}

func isNetworkError(err error) bool {
	var e *NetworkError
	return errors.As(err, &e)
}

func isCircuitOpen(err error) bool {
	var e *CircuitOpenError
	return errors.As(err, &e)
}

func isTimeout(err error) bool {
	var e *TimeoutError
	return errors.As(err, &e)
}

func isHTTPError(err error) bool {
	var e *HTTPError
	return errors.As(err, &e)
}
