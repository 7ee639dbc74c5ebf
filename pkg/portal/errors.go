/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package portal

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sap/portal-integration-runtime/pkg/types"
)

// APIError is a non-2xx response from the portal.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
	// Server-suggested delay from a Retry-After header, if any.
	RetryAfter *time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal responded %d to %s %s: %s", e.StatusCode, e.Method, e.Path, e.Message)
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict
}

func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func (e *APIError) IsServer() bool {
	return e.StatusCode >= 500
}

// IsNotFound reports whether err is a portal 404.
func IsNotFound(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.IsNotFound()
}

// IsConflict reports whether err is a portal 409.
func IsConflict(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.IsConflict()
}

func asAPIError(err error) (*APIError, bool) {
	for ; err != nil; err = unwrap(err) {
		if apiErr, ok := err.(*APIError); ok {
			return apiErr, true
		}
	}
	return nil, false
}

func unwrap(err error) error {
	type wrapper interface {
		Unwrap() error
	}
	if w, ok := err.(wrapper); ok {
		return w.Unwrap()
	}
	return nil
}

// retriable reports whether a failed request may be re-issued: transport
// errors, rate limits and transient server errors, but never client errors
// (auth errors are handled by the one-shot token refresh before ending up
// here).
func retriable(err error) bool {
	apiErr, ok := asAPIError(err)
	if !ok {
		// transport error (connection refused, timeout, ...)
		return true
	}
	return apiErr.IsRateLimit() || apiErr.IsServer()
}

// classify maps an APIError into the error taxonomy surfaced to callers.
func classify(err error) error {
	apiErr, ok := asAPIError(err)
	if !ok {
		return types.NewRetriableError(err, nil)
	}
	switch {
	case apiErr.IsAuth():
		return &types.AuthError{Err: apiErr}
	case apiErr.IsRateLimit():
		return types.NewRetriableError(apiErr, apiErr.RetryAfter)
	case apiErr.IsServer():
		return types.NewRetriableError(apiErr, nil)
	default:
		return apiErr
	}
}
