/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrAborted is returned by long-running operations when the surrounding
// event's abort signal was raised; the orchestrator ends the event cleanly.
var ErrAborted = errors.New("abort requested")

// RetriableError wraps an error that callers may retry, optionally carrying
// a server-suggested delay (e.g. from a Retry-After header).
type RetriableError struct {
	err        error
	retryAfter *time.Duration
}

func NewRetriableError(err error, retryAfter *time.Duration) RetriableError {
	return RetriableError{err: err, retryAfter: retryAfter}
}

func (e RetriableError) Error() string {
	return e.err.Error()
}

func (e RetriableError) Unwrap() error {
	return e.err
}

func (e RetriableError) Cause() error {
	return e.err
}

func (e RetriableError) RetryAfter() *time.Duration {
	return e.retryAfter
}

// ConfigError indicates invalid startup configuration; fatal (exit code 3).
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("configuration error: %s", e.Err)
	}
	return fmt.Sprintf("configuration error for %s: %s", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// AuthError indicates the portal rejected the integration's credentials.
// Fatal unless recoverable by a token refresh.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication error: %s", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// MappingError is a per-entity expression evaluation failure; it classifies
// the affected record as misconfigured and never halts the resync.
type MappingError struct {
	Kind  string
	Field string
	Expr  string
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping error for kind %s, field %s (expression %q): %s", e.Kind, e.Field, e.Expr, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

// CyclicDependencyError reports a cyclic sub-component of the entity
// relation graph; the listed entities are excluded from the upsert phase.
type CyclicDependencyError struct {
	Keys []EntityKey
}

func (e *CyclicDependencyError) Error() string {
	keys := make([]string, len(e.Keys))
	for i, key := range e.Keys {
		keys[i] = key.String()
	}
	return fmt.Sprintf("cyclic dependency between entities: %s", strings.Join(keys, ", "))
}

// DeletionThresholdExceededError aborts the delete phase of a
// reconciliation pass; upserts are preserved.
type DeletionThresholdExceededError struct {
	ToDelete  int
	Existing  int
	Threshold float64
}

func (e *DeletionThresholdExceededError) Error() string {
	return fmt.Sprintf("refusing to delete %d of %d entities (threshold %.2f)", e.ToDelete, e.Existing, e.Threshold)
}

// UnresolvedRelationError reports a relation whose target could not be
// resolved (missing literal target, or a search query matching multiple
// entities).
type UnresolvedRelationError struct {
	Entity   EntityKey
	Relation string
	Matches  int
	Err      error
}

func (e *UnresolvedRelationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unresolved relation %s of entity %s: %s", e.Relation, e.Entity, e.Err)
	}
	return fmt.Sprintf("unresolved relation %s of entity %s: search query matched %d entities", e.Relation, e.Entity, e.Matches)
}

func (e *UnresolvedRelationError) Unwrap() error {
	return e.Err
}

// AdapterError wraps an error raised by integration-supplied code (resync
// streams, webhook processors, action executors).
type AdapterError struct {
	Kind string
	Err  error
}

func (e *AdapterError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("adapter error: %s", e.Err)
	}
	return fmt.Sprintf("adapter error for kind %s: %s", e.Kind, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}
