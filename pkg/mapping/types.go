/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package mapping

import (
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// Classification of a processed record (or of one of its items, when the
// resource config splits records).
type Classification string

const (
	// The record passed the selector and was mapped to an entity.
	ClassificationPassed Classification = "passed_selector"
	// The record failed the selector; at most a shallow entity is kept for
	// deletion consideration.
	ClassificationFailedSelector Classification = "failed_selector"
	// Expression evaluation failed on the selector or a required field.
	ClassificationMisconfigured Classification = "misconfigured"
)

// Result is the aggregated outcome of processing a batch of raw records
// against one resource config.
type Result struct {
	// Entities that passed the selector and are parseable; upsert targets.
	Entities []*types.Entity
	// Keys of records that failed the selector but whose identifier and
	// blueprint could still be evaluated. They are never upserted; they
	// only shield previously-ingested entities from deletion logic
	// misclassification and mark records still present upstream.
	FailedKeys []types.EntityKey
	// Per-entity diagnostics (types.MappingError values).
	Errors []error
	// Count of misconfigured records/items.
	Misconfigured int
	// Count of filtered (failed-selector) records/items.
	Filtered int
}

func (r *Result) merge(other *recordResult) {
	r.Entities = append(r.Entities, other.entities...)
	r.FailedKeys = append(r.FailedKeys, other.failedKeys...)
	r.Errors = append(r.Errors, other.errors...)
	r.Misconfigured += other.misconfigured
	r.Filtered += other.filtered
}

type recordResult struct {
	entities      []*types.Entity
	failedKeys    []types.EntityKey
	errors        []error
	misconfigured int
	filtered      int
}
