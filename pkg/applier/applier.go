/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package applier

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/pkg/event"
	"github.com/sap/portal-integration-runtime/pkg/portal"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// Options are creation options for an Applier.
type Options struct {
	// Number of entities per bulk upsert request. If unspecified, 20 is assumed.
	BatchSize *int
}

// Applier reconciles a kind's desired entities against the portal catalog:
// it resolves search-query relations, orders upserts along the relation
// graph, and computes and applies the deletion diff.
type Applier struct {
	client    *portal.Client
	batchSize int
}

// NewApplier creates a new Applier on top of the given portal client.
func NewApplier(client *portal.Client, options Options) *Applier {
	if options.BatchSize == nil {
		options.BatchSize = ref(20)
	}
	return &Applier{
		client:    client,
		batchSize: *options.BatchSize,
	}
}

// Result is the aggregated outcome of an apply or reconcile phase.
type Result struct {
	Created []types.EntityKey
	Updated []types.EntityKey
	Deleted []types.EntityKey
	Failed  []types.EntityKey
	// Per-entity diagnostics; never fatal for the surrounding resync.
	Errors []error
}

func (r *Result) fail(key types.EntityKey, err error) {
	r.Failed = append(r.Failed, key)
	r.Errors = append(r.Errors, err)
}

// Upsert applies the given entities to the portal, honoring the app
// config's merge and missing-relation settings. Entities are ordered so
// that relation targets are written before the entities referencing them;
// cyclic sub-components are excluded and reported. Per-entity failures are
// collected in the result. If the surrounding event is aborted, the
// current batch is finished and types.ErrAborted is returned alongside the
// partial result.
func (a *Applier) Upsert(ctx context.Context, config *types.PortAppConfig, entities []*types.Entity) (*Result, error) {
	log := logr.FromContextOrDiscard(ctx)
	result := &Result{}

	entities = a.resolveRelations(ctx, entities, result)

	ordered, cycles := orderByRelations(entities)
	for _, cycle := range cycles {
		log.Error(cycle, "excluding cyclic entities from upsert")
		for _, key := range cycle.Keys {
			result.Failed = append(result.Failed, key)
		}
		result.Errors = append(result.Errors, cycle)
	}

	flags := portal.UpsertFlags{
		Merge:                        config.EnableMergeEntity,
		CreateMissingRelatedEntities: config.CreateMissingRelatedEntities,
	}

	// upserts whose relation targets were not found are retried once after
	// everything else has been written (unless the portal creates stubs)
	var deferred []*types.Entity

	for _, batch := range batchesByBlueprint(ordered, a.batchSize) {
		if event.Aborted(ctx) {
			return result, types.ErrAborted
		}
		deferred = append(deferred, a.upsertBatch(ctx, batch, flags, true, result)...)
	}

	if len(deferred) > 0 {
		log.V(1).Info("retrying upserts with previously missing relation targets", "count", len(deferred))
		for _, batch := range batchesByBlueprint(deferred, a.batchSize) {
			if event.Aborted(ctx) {
				return result, types.ErrAborted
			}
			a.upsertBatch(ctx, batch, flags, false, result)
		}
	}

	return result, nil
}

// upsertBatch writes one single-blueprint batch; it returns the entities
// rejected for missing relation targets if deferRetry is set (and stub
// creation is off), and records all other per-entity failures.
func (a *Applier) upsertBatch(ctx context.Context, batch []*types.Entity, flags portal.UpsertFlags, deferRetry bool, result *Result) []*types.Entity {
	blueprint := batch[0].Blueprint
	response, err := a.client.UpsertEntitiesBulk(ctx, blueprint, batch, flags)
	if err != nil {
		for _, entity := range batch {
			result.fail(entity.Key(), errors.Wrapf(err, "error upserting entity %s", entity.Key()))
		}
		return nil
	}

	byIdentifier := make(map[string]*types.Entity, len(batch))
	for _, entity := range batch {
		byIdentifier[entity.Identifier] = entity
	}

	for _, identifier := range response.Created {
		result.Created = append(result.Created, types.EntityKey{Blueprint: blueprint, Identifier: identifier})
	}
	for _, identifier := range response.Updated {
		result.Updated = append(result.Updated, types.EntityKey{Blueprint: blueprint, Identifier: identifier})
	}

	var deferred []*types.Entity
	for _, failure := range response.Failed {
		key := types.EntityKey{Blueprint: blueprint, Identifier: failure.Identifier}
		if deferRetry && !flags.CreateMissingRelatedEntities && failure.Code == portal.BulkFailureCodeMissingRelation {
			if entity, ok := byIdentifier[failure.Identifier]; ok {
				deferred = append(deferred, entity)
				continue
			}
		}
		result.fail(key, errors.Errorf("upsert of entity %s rejected: %s", key, failure.Message))
	}
	return deferred
}

// batchesByBlueprint cuts an ordered entity list into bulk-upsert batches,
// breaking on blueprint changes so that each batch targets a single bulk
// endpoint while the overall order is preserved.
func batchesByBlueprint(entities []*types.Entity, size int) [][]*types.Entity {
	var batches [][]*types.Entity
	var batch []*types.Entity
	for _, entity := range entities {
		if len(batch) > 0 && (batch[0].Blueprint != entity.Blueprint || len(batch) >= size) {
			batches = append(batches, batch)
			batch = nil
		}
		batch = append(batch, entity)
	}
	if len(batch) > 0 {
		batches = append(batches, batch)
	}
	return batches
}

func ref[T any](x T) *T {
	return &x
}
