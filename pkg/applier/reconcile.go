/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package applier

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/pkg/errors"
	"github.com/sap/go-generics/sets"

	"github.com/sap/portal-integration-runtime/pkg/event"
	"github.com/sap/portal-integration-runtime/pkg/portal"
	"github.com/sap/portal-integration-runtime/pkg/types"
)

// Reconcile deletes the entities of one blueprint that this integration
// wrote in an earlier pass but that the current pass no longer produces.
// Identifiers in keep are the entities upserted in this pass; identifiers
// in stillUpstream belong to records that still exist upstream but failed
// the selector, and are equally protected from deletion. If the computed
// deletion ratio exceeds the app config's deletion threshold, the delete
// phase is skipped and a DeletionThresholdExceededError is recorded;
// earlier upserts are unaffected.
func (a *Applier) Reconcile(ctx context.Context, config *types.PortAppConfig, blueprint string, keep []types.EntityKey, stillUpstream []types.EntityKey) (*Result, error) {
	log := logr.FromContextOrDiscard(ctx)
	result := &Result{}

	existing, err := a.client.SearchOwnedEntities(ctx, blueprint)
	if err != nil {
		return result, errors.Wrapf(err, "error fetching existing entities of blueprint %s", blueprint)
	}

	protected := sets.New[string]()
	for _, key := range keep {
		if key.Blueprint == blueprint {
			sets.Add(protected, key.Identifier)
		}
	}
	for _, key := range stillUpstream {
		if key.Blueprint == blueprint {
			sets.Add(protected, key.Identifier)
		}
	}

	var toDelete []string
	for _, entity := range existing {
		if !sets.Contains(protected, entity.Identifier) {
			toDelete = append(toDelete, entity.Identifier)
		}
	}
	if len(toDelete) == 0 {
		return result, nil
	}

	if config.EntityDeletionThreshold != nil {
		ratio := float64(len(toDelete)) / float64(max(len(existing), 1))
		if ratio > *config.EntityDeletionThreshold {
			err := &types.DeletionThresholdExceededError{
				ToDelete:  len(toDelete),
				Existing:  len(existing),
				Threshold: *config.EntityDeletionThreshold,
			}
			log.Error(err, "skipping delete phase", "blueprint", blueprint)
			result.Errors = append(result.Errors, err)
			return result, nil
		}
	}

	a.deleteIdentifiers(ctx, blueprint, toDelete, config.DeleteDependentEntities, result)
	if event.Aborted(ctx) {
		return result, types.ErrAborted
	}
	return result, nil
}

// Delete removes the given entities from the portal; the targeted path
// used by live-event processing.
func (a *Applier) Delete(ctx context.Context, config *types.PortAppConfig, entities []*types.Entity) *Result {
	result := &Result{}
	byBlueprint := map[string][]string{}
	for _, entity := range entities {
		byBlueprint[entity.Blueprint] = append(byBlueprint[entity.Blueprint], entity.Identifier)
	}
	for blueprint, identifiers := range byBlueprint {
		a.deleteIdentifiers(ctx, blueprint, identifiers, config.DeleteDependentEntities, result)
	}
	return result
}

// deleteIdentifiers deletes in no particular order; a conflict caused by a
// dangling relation with cascade disabled is recorded and skipped.
func (a *Applier) deleteIdentifiers(ctx context.Context, blueprint string, identifiers []string, deleteDependents bool, result *Result) {
	for _, identifier := range identifiers {
		if event.Aborted(ctx) {
			return
		}
		key := types.EntityKey{Blueprint: blueprint, Identifier: identifier}
		err := a.client.DeleteEntity(ctx, blueprint, identifier, deleteDependents)
		switch {
		case err == nil, portal.IsNotFound(err):
			result.Deleted = append(result.Deleted, key)
		case portal.IsConflict(err):
			result.fail(key, errors.Wrapf(err, "entity %s still has dependents", key))
		default:
			result.fail(key, err)
		}
	}
}
