/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package applier

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/sap/portal-integration-runtime/pkg/types"
)

// resolveRelations replaces search-query relation values with the matching
// entity's identifier. A query matching exactly one entity resolves to that
// identifier; zero matches resolve to null (with a warning); multiple
// matches or a failing search fail the entity and exclude it from the
// upsert. Entities are copied before mutation.
func (a *Applier) resolveRelations(ctx context.Context, entities []*types.Entity, result *Result) []*types.Entity {
	log := logr.FromContextOrDiscard(ctx)

	resolved := make([]*types.Entity, 0, len(entities))
	for _, entity := range entities {
		if !hasSearchQueryRelations(entity) {
			resolved = append(resolved, entity)
			continue
		}
		entity = entity.DeepCopy()
		failed := false
		for name, value := range entity.Relations {
			target, err := a.resolveRelationValue(ctx, entity.Key(), name, value)
			if err != nil {
				result.fail(entity.Key(), err)
				failed = true
				break
			}
			if target == nil {
				log.Info("relation search query matched no entity", "entity", entity.Key(), "relation", name)
			}
			entity.Relations[name] = target
		}
		if !failed {
			resolved = append(resolved, entity)
		}
	}
	return resolved
}

func (a *Applier) resolveRelationValue(ctx context.Context, key types.EntityKey, name string, value any) (any, error) {
	if types.IsSearchQuery(value) {
		return a.searchSingle(ctx, key, name, value.(map[string]any))
	}
	list, ok := value.([]any)
	if !ok {
		return value, nil
	}
	targets := make([]any, len(list))
	for i, elem := range list {
		if !types.IsSearchQuery(elem) {
			targets[i] = elem
			continue
		}
		target, err := a.searchSingle(ctx, key, name, elem.(map[string]any))
		if err != nil {
			return nil, err
		}
		targets[i] = target
	}
	return targets, nil
}

// searchSingle resolves one search query to at most one identifier.
func (a *Applier) searchSingle(ctx context.Context, key types.EntityKey, name string, query map[string]any) (any, error) {
	matches, err := a.client.SearchEntities(ctx, query)
	if err != nil {
		return nil, &types.UnresolvedRelationError{Entity: key, Relation: name, Err: err}
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0].Identifier, nil
	default:
		return nil, &types.UnresolvedRelationError{Entity: key, Relation: name, Matches: len(matches)}
	}
}

func hasSearchQueryRelations(entity *types.Entity) bool {
	for _, value := range entity.Relations {
		if types.IsSearchQuery(value) {
			return true
		}
		if list, ok := value.([]any); ok {
			for _, elem := range list {
				if types.IsSearchQuery(elem) {
					return true
				}
			}
		}
	}
	return false
}
