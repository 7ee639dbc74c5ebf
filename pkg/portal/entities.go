/*
SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and portal-integration-runtime contributors
SPDX-License-Identifier: Apache-2.0
*/

package portal

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/sap/portal-integration-runtime/pkg/types"
)

// UpsertFlags control how the portal applies a bulk upsert.
type UpsertFlags struct {
	// Deep-merge properties/relations into the existing entity instead of
	// replacing it.
	Merge bool
	// Let the portal create stubs for relation targets that do not exist.
	CreateMissingRelatedEntities bool
}

// BulkFailure is a per-entity failure within an otherwise accepted bulk
// upsert.
type BulkFailure struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

const (
	// BulkFailureCodeMissingRelation marks upserts rejected because a
	// relation target does not exist (and stub creation was not enabled).
	BulkFailureCodeMissingRelation = "missing_related_entity"
)

// BulkUpsertResult reports the outcome of a bulk upsert.
type BulkUpsertResult struct {
	Created []string      `json:"created,omitempty"`
	Updated []string      `json:"updated,omitempty"`
	Failed  []BulkFailure `json:"failed,omitempty"`
}

// SearchEntities runs a search query against the portal catalog.
func (c *Client) SearchEntities(ctx context.Context, query map[string]any) ([]*types.Entity, error) {
	var response struct {
		Entities []*types.Entity `json:"entities"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/entities/search", nil, map[string]any{"query": query}, &response, requestOptions{forceRetry: true}); err != nil {
		return nil, errors.Wrap(err, "error searching entities")
	}
	return response.Entities, nil
}

// SearchOwnedEntities returns the entities of the given blueprint that were
// last written under this client's (integration, feature) label.
func (c *Client) SearchOwnedEntities(ctx context.Context, blueprint string) ([]*types.Entity, error) {
	rules := append([]map[string]any{
		{"property": "$blueprint", "operator": "=", "value": blueprint},
	}, c.OwnershipRules()...)
	return c.SearchEntities(ctx, map[string]any{"combinator": "and", "rules": rules})
}

// UpsertEntitiesBulk creates or updates a batch of entities of one
// blueprint. Per-entity failures are reported in the result, not as an
// error.
func (c *Client) UpsertEntitiesBulk(ctx context.Context, blueprint string, entities []*types.Entity, flags UpsertFlags) (*BulkUpsertResult, error) {
	query := url.Values{}
	query.Set("upsert", "true")
	query.Set("merge", strconv.FormatBool(flags.Merge))
	query.Set("create_missing_related_entities", strconv.FormatBool(flags.CreateMissingRelatedEntities))

	body := map[string]any{"entities": entities}
	result := &BulkUpsertResult{}
	if err := c.do(ctx, http.MethodPost, "/v1/blueprints/"+url.PathEscape(blueprint)+"/entities/bulk", query, body, result, requestOptions{}); err != nil {
		return nil, errors.Wrapf(err, "error upserting %d entities of blueprint %s", len(entities), blueprint)
	}
	return result, nil
}

// DeleteEntity removes a single entity; deleteDependents controls the
// cascade to entities whose relations reference it.
func (c *Client) DeleteEntity(ctx context.Context, blueprint string, identifier string, deleteDependents bool) error {
	query := url.Values{}
	query.Set("delete_dependents", strconv.FormatBool(deleteDependents))
	err := c.do(ctx, http.MethodDelete, "/v1/blueprints/"+url.PathEscape(blueprint)+"/entities/"+url.PathEscape(identifier), query, nil, nil, requestOptions{})
	return errors.Wrapf(err, "error deleting entity %s/%s", blueprint, identifier)
}

// DeleteAllEntitiesForBlueprint asks the portal to remove every entity of
// a blueprint; the portal performs this asynchronously as a migration.
func (c *Client) DeleteAllEntitiesForBlueprint(ctx context.Context, blueprint string) (string, error) {
	var response struct {
		MigrationID string `json:"migrationId"`
	}
	if err := c.do(ctx, http.MethodDelete, "/v1/blueprints/"+url.PathEscape(blueprint)+"/all-entities", nil, nil, &response, requestOptions{}); err != nil {
		return "", errors.Wrapf(err, "error deleting all entities of blueprint %s", blueprint)
	}
	return response.MigrationID, nil
}
